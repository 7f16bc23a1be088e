package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type ChargerRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewChargerRepository(db *gorm.DB, log *zap.Logger) ports.ChargerRepository {
	return &ChargerRepository{db: db, log: log}
}

func (r *ChargerRepository) Create(ctx context.Context, charger *domain.Charger) error {
	result := r.db.WithContext(ctx).Create(charger)
	if result.Error != nil {
		r.log.Error("Failed to create charger", zap.String("charge_point_id", charger.ChargePointID), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *ChargerRepository) GetByChargePointID(ctx context.Context, chargePointID string) (*domain.Charger, error) {
	var charger domain.Charger
	result := r.db.WithContext(ctx).First(&charger, "charge_point_id = ?", chargePointID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &charger, nil
}

func (r *ChargerRepository) GetByID(ctx context.Context, id uint) (*domain.Charger, error) {
	var charger domain.Charger
	result := r.db.WithContext(ctx).First(&charger, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &charger, nil
}

func (r *ChargerRepository) List(ctx context.Context) ([]*domain.Charger, error) {
	var chargers []*domain.Charger
	result := r.db.WithContext(ctx).Order("charge_point_id asc").Find(&chargers)
	if result.Error != nil {
		return nil, result.Error
	}
	return chargers, nil
}

func (r *ChargerRepository) Update(ctx context.Context, charger *domain.Charger) error {
	result := r.db.WithContext(ctx).Save(charger)
	if result.Error != nil {
		r.log.Error("Failed to update charger", zap.String("charge_point_id", charger.ChargePointID), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *ChargerRepository) UpdateHeartbeat(ctx context.Context, chargePointID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Charger{}).
		Where("charge_point_id = ?", chargePointID).
		Updates(map[string]interface{}{"last_heartbeat": at, "status": domain.ChargerStatusOnline})
	return result.Error
}

func (r *ChargerRepository) UpdateAvailability(ctx context.Context, chargePointID string, availability domain.ChargerAvailability) error {
	result := r.db.WithContext(ctx).Model(&domain.Charger{}).
		Where("charge_point_id = ?", chargePointID).
		Update("availability", availability)
	return result.Error
}

func (r *ChargerRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&domain.Charger{}, id).Error
}
