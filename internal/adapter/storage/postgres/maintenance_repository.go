package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type MaintenanceRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewMaintenanceRepository(db *gorm.DB, log *zap.Logger) ports.MaintenanceRepository {
	return &MaintenanceRepository{db: db, log: log}
}

func (r *MaintenanceRepository) Create(ctx context.Context, record *domain.MaintenanceRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *MaintenanceRepository) Update(ctx context.Context, record *domain.MaintenanceRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *MaintenanceRepository) GetByID(ctx context.Context, id uint) (*domain.MaintenanceRecord, error) {
	var record domain.MaintenanceRecord
	result := r.db.WithContext(ctx).First(&record, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &record, nil
}

func (r *MaintenanceRepository) List(ctx context.Context, chargePointID string, limit, offset int) ([]*domain.MaintenanceRecord, error) {
	query := r.db.WithContext(ctx).Model(&domain.MaintenanceRecord{})
	if chargePointID != "" {
		query = query.Where("charge_point_id = ?", chargePointID)
	}
	if limit <= 0 {
		limit = 100
	}
	var records []*domain.MaintenanceRecord
	result := query.Order("id desc").Limit(limit).Offset(offset).Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

func (r *MaintenanceRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&domain.MaintenanceRecord{}, id).Error
}
