package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type PricingRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPricingRepository(db *gorm.DB, log *zap.Logger) ports.PricingRepository {
	return &PricingRepository{db: db, log: log}
}

func (r *PricingRepository) GetActive(ctx context.Context) (*domain.Pricing, error) {
	var pricing domain.Pricing
	result := r.db.WithContext(ctx).Where("is_active = true").Order("id desc").First(&pricing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &pricing, nil
}

func (r *PricingRepository) Save(ctx context.Context, pricing *domain.Pricing) error {
	return r.db.WithContext(ctx).Save(pricing).Error
}

func (r *PricingRepository) List(ctx context.Context) ([]*domain.Pricing, error) {
	var rows []*domain.Pricing
	result := r.db.WithContext(ctx).Order("id desc").Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	return rows, nil
}
