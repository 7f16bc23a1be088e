package postgres

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type AuditRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewAuditRepository(db *gorm.DB, log *zap.Logger) ports.AuditRepository {
	return &AuditRepository{db: db, log: log}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) List(ctx context.Context, entityType string, limit, offset int) ([]*domain.AuditLog, error) {
	query := r.db.WithContext(ctx).Model(&domain.AuditLog{})
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if limit <= 0 {
		limit = 100
	}
	var entries []*domain.AuditLog
	result := query.Order("id desc").Limit(limit).Offset(offset).Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}
