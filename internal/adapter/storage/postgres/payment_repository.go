package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type PaymentRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPaymentRepository(db *gorm.DB, log *zap.Logger) ports.PaymentRepository {
	return &PaymentRepository{db: db, log: log}
}

func (r *PaymentRepository) InTx(ctx context.Context, fn func(tx ports.PaymentRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PaymentRepository{db: tx, log: r.log})
	})
}

func (r *PaymentRepository) Create(ctx context.Context, payment *domain.PaymentTransaction) error {
	result := r.db.WithContext(ctx).Create(payment)
	if result.Error != nil {
		r.log.Error("Failed to create payment",
			zap.String("transaction_ref", payment.TransactionRef),
			zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *domain.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*domain.PaymentTransaction, error) {
	var payment domain.PaymentTransaction
	result := r.db.WithContext(ctx).First(&payment, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByRef(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error) {
	var payment domain.PaymentTransaction
	result := r.db.WithContext(ctx).First(&payment, "transaction_ref = ?", transactionRef)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &payment, nil
}

func (r *PaymentRepository) LockByRef(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error) {
	var payment domain.PaymentTransaction
	result := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "transaction_ref = ?", transactionRef)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &payment, nil
}

func (r *PaymentRepository) LockByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*domain.PaymentTransaction, error) {
	var payment domain.PaymentTransaction
	result := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "gateway_transaction_id = ?", gatewayTransactionID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*domain.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var payments []*domain.PaymentTransaction
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").Limit(limit).Offset(offset).
		Find(&payments)
	if result.Error != nil {
		return nil, result.Error
	}
	return payments, nil
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, status domain.PaymentStatus, limit int) ([]*domain.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []*domain.PaymentTransaction
	result := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id asc").Limit(limit).
		Find(&payments)
	if result.Error != nil {
		return nil, result.Error
	}
	return payments, nil
}

func (r *PaymentRepository) GetGatewayConfig(ctx context.Context, gatewayName string) (*domain.PaymentGatewayConfig, error) {
	var cfg domain.PaymentGatewayConfig
	result := r.db.WithContext(ctx).First(&cfg, "gateway_name = ?", gatewayName)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &cfg, nil
}

func (r *PaymentRepository) ListGatewayConfigs(ctx context.Context, activeOnly bool) ([]*domain.PaymentGatewayConfig, error) {
	query := r.db.WithContext(ctx)
	if activeOnly {
		query = query.Where("is_active = true")
	}
	var cfgs []*domain.PaymentGatewayConfig
	result := query.Order("gateway_name asc").Find(&cfgs)
	if result.Error != nil {
		return nil, result.Error
	}
	return cfgs, nil
}

func (r *PaymentRepository) SaveGatewayConfig(ctx context.Context, cfg *domain.PaymentGatewayConfig) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}
