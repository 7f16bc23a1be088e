package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type WalletRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewWalletRepository(db *gorm.DB, log *zap.Logger) ports.WalletRepository {
	return &WalletRepository{db: db, log: log}
}

// InTx runs fn with a repository bound to a single database transaction so
// LockByUserID row locks hold until commit.
func (r *WalletRepository) InTx(ctx context.Context, fn func(tx ports.WalletRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&WalletRepository{db: tx, log: r.log})
	})
}

func (r *WalletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	result := r.db.WithContext(ctx).First(&wallet, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &wallet, nil
}

func (r *WalletRepository) LockByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	result := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &wallet, nil
}

func (r *WalletRepository) Update(ctx context.Context, wallet *domain.Wallet) error {
	return r.db.WithContext(ctx).Save(wallet).Error
}

func (r *WalletRepository) CreateTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	result := r.db.WithContext(ctx).Create(txn)
	if result.Error != nil {
		r.log.Error("Failed to create wallet transaction",
			zap.Uint("wallet_id", txn.WalletID),
			zap.String("type", string(txn.Type)),
			zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *WalletRepository) UpdateTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *WalletRepository) GetTransactionByID(ctx context.Context, id uint) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	result := r.db.WithContext(ctx).First(&txn, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &txn, nil
}

func (r *WalletRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	result := r.db.WithContext(ctx).First(&txn, "idempotency_key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &txn, nil
}

func (r *WalletRepository) GetTopupByGatewayReference(ctx context.Context, ref string) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	result := r.db.WithContext(ctx).
		Where("gateway_reference = ? AND type = ? AND status = ?",
			ref, domain.WalletTxnTopup, domain.WalletTxnCompleted).
		First(&txn)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &txn, nil
}

func (r *WalletRepository) GetDebitBySessionID(ctx context.Context, sessionID uint) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	result := r.db.WithContext(ctx).
		Where("session_id = ? AND type = ? AND status = ?",
			sessionID, domain.WalletTxnChargePayment, domain.WalletTxnCompleted).
		First(&txn)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &txn, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]*domain.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txns []*domain.WalletTransaction
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").Limit(limit).Offset(offset).
		Find(&txns)
	if result.Error != nil {
		return nil, result.Error
	}
	return txns, nil
}

func (r *WalletRepository) SumCompletedTopupsSince(ctx context.Context, userID uint, since time.Time) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	result := r.db.WithContext(ctx).Model(&domain.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type = ? AND status = ? AND created_at >= ?",
			userID, domain.WalletTxnTopup, domain.WalletTxnCompleted, since).
		Scan(&sum)
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *WalletRepository) CreateReward(ctx context.Context, reward *domain.Reward) error {
	return r.db.WithContext(ctx).Create(reward).Error
}

func (r *WalletRepository) ListRewards(ctx context.Context, userID uint) ([]*domain.Reward, error) {
	var rewards []*domain.Reward
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id desc").Find(&rewards)
	if result.Error != nil {
		return nil, result.Error
	}
	return rewards, nil
}
