package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/observability/telemetry"
	"github.com/chargenet/csms/internal/ports"
)

// Service is the wallet engine. All balance mutations run inside a database
// transaction holding a FOR UPDATE lock on the wallet row, and every
// mutation writes a WalletTransaction carrying the before/after pair.
type Service struct {
	wallets ports.WalletRepository
	audit   ports.AuditRecorder
	events  ports.EventPublisher
	clock   ports.Clock
	log     *zap.Logger
}

func NewService(
	wallets ports.WalletRepository,
	audit ports.AuditRecorder,
	events ports.EventPublisher,
	clock ports.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		wallets: wallets,
		audit:   audit,
		events:  events,
		clock:   clock,
		log:     log,
	}
}

// GetWallet returns the user's wallet, creating an empty one on first touch.
func (s *Service) GetWallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}
	wallet = &domain.Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: domain.WalletCurrency,
	}
	if err := s.wallets.Create(ctx, wallet); err != nil {
		// Lost a creation race; re-read.
		if existing, gErr := s.wallets.GetByUserID(ctx, userID); gErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return wallet, nil
}

// ValidateTopupAmount enforces the RM 1.00 – RM 500.00 per-topup window,
// two decimal places, and the RM 2,000 daily cap.
func (s *Service) ValidateTopupAmount(ctx context.Context, userID uint, amount decimal.Decimal) error {
	if amount.Exponent() < -2 {
		return domain.ValidationError("amount must have at most 2 decimal places")
	}
	if amount.LessThan(domain.MinTopupAmount) {
		return domain.ValidationError("minimum topup is RM %s", domain.MinTopupAmount.StringFixed(2))
	}
	if amount.GreaterThan(domain.MaxTopupAmount) {
		return domain.ValidationError("maximum topup is RM %s", domain.MaxTopupAmount.StringFixed(2))
	}

	now := s.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todays, err := s.wallets.SumCompletedTopupsSince(ctx, userID, dayStart)
	if err != nil {
		return fmt.Errorf("check daily topup total: %w", err)
	}
	if todays.Add(amount).GreaterThan(domain.DailyTopupCap) {
		return domain.ValidationError("daily topup limit of RM %s exceeded", domain.DailyTopupCap.StringFixed(2))
	}
	return nil
}

// Topup credits the wallet directly (manual or already-settled payments).
// The idempotency key makes retries return the first outcome.
func (s *Service) Topup(ctx context.Context, req ports.TopupRequest) (*domain.WalletTransaction, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.wallets.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	if err := s.ValidateTopupAmount(ctx, req.UserID, req.Amount); err != nil {
		return nil, err
	}
	if _, err := s.GetWallet(ctx, req.UserID); err != nil {
		return nil, err
	}

	var txn *domain.WalletTransaction
	err := s.wallets.InTx(ctx, func(tx ports.WalletRepository) error {
		wallet, err := tx.LockByUserID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return fmt.Errorf("%w: wallet for user %d", domain.ErrNotFound, req.UserID)
		}

		// Points accrue only when a gateway payment settles
		// (CreditFromPayment); a direct topup leaves them untouched.
		txn = &domain.WalletTransaction{
			WalletID:      wallet.ID,
			UserID:        req.UserID,
			Type:          domain.WalletTxnTopup,
			Status:        domain.WalletTxnCompleted,
			Amount:        req.Amount,
			BalanceBefore: wallet.Balance,
			BalanceAfter:  wallet.Balance.Add(req.Amount),
			PointsBefore:  wallet.Points,
			PointsAfter:   wallet.Points,
			Method:        req.Method,
			Description:   req.Description,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			txn.IdempotencyKey = &key
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}

		wallet.Balance = txn.BalanceAfter
		return tx.Update(ctx, wallet)
	})
	if err != nil {
		// A racing duplicate hits the unique idempotency index; the
		// loser returns the winner's row.
		if req.IdempotencyKey != "" && isUniqueViolation(err) {
			if existing, gErr := s.wallets.GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey); gErr == nil && existing != nil {
				return existing, nil
			}
		}
		telemetry.WalletCreditsTotal.WithLabelValues(req.Method, "failed").Inc()
		return nil, err
	}

	telemetry.WalletCreditsTotal.WithLabelValues(req.Method, "completed").Inc()
	s.recordAudit(ctx, req.UserID, "wallet.topup", txn)
	s.publish(ctx, "wallet.topup", txn)
	return txn, nil
}

// CreditFromPayment applies a settled gateway payment to the wallet exactly
// once. The ladder: an already-linked payment is a no-op; an existing
// completed topup for the same reference gets linked; otherwise the wallet
// is credited under lock. The caller persists the payment's link.
func (s *Service) CreditFromPayment(ctx context.Context, payment *domain.PaymentTransaction) (*domain.WalletTransaction, error) {
	if payment.WalletTransactionID != nil {
		existing, err := s.wallets.GetTransactionByID(ctx, *payment.WalletTransactionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	if existing, err := s.wallets.GetTopupByGatewayReference(ctx, payment.TransactionRef); err != nil {
		return nil, err
	} else if existing != nil {
		id := existing.ID
		payment.WalletTransactionID = &id
		return existing, nil
	}

	if _, err := s.GetWallet(ctx, payment.UserID); err != nil {
		return nil, err
	}

	var txn *domain.WalletTransaction
	err := s.wallets.InTx(ctx, func(tx ports.WalletRepository) error {
		wallet, err := tx.LockByUserID(ctx, payment.UserID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return fmt.Errorf("%w: wallet for user %d", domain.ErrNotFound, payment.UserID)
		}

		// Re-check the reference under lock so two racing callbacks for
		// the same payment collapse to one credit.
		if existing, err := tx.GetTopupByGatewayReference(ctx, payment.TransactionRef); err != nil {
			return err
		} else if existing != nil {
			txn = existing
			return nil
		}

		points := domain.TopupPoints(payment.Amount)
		txn = &domain.WalletTransaction{
			WalletID:         wallet.ID,
			UserID:           payment.UserID,
			Type:             domain.WalletTxnTopup,
			Status:           domain.WalletTxnCompleted,
			Amount:           payment.Amount,
			BalanceBefore:    wallet.Balance,
			BalanceAfter:     wallet.Balance.Add(payment.Amount),
			PointsAmount:     points,
			PointsBefore:     wallet.Points,
			PointsAfter:      wallet.Points + points,
			Method:           payment.GatewayName,
			Description:      fmt.Sprintf("Topup via %s (%s)", payment.GatewayName, payment.TransactionRef),
			GatewayReference: payment.TransactionRef,
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}

		wallet.Balance = txn.BalanceAfter
		wallet.Points = txn.PointsAfter
		return tx.Update(ctx, wallet)
	})
	if err != nil {
		telemetry.WalletCreditsTotal.WithLabelValues(payment.GatewayName, "failed").Inc()
		return nil, err
	}

	id := txn.ID
	payment.WalletTransactionID = &id

	telemetry.WalletCreditsTotal.WithLabelValues(payment.GatewayName, "completed").Inc()
	s.recordAudit(ctx, payment.UserID, "wallet.credit_from_payment", txn)
	s.publish(ctx, "wallet.credited", txn)
	return txn, nil
}

// DebitForSession charges a completed charging session against the wallet.
// A session is settled at most once: a repeat call returns the original
// debit row unchanged.
func (s *Service) DebitForSession(ctx context.Context, userID uint, sessionID uint, amount decimal.Decimal) (*domain.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ValidationError("debit amount must be positive")
	}
	if existing, err := s.wallets.GetDebitBySessionID(ctx, sessionID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	if _, err := s.GetWallet(ctx, userID); err != nil {
		return nil, err
	}

	var txn *domain.WalletTransaction
	err := s.wallets.InTx(ctx, func(tx ports.WalletRepository) error {
		wallet, err := tx.LockByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return fmt.Errorf("%w: wallet for user %d", domain.ErrNotFound, userID)
		}

		// Re-check under lock so two racing settlement calls collapse
		// to one debit.
		if existing, err := tx.GetDebitBySessionID(ctx, sessionID); err != nil {
			return err
		} else if existing != nil {
			txn = existing
			return nil
		}

		if wallet.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, needed %s",
				domain.ErrInsufficientBalance, wallet.Balance.StringFixed(2), amount.StringFixed(2))
		}

		sid := sessionID
		txn = &domain.WalletTransaction{
			WalletID:      wallet.ID,
			UserID:        userID,
			Type:          domain.WalletTxnChargePayment,
			Status:        domain.WalletTxnCompleted,
			Amount:        amount,
			BalanceBefore: wallet.Balance,
			BalanceAfter:  wallet.Balance.Sub(amount),
			PointsBefore:  wallet.Points,
			PointsAfter:   wallet.Points,
			Method:        "session",
			Description:   fmt.Sprintf("Charging session #%d", sessionID),
			SessionID:     &sid,
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}

		wallet.Balance = txn.BalanceAfter
		return tx.Update(ctx, wallet)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, userID, "wallet.debit_for_session", txn)
	s.publish(ctx, "wallet.debited", txn)
	return txn, nil
}

// RedeemReward exchanges points for a catalog item. The client-supplied cost
// must match the catalog so a stale app cannot redeem at old prices.
func (s *Service) RedeemReward(ctx context.Context, userID uint, rewardType string, clientPointsCost int64) (*domain.Reward, error) {
	item, ok := domain.RewardCatalog[rewardType]
	if !ok {
		return nil, domain.ValidationError("unknown reward %q", rewardType)
	}
	if clientPointsCost != item.PointsCost {
		return nil, domain.ValidationError("reward %s costs %d points, not %d", rewardType, item.PointsCost, clientPointsCost)
	}
	if _, err := s.GetWallet(ctx, userID); err != nil {
		return nil, err
	}

	var reward *domain.Reward
	err := s.wallets.InTx(ctx, func(tx ports.WalletRepository) error {
		wallet, err := tx.LockByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return fmt.Errorf("%w: wallet for user %d", domain.ErrNotFound, userID)
		}
		if wallet.Points < item.PointsCost {
			return fmt.Errorf("%w: have %d, need %d",
				domain.ErrInsufficientPoints, wallet.Points, item.PointsCost)
		}

		now := s.clock.Now()
		reward = &domain.Reward{
			UserID:     userID,
			RewardType: rewardType,
			PointsCost: item.PointsCost,
			Value:      item.Value,
			Status:     "issued",
			RedeemedAt: now,
		}
		if err := tx.CreateReward(ctx, reward); err != nil {
			return err
		}

		txn := &domain.WalletTransaction{
			WalletID:      wallet.ID,
			UserID:        userID,
			Type:          domain.WalletTxnPointsRedeemed,
			Status:        domain.WalletTxnCompleted,
			Amount:        item.Value,
			BalanceBefore: wallet.Balance,
			BalanceAfter:  wallet.Balance.Add(item.Value),
			PointsAmount:  -item.PointsCost,
			PointsBefore:  wallet.Points,
			PointsAfter:   wallet.Points - item.PointsCost,
			Method:        "reward",
			Description:   fmt.Sprintf("Redeemed %s", rewardType),
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}

		wallet.Balance = txn.BalanceAfter
		wallet.Points = txn.PointsAfter
		return tx.Update(ctx, wallet)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, userID, "wallet.redeem_reward", reward)
	s.publish(ctx, "wallet.reward_redeemed", reward)
	return reward, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]*domain.WalletTransaction, error) {
	return s.wallets.ListTransactions(ctx, userID, limit, offset)
}

func (s *Service) ListRewards(ctx context.Context, userID uint) ([]*domain.Reward, error) {
	return s.wallets.ListRewards(ctx, userID)
}

func (s *Service) recordAudit(ctx context.Context, userID uint, action string, detail interface{}) {
	if s.audit == nil {
		return
	}
	uid := userID
	s.audit.Record(ctx, &domain.AuditLog{
		ActorID:    &uid,
		Action:     action,
		EntityType: "wallet",
		Detail:     domain.JSONMap{"data": detail},
		CreatedAt:  s.clock.Now(),
	})
}

func (s *Service) publish(ctx context.Context, event string, payload interface{}) {
	if s.events == nil {
		return
	}
	body := map[string]interface{}{
		"event":     event,
		"timestamp": s.clock.Now().UTC(),
		"data":      payload,
	}
	if err := s.events.Publish(ctx, ports.SubjectPaymentEvents, body); err != nil {
		s.log.Warn("Failed to publish wallet event", zap.String("event", event), zap.Error(err))
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
