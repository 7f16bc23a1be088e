package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/observability/telemetry"
	"github.com/chargenet/csms/internal/ports"
)

const ManualGatewayName = "manual"

// Service orchestrates payment lifecycles across the gateway registry:
// create, callback settlement, manual approval and status polling.
type Service struct {
	payments ports.PaymentRepository
	users    ports.UserRepository
	wallet   ports.WalletService
	audit    ports.AuditRecorder
	events   ports.EventPublisher
	clock    ports.Clock
	gateways map[string]ports.PaymentGateway
	log      *zap.Logger
}

func NewService(
	payments ports.PaymentRepository,
	users ports.UserRepository,
	wallet ports.WalletService,
	audit ports.AuditRecorder,
	events ports.EventPublisher,
	clock ports.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		payments: payments,
		users:    users,
		wallet:   wallet,
		audit:    audit,
		events:   events,
		clock:    clock,
		gateways: make(map[string]ports.PaymentGateway),
		log:      log,
	}
}

// RegisterGateway adds a provider to the registry. Called during wiring.
func (s *Service) RegisterGateway(gw ports.PaymentGateway) {
	s.gateways[gw.Name()] = gw
}

func (s *Service) gateway(name string) (ports.PaymentGateway, error) {
	gw, ok := s.gateways[name]
	if !ok {
		return nil, domain.ValidationError("unknown payment gateway %q", name)
	}
	return gw, nil
}

// GenerateTransactionRef returns TXN-YYYYMMDD-XXXXXXXX with 4 random bytes
// hex-encoded upper case.
func (s *Service) GenerateTransactionRef() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return fmt.Sprintf("TXN-%s-%s",
		s.clock.Now().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(buf)))
}

func (s *Service) CreateTopupPayment(ctx context.Context, userID uint, amount decimal.Decimal, gatewayName string) (*domain.PaymentTransaction, error) {
	gw, err := s.gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	if cfg, err := s.payments.GetGatewayConfig(ctx, gatewayName); err != nil {
		return nil, err
	} else if cfg != nil && !cfg.IsActive {
		return nil, domain.ValidationError("payment gateway %q is disabled", gatewayName)
	}

	if err := s.wallet.ValidateTopupAmount(ctx, userID, amount); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}

	now := s.clock.Now()
	expiresAt := now.Add(domain.PaymentExpiry)
	payment := &domain.PaymentTransaction{
		TransactionRef: s.GenerateTransactionRef(),
		UserID:         userID,
		GatewayName:    gatewayName,
		Amount:         amount,
		Currency:       domain.WalletCurrency,
		Status:         domain.PaymentPending,
		Purpose:        "topup",
		ExpiredAt:      &expiresAt,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	result, err := gw.CreatePayment(ctx, ports.CreatePaymentRequest{
		TransactionRef: payment.TransactionRef,
		Amount:         amount,
		Currency:       payment.Currency,
		CustomerName:   user.Name,
		CustomerEmail:  user.Email,
		Description:    fmt.Sprintf("Wallet topup %s", payment.TransactionRef),
	})
	if err != nil {
		payment.Status = domain.PaymentFailed
		payment.FailureReason = err.Error()
		if uErr := s.payments.Update(ctx, payment); uErr != nil {
			s.log.Error("Failed to record gateway failure", zap.Error(uErr))
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	payment.GatewayTransactionID = result.GatewayTransactionID
	payment.PaymentURL = result.PaymentURL
	if result.Status != "" {
		payment.Status = result.Status
	}
	if err := s.payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	s.publish(ctx, "payment.created", payment)
	return payment, nil
}

// HandleCallback settles a payment from a verified gateway callback. The
// shared X-Callback-Secret check happens in the HTTP layer before dispatch;
// here the gateway verifies its own signature. Replays of settled payments
// return the payment unchanged.
func (s *Service) HandleCallback(ctx context.Context, gatewayName string, payload map[string]interface{}, headers map[string]string) (*domain.PaymentTransaction, error) {
	if gatewayName == ManualGatewayName {
		telemetry.PaymentCallbacksTotal.WithLabelValues(gatewayName, "forbidden").Inc()
		return nil, fmt.Errorf("%w: manual payments have no callbacks", domain.ErrForbidden)
	}
	gw, err := s.gateway(gatewayName)
	if err != nil {
		return nil, err
	}

	result, err := gw.VerifyCallback(ctx, payload)
	if err != nil {
		telemetry.PaymentCallbacksTotal.WithLabelValues(gatewayName, "invalid").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var payment *domain.PaymentTransaction
	err = s.payments.InTx(ctx, func(tx ports.PaymentRepository) error {
		payment, err = tx.LockByRef(ctx, result.TransactionRef)
		if err != nil {
			return err
		}
		if payment == nil && result.GatewayTransactionID != "" {
			// Some gateways echo only their own transaction id.
			payment, err = tx.LockByGatewayTransactionID(ctx, result.GatewayTransactionID)
			if err != nil {
				return err
			}
		}
		if payment == nil {
			return fmt.Errorf("%w: payment %s", domain.ErrNotFound, result.TransactionRef)
		}

		// Double callback: already settled and credited, nothing to do.
		if payment.Status == domain.PaymentSuccess && payment.WalletTransactionID != nil {
			return nil
		}

		payment.CallbackPayload = domain.JSONMap(result.Raw)
		if result.GatewayTransactionID != "" {
			payment.GatewayTransactionID = result.GatewayTransactionID
		}

		switch result.Status {
		case domain.PaymentSuccess:
			now := s.clock.Now()
			payment.Status = domain.PaymentSuccess
			payment.CompletedAt = &now
		case domain.PaymentFailed:
			payment.Status = domain.PaymentFailed
			payment.FailureReason = "gateway reported failure"
		default:
			payment.Status = result.Status
		}
		return tx.Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	if payment.Status == domain.PaymentSuccess && payment.WalletTransactionID == nil {
		if err := s.settle(ctx, payment); err != nil {
			telemetry.PaymentCallbacksTotal.WithLabelValues(gatewayName, "settle_failed").Inc()
			return nil, err
		}
	}

	telemetry.PaymentCallbacksTotal.WithLabelValues(gatewayName, string(payment.Status)).Inc()
	s.publish(ctx, "payment.callback", payment)
	return payment, nil
}

// settle credits the wallet and persists the payment link.
func (s *Service) settle(ctx context.Context, payment *domain.PaymentTransaction) error {
	if _, err := s.wallet.CreditFromPayment(ctx, payment); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	if err := s.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("link wallet transaction: %w", err)
	}
	s.recordAudit(ctx, payment.UserID, "payment.settled", payment)
	return nil
}

// ApproveManualPayment settles a manual payment. Admin only, enforced by the
// HTTP layer.
func (s *Service) ApproveManualPayment(ctx context.Context, transactionRef string, adminID uint) (*domain.PaymentTransaction, error) {
	var payment *domain.PaymentTransaction
	err := s.payments.InTx(ctx, func(tx ports.PaymentRepository) error {
		var err error
		payment, err = tx.LockByRef(ctx, transactionRef)
		if err != nil {
			return err
		}
		if payment == nil {
			return fmt.Errorf("%w: payment %s", domain.ErrNotFound, transactionRef)
		}
		if payment.GatewayName != ManualGatewayName {
			return fmt.Errorf("%w: only manual payments can be approved", domain.ErrValidation)
		}
		if payment.Status == domain.PaymentSuccess {
			return nil
		}
		if payment.Status != domain.PaymentPending && payment.Status != domain.PaymentPendingApproval {
			return fmt.Errorf("%w: payment is %s", domain.ErrValidation, payment.Status)
		}

		now := s.clock.Now()
		payment.Status = domain.PaymentSuccess
		payment.CompletedAt = &now
		return tx.Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	if payment.WalletTransactionID == nil {
		if err := s.settle(ctx, payment); err != nil {
			return nil, err
		}
	}

	aid := adminID
	s.recordAuditActor(ctx, &aid, "payment.manual_approved", payment)
	s.publish(ctx, "payment.approved", payment)
	return payment, nil
}

// CheckStatus polls the gateway for pending payments and applies expiry.
func (s *Service) CheckStatus(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error) {
	payment, err := s.payments.GetByRef(ctx, transactionRef)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, transactionRef)
	}
	if payment.IsTerminal() {
		return payment, nil
	}

	now := s.clock.Now()
	if payment.ExpiredAt != nil && now.After(*payment.ExpiredAt) && payment.GatewayName != ManualGatewayName {
		payment.Status = domain.PaymentExpired
		if err := s.payments.Update(ctx, payment); err != nil {
			return nil, err
		}
		return payment, nil
	}

	gw, err := s.gateway(payment.GatewayName)
	if err != nil {
		return payment, nil
	}
	if payment.GatewayTransactionID == "" {
		return payment, nil
	}

	result, err := gw.CheckStatus(ctx, payment.GatewayTransactionID)
	if err != nil {
		s.log.Warn("Gateway status check failed",
			zap.String("transaction_ref", transactionRef),
			zap.Error(err))
		return payment, nil
	}

	if result.Status != payment.Status {
		payment.Status = result.Status
		if result.Status == domain.PaymentSuccess {
			payment.CompletedAt = &now
		}
		if err := s.payments.Update(ctx, payment); err != nil {
			return nil, err
		}
		if payment.Status == domain.PaymentSuccess && payment.WalletTransactionID == nil {
			if err := s.settle(ctx, payment); err != nil {
				return nil, err
			}
		}
	}
	return payment, nil
}

func (s *Service) Get(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error) {
	payment, err := s.payments.GetByRef(ctx, transactionRef)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, transactionRef)
	}
	return payment, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*domain.PaymentTransaction, error) {
	return s.payments.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) ListGateways(ctx context.Context) ([]*domain.PaymentGatewayConfig, error) {
	return s.payments.ListGatewayConfigs(ctx, true)
}

func (s *Service) recordAudit(ctx context.Context, userID uint, action string, detail interface{}) {
	uid := userID
	s.recordAuditActor(ctx, &uid, action, detail)
}

func (s *Service) recordAuditActor(ctx context.Context, actorID *uint, action string, detail interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, &domain.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: "payment",
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
		s.log.Warn("Failed to publish payment event", zap.String("event", event), zap.Error(err))
	}
}
