package payment

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/mocks"
	"github.com/chargenet/csms/internal/ports"
	"github.com/chargenet/csms/internal/service/wallet"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type testEnv struct {
	service    *Service
	payments   *mocks.MockPaymentRepository
	wallets    *mocks.MockWalletRepository
	users      *mocks.MockUserRepository
	clock      *mocks.FixedClock
	gateway    *mocks.MockPaymentGateway
	testUserID uint
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := mocks.NewFixedClock(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))
	payments := mocks.NewMockPaymentRepository()
	wallets := mocks.NewMockWalletRepository()
	users := mocks.NewMockUserRepository()

	user := &domain.User{Name: "Aisyah", Email: "aisyah@example.my", IsActive: true}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	walletService := wallet.NewService(wallets, nil, nil, clock, newTestLogger())
	service := NewService(payments, users, walletService, nil, nil, clock, newTestLogger())

	gateway := mocks.NewMockPaymentGateway("billplz")
	service.RegisterGateway(gateway)
	service.RegisterGateway(NewManualGateway())

	return &testEnv{
		service:    service,
		payments:   payments,
		wallets:    wallets,
		users:      users,
		clock:      clock,
		gateway:    gateway,
		testUserID: user.ID,
	}
}

func TestGenerateTransactionRef_Format(t *testing.T) {
	env := newTestEnv(t)

	pattern := regexp.MustCompile(`^TXN-20250615-[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ref := env.service.GenerateTransactionRef()
		if !pattern.MatchString(ref) {
			t.Fatalf("ref %q does not match TXN-YYYYMMDD-XXXXXXXX", ref)
		}
		if seen[ref] {
			t.Fatalf("duplicate ref %q", ref)
		}
		seen[ref] = true
	}
}

func TestCreateTopupPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(50), "billplz")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if payment.Status != domain.PaymentPending {
		t.Errorf("expected pending, got %s", payment.Status)
	}
	if payment.PaymentURL == "" {
		t.Error("expected a payment URL from the gateway")
	}
	if payment.ExpiredAt == nil || !payment.ExpiredAt.Equal(env.clock.Now().Add(time.Hour)) {
		t.Errorf("expected expiry one hour out, got %v", payment.ExpiredAt)
	}
	if payment.Currency != domain.WalletCurrency {
		t.Errorf("expected MYR, got %s", payment.Currency)
	}
}

func TestCreateTopupPayment_UnknownGateway(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreateTopupPayment(context.Background(), env.testUserID, decimal.NewFromInt(50), "paypal")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestCreateTopupPayment_DisabledGateway(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.payments.SaveGatewayConfig(ctx, &domain.PaymentGatewayConfig{
		GatewayName: "billplz",
		DisplayName: "Billplz",
		IsActive:    false,
	})

	_, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(50), "billplz")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for disabled gateway, got %v", err)
	}
}

func TestCreateTopupPayment_GatewayDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.CreatePaymentFunc = func(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error) {
		return nil, errors.New("connection refused")
	}

	_, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(50), "billplz")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	// The failed attempt must still be recorded.
	listed, _ := env.payments.ListByUser(ctx, env.testUserID, 10, 0)
	if len(listed) != 1 || listed[0].Status != domain.PaymentFailed {
		t.Errorf("expected one failed payment on record, got %+v", listed)
	}
}

func TestHandleCallback_SettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(80), "billplz")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	payload := map[string]interface{}{"transaction_ref": payment.TransactionRef}

	settled, err := env.service.HandleCallback(ctx, "billplz", payload, nil)
	if err != nil {
		t.Fatalf("callback failed: %v", err)
	}
	if settled.Status != domain.PaymentSuccess {
		t.Errorf("expected success, got %s", settled.Status)
	}
	if settled.WalletTransactionID == nil {
		t.Fatal("payment not linked to a wallet credit")
	}
	if settled.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	w, _ := env.wallets.GetByUserID(ctx, env.testUserID)
	if !w.Balance.Equal(decimal.NewFromInt(80)) {
		t.Errorf("expected balance 80, got %s", w.Balance)
	}

	// Replayed callback must not credit again.
	replayed, err := env.service.HandleCallback(ctx, "billplz", payload, nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if *replayed.WalletTransactionID != *settled.WalletTransactionID {
		t.Error("replay created a second wallet credit")
	}
	w, _ = env.wallets.GetByUserID(ctx, env.testUserID)
	if !w.Balance.Equal(decimal.NewFromInt(80)) {
		t.Errorf("balance changed on replay: %s", w.Balance)
	}
}

func TestHandleCallback_FallsBackToGatewayTransactionID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(25), "billplz")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.GatewayTransactionID == "" {
		t.Fatal("expected a gateway transaction id on the created payment")
	}

	// Some gateways echo only their own id in the webhook.
	env.gateway.VerifyCallbackFunc = func(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
		return &ports.CallbackResult{
			GatewayTransactionID: payment.GatewayTransactionID,
			Status:               domain.PaymentSuccess,
			Raw:                  payload,
		}, nil
	}

	settled, err := env.service.HandleCallback(ctx, "billplz", map[string]interface{}{}, nil)
	if err != nil {
		t.Fatalf("callback failed: %v", err)
	}
	if settled.TransactionRef != payment.TransactionRef {
		t.Errorf("resolved the wrong payment: %s", settled.TransactionRef)
	}
	if settled.Status != domain.PaymentSuccess || settled.WalletTransactionID == nil {
		t.Errorf("payment not settled: status %s", settled.Status)
	}

	w, _ := env.wallets.GetByUserID(ctx, env.testUserID)
	if !w.Balance.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected balance 25, got %s", w.Balance)
	}
}

func TestHandleCallback_ManualForbidden(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.HandleCallback(context.Background(), "manual", map[string]interface{}{}, nil)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestHandleCallback_BadSignature(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.VerifyCallbackFunc = func(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
		return nil, errors.New("x_signature mismatch")
	}

	_, err := env.service.HandleCallback(ctx, "billplz", map[string]interface{}{}, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for bad signature, got %v", err)
	}
}

func TestHandleCallback_FailureReported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(30), "billplz")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	env.gateway.VerifyCallbackFunc = func(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
		return &ports.CallbackResult{
			TransactionRef: payment.TransactionRef,
			Status:         domain.PaymentFailed,
			Raw:            payload,
		}, nil
	}

	failed, err := env.service.HandleCallback(ctx, "billplz", map[string]interface{}{}, nil)
	if err != nil {
		t.Fatalf("callback failed: %v", err)
	}
	if failed.Status != domain.PaymentFailed {
		t.Errorf("expected failed, got %s", failed.Status)
	}

	w, _ := env.wallets.GetByUserID(ctx, env.testUserID)
	if w != nil && !w.Balance.IsZero() {
		t.Errorf("failed payment must not credit, balance %s", w.Balance)
	}
}

func TestApproveManualPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(100), ManualGatewayName)
	if err != nil {
		t.Fatalf("create manual payment: %v", err)
	}

	approved, err := env.service.ApproveManualPayment(ctx, payment.TransactionRef, 42)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != domain.PaymentSuccess {
		t.Errorf("expected success, got %s", approved.Status)
	}

	w, _ := env.wallets.GetByUserID(ctx, env.testUserID)
	if !w.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected balance 100, got %s", w.Balance)
	}

	// Re-approval is idempotent.
	again, err := env.service.ApproveManualPayment(ctx, payment.TransactionRef, 42)
	if err != nil {
		t.Fatalf("re-approve failed: %v", err)
	}
	if *again.WalletTransactionID != *approved.WalletTransactionID {
		t.Error("re-approval created a second credit")
	}
	w, _ = env.wallets.GetByUserID(ctx, env.testUserID)
	if !w.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance changed on re-approval: %s", w.Balance)
	}
}

func TestApproveManualPayment_NonManualRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(40), "billplz")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	_, err = env.service.ApproveManualPayment(ctx, payment.TransactionRef, 42)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestCheckStatus_ExpiresStalePayments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(60), "billplz")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	env.clock.Advance(2 * time.Hour)

	checked, err := env.service.CheckStatus(ctx, payment.TransactionRef)
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if checked.Status != domain.PaymentExpired {
		t.Errorf("expected expired, got %s", checked.Status)
	}

	// Terminal payments are returned as-is without another gateway poll.
	again, err := env.service.CheckStatus(ctx, payment.TransactionRef)
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if again.Status != domain.PaymentExpired {
		t.Errorf("terminal status changed to %s", again.Status)
	}
}

func TestCheckStatus_PollPromotesSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment, err := env.service.CreateTopupPayment(ctx, env.testUserID, decimal.NewFromInt(70), "billplz")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	env.gateway.CheckStatusFunc = func(ctx context.Context, gatewayTransactionID string) (*ports.StatusResult, error) {
		return &ports.StatusResult{Status: domain.PaymentSuccess, PaidAmount: decimal.NewFromInt(70)}, nil
	}

	checked, err := env.service.CheckStatus(ctx, payment.TransactionRef)
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if checked.Status != domain.PaymentSuccess {
		t.Errorf("expected success, got %s", checked.Status)
	}
	if checked.WalletTransactionID == nil {
		t.Error("poll-settled payment not credited")
	}
}
