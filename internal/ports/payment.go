package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/chargenet/csms/internal/domain"
)

type CreatePaymentRequest struct {
	TransactionRef string
	Amount         decimal.Decimal
	Currency       string
	CustomerName   string
	CustomerEmail  string
	Description    string
	CallbackURL    string
	RedirectURL    string
}

type CreatePaymentResult struct {
	GatewayTransactionID string
	PaymentURL           string
	Status               domain.PaymentStatus
}

type CallbackResult struct {
	TransactionRef       string
	GatewayTransactionID string
	Status               domain.PaymentStatus
	PaidAmount           decimal.Decimal
	Raw                  map[string]interface{}
}

type StatusResult struct {
	Status     domain.PaymentStatus
	PaidAmount decimal.Decimal
}

// PaymentGateway is one payment provider behind the registry. Implementations
// verify callback authenticity themselves; the shared X-Callback-Secret check
// happens before dispatch.
type PaymentGateway interface {
	Name() string
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)
	// VerifyCallback authenticates the payload signature and extracts the
	// settlement outcome. A signature mismatch is an error, not a failed status.
	VerifyCallback(ctx context.Context, payload map[string]interface{}) (*CallbackResult, error)
	CheckStatus(ctx context.Context, gatewayTransactionID string) (*StatusResult, error)
}
