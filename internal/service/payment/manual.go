package payment

import (
	"context"
	"fmt"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// ManualGateway models offline payments (bank transfer, counter). Creation
// succeeds immediately but settlement requires an admin approval; there is
// no callback surface.
type ManualGateway struct{}

func NewManualGateway() *ManualGateway { return &ManualGateway{} }

func (g *ManualGateway) Name() string { return ManualGatewayName }

func (g *ManualGateway) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error) {
	return &ports.CreatePaymentResult{
		GatewayTransactionID: "MANUAL-" + req.TransactionRef,
		Status:               domain.PaymentPendingApproval,
	}, nil
}

func (g *ManualGateway) VerifyCallback(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
	return nil, fmt.Errorf("manual payments have no callbacks")
}

func (g *ManualGateway) CheckStatus(ctx context.Context, gatewayTransactionID string) (*ports.StatusResult, error) {
	return &ports.StatusResult{Status: domain.PaymentPendingApproval}, nil
}
