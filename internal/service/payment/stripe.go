package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// Callback payload keys set by the HTTP layer for webhook verification.
// Stripe signs the raw body, so the adapter needs it verbatim.
const (
	StripeRawBodyKey   = "__raw_body"
	StripeSignatureKey = "__stripe_signature"
)

// StripeGateway processes card payments through Stripe PaymentIntents.
type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		ReceiptEmail: stripe.String(req.CustomerEmail),
	}
	params.AddMetadata("transaction_ref", req.TransactionRef)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}

	return &ports.CreatePaymentResult{
		GatewayTransactionID: pi.ID,
		// The client confirms the intent with this secret; there is no
		// hosted payment page.
		PaymentURL: pi.ClientSecret,
		Status:     domain.PaymentPending,
	}, nil
}

func (g *StripeGateway) VerifyCallback(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
	rawBody, _ := payload[StripeRawBodyKey].(string)
	signature, _ := payload[StripeSignatureKey].(string)
	if rawBody == "" || signature == "" {
		return nil, fmt.Errorf("missing webhook signature material")
	}

	event, err := webhook.ConstructEvent([]byte(rawBody), signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook verification: %w", err)
	}

	var pi stripe.PaymentIntent
	if err := pi.UnmarshalJSON(event.Data.Raw); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	status := domain.PaymentPending
	switch event.Type {
	case "payment_intent.succeeded":
		status = domain.PaymentSuccess
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = domain.PaymentFailed
	}

	return &ports.CallbackResult{
		TransactionRef:       pi.Metadata["transaction_ref"],
		GatewayTransactionID: pi.ID,
		Status:               status,
		PaidAmount:           decimal.NewFromInt(pi.AmountReceived).Div(decimal.NewFromInt(100)),
		Raw:                  map[string]interface{}{"event_type": string(event.Type), "intent_id": pi.ID},
	}, nil
}

func (g *StripeGateway) CheckStatus(ctx context.Context, gatewayTransactionID string) (*ports.StatusResult, error) {
	pi, err := paymentintent.Get(gatewayTransactionID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get intent: %w", err)
	}

	result := &ports.StatusResult{Status: domain.PaymentPending}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = domain.PaymentSuccess
		result.PaidAmount = decimal.NewFromInt(pi.AmountReceived).Div(decimal.NewFromInt(100))
	case stripe.PaymentIntentStatusCanceled:
		result.Status = domain.PaymentFailed
	}
	return result, nil
}
