package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// OCBCGateway integrates the OCBC payment API. Requests and callbacks are
// signed with HMAC-SHA256 over the pipe-joined, sorted, non-empty field
// values.
type OCBCGateway struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	merchantID string
	client     *gatewayClient
	log        *zap.Logger
}

type OCBCConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	MerchantID string
}

func NewOCBCGateway(cfg OCBCConfig, log *zap.Logger) *OCBCGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.ocbc.com.my"
	}
	return &OCBCGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		merchantID: cfg.MerchantID,
		client:     newGatewayClient("ocbc", log),
		log:        log,
	}
}

func (g *OCBCGateway) Name() string { return "ocbc" }

// sign hashes the sorted non-empty values of the payload, excluding the
// signature field itself.
func (g *OCBCGateway) sign(payload map[string]interface{}) string {
	values := make([]string, 0, len(payload))
	for key := range payload {
		if key == "signature" {
			continue
		}
		if s := stringField(payload, key); s != "" {
			values = append(values, s)
		}
	}
	sort.Strings(values)
	mac := hmac.New(sha256.New, []byte(g.apiSecret))
	mac.Write([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *OCBCGateway) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error) {
	body := map[string]interface{}{
		"merchant_id": g.merchantID,
		"order_id":    req.TransactionRef,
		"amount":      req.Amount.StringFixed(2),
		"currency":    req.Currency,
		"description": req.Description,
		"email":       req.CustomerEmail,
	}
	body["signature"] = g.sign(body)

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/transactional/payments/v1/orders", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocbc create order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ocbc create order: status %d", resp.StatusCode)
	}

	var order struct {
		TransactionID string `json:"transaction_id"`
		PaymentURL    string `json:"payment_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("ocbc create order: decode: %w", err)
	}

	return &ports.CreatePaymentResult{
		GatewayTransactionID: order.TransactionID,
		PaymentURL:           order.PaymentURL,
		Status:               domain.PaymentPending,
	}, nil
}

func (g *OCBCGateway) VerifyCallback(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
	signature := stringField(payload, "signature")
	if signature == "" {
		return nil, fmt.Errorf("missing signature")
	}
	expected := g.sign(payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, fmt.Errorf("signature mismatch")
	}

	status := domain.PaymentFailed
	if stringField(payload, "status") == "paid" {
		status = domain.PaymentSuccess
	}

	paidAmount := decimal.Zero
	if raw := stringField(payload, "amount"); raw != "" {
		if amt, err := decimal.NewFromString(raw); err == nil {
			paidAmount = amt
		}
	}

	return &ports.CallbackResult{
		TransactionRef:       stringField(payload, "order_id"),
		GatewayTransactionID: stringField(payload, "transaction_id"),
		Status:               status,
		PaidAmount:           paidAmount,
		Raw:                  payload,
	}, nil
}

func (g *OCBCGateway) CheckStatus(ctx context.Context, gatewayTransactionID string) (*ports.StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/transactional/payments/v1/orders/"+gatewayTransactionID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocbc get order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ocbc get order: status %d", resp.StatusCode)
	}

	var order struct {
		Status string `json:"status"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("ocbc get order: decode: %w", err)
	}

	result := &ports.StatusResult{Status: domain.PaymentPending}
	switch order.Status {
	case "paid":
		result.Status = domain.PaymentSuccess
		if amt, err := decimal.NewFromString(order.Amount); err == nil {
			result.PaidAmount = amt
		}
	case "failed", "cancelled":
		result.Status = domain.PaymentFailed
	case "expired":
		result.Status = domain.PaymentExpired
	}
	return result, nil
}
