package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// billplzSigningKeys are the callback fields covered by the X Signature, in
// the order Billplz signs them.
var billplzSigningKeys = []string{
	"amount", "collection_id", "email", "id", "name",
	"paid", "paid_amount", "paid_at", "state", "url",
}

// BillplzGateway integrates the Billplz bill API. Amounts cross the wire in
// cents; callbacks carry an HMAC-SHA256 X Signature.
type BillplzGateway struct {
	baseURL       string
	apiKey        string
	apiSecret     string
	xSignatureKey string
	collectionID  string
	callbackURL   string
	redirectURL   string
	client        *gatewayClient
	log           *zap.Logger
}

type BillplzConfig struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	XSignatureKey string
	CollectionID  string
	CallbackURL   string
	RedirectURL   string
}

func NewBillplzGateway(cfg BillplzConfig, log *zap.Logger) *BillplzGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.billplz.com"
	}
	return &BillplzGateway{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        cfg.APIKey,
		apiSecret:     cfg.APISecret,
		xSignatureKey: cfg.XSignatureKey,
		collectionID:  cfg.CollectionID,
		callbackURL:   cfg.CallbackURL,
		redirectURL:   cfg.RedirectURL,
		client:        newGatewayClient("billplz", log),
		log:           log,
	}
}

func (g *BillplzGateway) Name() string { return "billplz" }

func (g *BillplzGateway) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error) {
	form := url.Values{}
	form.Set("collection_id", g.collectionID)
	form.Set("email", req.CustomerEmail)
	form.Set("name", req.CustomerName)
	form.Set("amount", strconv.FormatInt(toCents(req.Amount), 10))
	form.Set("description", req.Description)
	form.Set("reference_1_label", "TransactionRef")
	form.Set("reference_1", req.TransactionRef)
	if g.callbackURL != "" {
		form.Set("callback_url", g.callbackURL)
	}
	if g.redirectURL != "" {
		form.Set("redirect_url", g.redirectURL)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/v3/bills", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(g.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("billplz create bill: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("billplz create bill: status %d", resp.StatusCode)
	}

	var bill struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bill); err != nil {
		return nil, fmt.Errorf("billplz create bill: decode: %w", err)
	}

	return &ports.CreatePaymentResult{
		GatewayTransactionID: bill.ID,
		PaymentURL:           bill.URL,
		Status:               domain.PaymentPending,
	}, nil
}

// VerifyCallback recomputes the X Signature over the documented field list
// and compares it in constant time.
func (g *BillplzGateway) VerifyCallback(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
	signature := stringField(payload, "x_signature")
	if signature == "" {
		return nil, fmt.Errorf("missing x_signature")
	}

	var parts []string
	for _, key := range billplzSigningKeys {
		if _, ok := payload[key]; ok {
			parts = append(parts, key+stringField(payload, key))
		}
	}
	signed := strings.Join(parts, "|")

	key := g.xSignatureKey
	if key == "" {
		key = g.apiSecret
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(signed))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, fmt.Errorf("x_signature mismatch")
	}

	status := domain.PaymentFailed
	if stringField(payload, "paid") == "true" {
		status = domain.PaymentSuccess
	}

	paidAmount := decimal.Zero
	if raw := stringField(payload, "paid_amount"); raw != "" {
		if cents, err := decimal.NewFromString(raw); err == nil {
			paidAmount = cents.Div(decimal.NewFromInt(100))
		}
	}

	return &ports.CallbackResult{
		TransactionRef:       stringField(payload, "reference_1"),
		GatewayTransactionID: stringField(payload, "id"),
		Status:               status,
		PaidAmount:           paidAmount,
		Raw:                  payload,
	}, nil
}

func (g *BillplzGateway) CheckStatus(ctx context.Context, gatewayTransactionID string) (*ports.StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/api/v3/bills/"+gatewayTransactionID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(g.apiKey, "")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("billplz get bill: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("billplz get bill: status %d", resp.StatusCode)
	}

	var bill struct {
		State      string `json:"state"`
		Paid       bool   `json:"paid"`
		PaidAmount int64  `json:"paid_amount"`
		DueAt      string `json:"due_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bill); err != nil {
		return nil, fmt.Errorf("billplz get bill: decode: %w", err)
	}

	result := &ports.StatusResult{Status: domain.PaymentPending}
	switch {
	case bill.Paid || bill.State == "paid":
		result.Status = domain.PaymentSuccess
		result.PaidAmount = decimal.NewFromInt(bill.PaidAmount).Div(decimal.NewFromInt(100))
	case bill.State == "due" && billDuePast(bill.DueAt):
		result.Status = domain.PaymentExpired
	}
	return result, nil
}

func billDuePast(dueAt string) bool {
	if dueAt == "" {
		return false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, dueAt); err == nil {
			return t.Before(time.Now())
		}
	}
	return false
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// stringField renders a callback value the way it was signed: booleans and
// numbers as their literal form, everything else as-is.
func stringField(payload map[string]interface{}, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
