package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chargenet/csms/internal/domain"
)

func signBillplz(key string, payload map[string]interface{}) string {
	var parts []string
	for _, k := range billplzSigningKeys {
		if _, ok := payload[k]; ok {
			parts = append(parts, k+stringField(payload, k))
		}
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBillplzVerifyCallback(t *testing.T) {
	gw := NewBillplzGateway(BillplzConfig{
		APIKey:        "test-key",
		XSignatureKey: "xsig-secret",
		CollectionID:  "coll1",
	}, newTestLogger())

	payload := map[string]interface{}{
		"id":            "bill_abc123",
		"collection_id": "coll1",
		"paid":          "true",
		"state":         "paid",
		"amount":        "5000",
		"paid_amount":   "5000",
		"email":         "aisyah@example.my",
		"name":          "Aisyah",
		"paid_at":       "2025-06-15 10:30:00 +0800",
		"url":           "https://www.billplz.com/bills/bill_abc123",
		"reference_1":   "TXN-20250615-ABCD1234",
	}
	payload["x_signature"] = signBillplz("xsig-secret", payload)

	result, err := gw.VerifyCallback(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if result.Status != domain.PaymentSuccess {
		t.Errorf("expected success, got %s", result.Status)
	}
	if result.TransactionRef != "TXN-20250615-ABCD1234" {
		t.Errorf("wrong transaction ref: %s", result.TransactionRef)
	}
	if result.GatewayTransactionID != "bill_abc123" {
		t.Errorf("wrong gateway id: %s", result.GatewayTransactionID)
	}
	// 5000 cents is RM 50.
	if !result.PaidAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected RM 50, got %s", result.PaidAmount)
	}
}

func TestBillplzVerifyCallback_Unpaid(t *testing.T) {
	gw := NewBillplzGateway(BillplzConfig{XSignatureKey: "xsig-secret"}, newTestLogger())

	payload := map[string]interface{}{
		"id":          "bill_xyz",
		"paid":        "false",
		"state":       "due",
		"amount":      "2000",
		"reference_1": "TXN-20250615-00000000",
	}
	payload["x_signature"] = signBillplz("xsig-secret", payload)

	result, err := gw.VerifyCallback(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if result.Status != domain.PaymentFailed {
		t.Errorf("expected failed for unpaid bill, got %s", result.Status)
	}
}

func TestBillplzVerifyCallback_Rejections(t *testing.T) {
	gw := NewBillplzGateway(BillplzConfig{XSignatureKey: "xsig-secret"}, newTestLogger())
	ctx := context.Background()

	if _, err := gw.VerifyCallback(ctx, map[string]interface{}{"paid": "true"}); err == nil {
		t.Error("expected error for missing x_signature")
	}

	payload := map[string]interface{}{
		"id":          "bill_abc",
		"paid":        "true",
		"x_signature": signBillplz("wrong-key", map[string]interface{}{"id": "bill_abc", "paid": "true"}),
	}
	if _, err := gw.VerifyCallback(ctx, payload); err == nil {
		t.Error("expected error for tampered signature")
	}

	// Changing a signed field after signing must fail verification.
	payload = map[string]interface{}{
		"id":     "bill_abc",
		"paid":   "false",
		"amount": "1000",
	}
	payload["x_signature"] = signBillplz("xsig-secret", payload)
	payload["paid"] = "true"
	if _, err := gw.VerifyCallback(ctx, payload); err == nil {
		t.Error("expected error when a signed field is modified")
	}
}

func signOCBC(secret string, payload map[string]interface{}) string {
	var values []string
	for k := range payload {
		if k == "signature" {
			continue
		}
		if s := stringField(payload, k); s != "" {
			values = append(values, s)
		}
	}
	sort.Strings(values)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestOCBCVerifyCallback(t *testing.T) {
	gw := NewOCBCGateway(OCBCConfig{APIKey: "k", APISecret: "ocbc-secret"}, newTestLogger())

	payload := map[string]interface{}{
		"order_id":       "TXN-20250615-CAFEBABE",
		"transaction_id": "ocbc-9000",
		"status":         "paid",
		"amount":         "75.00",
		"currency":       "MYR",
	}
	payload["signature"] = signOCBC("ocbc-secret", payload)

	result, err := gw.VerifyCallback(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if result.Status != domain.PaymentSuccess {
		t.Errorf("expected success, got %s", result.Status)
	}
	if result.TransactionRef != "TXN-20250615-CAFEBABE" {
		t.Errorf("wrong ref: %s", result.TransactionRef)
	}
	if !result.PaidAmount.Equal(decimal.RequireFromString("75.00")) {
		t.Errorf("expected 75.00, got %s", result.PaidAmount)
	}
}

func TestOCBCVerifyCallback_EmptyFieldsExcluded(t *testing.T) {
	gw := NewOCBCGateway(OCBCConfig{APISecret: "ocbc-secret"}, newTestLogger())

	// Empty values are not part of the signing base, so a payload that adds
	// an empty field after signing still verifies.
	payload := map[string]interface{}{
		"order_id": "TXN-20250615-00C0FFEE",
		"status":   "failed",
	}
	payload["signature"] = signOCBC("ocbc-secret", payload)
	payload["remark"] = ""

	result, err := gw.VerifyCallback(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if result.Status != domain.PaymentFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestOCBCVerifyCallback_TamperRejected(t *testing.T) {
	gw := NewOCBCGateway(OCBCConfig{APISecret: "ocbc-secret"}, newTestLogger())

	payload := map[string]interface{}{
		"order_id": "TXN-20250615-0BADF00D",
		"status":   "failed",
		"amount":   "10.00",
	}
	payload["signature"] = signOCBC("ocbc-secret", payload)
	payload["status"] = "paid"

	if _, err := gw.VerifyCallback(context.Background(), payload); err == nil {
		t.Error("expected error for tampered payload")
	}
}

func TestToCents(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"1.00", 100},
		{"50.00", 5000},
		{"12.34", 1234},
		{"0.99", 99},
		{"500.00", 50000},
	}
	for _, tc := range cases {
		if got := toCents(decimal.RequireFromString(tc.amount)); got != tc.want {
			t.Errorf("toCents(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestStringField(t *testing.T) {
	payload := map[string]interface{}{
		"str":   "abc",
		"bool":  true,
		"int":   float64(42),
		"float": 3.5,
		"nil":   nil,
	}
	cases := []struct {
		key  string
		want string
	}{
		{"str", "abc"},
		{"bool", "true"},
		{"int", "42"},
		{"float", "3.5"},
		{"nil", ""},
		{"missing", ""},
	}
	for _, tc := range cases {
		if got := stringField(payload, tc.key); got != tc.want {
			t.Errorf("stringField(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
