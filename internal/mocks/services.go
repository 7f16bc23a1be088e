package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// SentMail is one message captured by MockMailer.
type SentMail struct {
	To      string
	Subject string
	Body    string
	IsHTML  bool
}

// MockMailer records outgoing mail.
type MockMailer struct {
	mu   sync.Mutex
	Sent []SentMail

	SendFunc func(ctx context.Context, to, subject, body string, isHTML bool) error
}

func NewMockMailer() *MockMailer { return &MockMailer{} }

func (m *MockMailer) Send(ctx context.Context, to, subject, body string, isHTML bool) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, to, subject, body, isHTML)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, Body: body, IsHTML: isHTML})
	return nil
}

// MockOCPPCommands scripts the typed command surface. Unscripted methods
// report "Accepted".
type MockOCPPCommands struct {
	RemoteStartFunc func(ctx context.Context, chargePointID, idTag string, connectorID int) (string, error)
	RemoteStopFunc  func(ctx context.Context, chargePointID string, transactionID int) (string, error)
	ChangeAvailabilityFunc func(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error)

	mu    sync.Mutex
	Calls []string
}

func NewMockOCPPCommands() *MockOCPPCommands { return &MockOCPPCommands{} }

func (m *MockOCPPCommands) record(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, action)
}

func (m *MockOCPPCommands) RemoteStartTransaction(ctx context.Context, chargePointID, idTag string, connectorID int) (string, error) {
	m.record("RemoteStartTransaction")
	if m.RemoteStartFunc != nil {
		return m.RemoteStartFunc(ctx, chargePointID, idTag, connectorID)
	}
	return "Accepted", nil
}

func (m *MockOCPPCommands) RemoteStopTransaction(ctx context.Context, chargePointID string, transactionID int) (string, error) {
	m.record("RemoteStopTransaction")
	if m.RemoteStopFunc != nil {
		return m.RemoteStopFunc(ctx, chargePointID, transactionID)
	}
	return "Accepted", nil
}

func (m *MockOCPPCommands) GetConfiguration(ctx context.Context, chargePointID string, keys []string) (json.RawMessage, error) {
	m.record("GetConfiguration")
	return json.RawMessage(`{"configurationKey":[]}`), nil
}

func (m *MockOCPPCommands) ChangeConfiguration(ctx context.Context, chargePointID, key, value string) (string, error) {
	m.record("ChangeConfiguration")
	return "Accepted", nil
}

func (m *MockOCPPCommands) ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error) {
	m.record("ChangeAvailability")
	if m.ChangeAvailabilityFunc != nil {
		return m.ChangeAvailabilityFunc(ctx, chargePointID, connectorID, availabilityType)
	}
	return "Accepted", nil
}

func (m *MockOCPPCommands) ClearCache(ctx context.Context, chargePointID string) (string, error) {
	m.record("ClearCache")
	return "Accepted", nil
}

func (m *MockOCPPCommands) Reset(ctx context.Context, chargePointID, resetType string) (string, error) {
	m.record("Reset")
	return "Accepted", nil
}

func (m *MockOCPPCommands) UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (string, error) {
	m.record("UnlockConnector")
	return "Unlocked", nil
}

func (m *MockOCPPCommands) GetDiagnostics(ctx context.Context, chargePointID, location string) (string, error) {
	m.record("GetDiagnostics")
	return "diagnostics.tar.gz", nil
}

func (m *MockOCPPCommands) UpdateFirmware(ctx context.Context, chargePointID, location string, retrieveDate time.Time) error {
	m.record("UpdateFirmware")
	return nil
}

func (m *MockOCPPCommands) ReserveNow(ctx context.Context, chargePointID string, connectorID int, expiryDate time.Time, idTag string, reservationID int) (string, error) {
	m.record("ReserveNow")
	return "Accepted", nil
}

func (m *MockOCPPCommands) CancelReservation(ctx context.Context, chargePointID string, reservationID int) (string, error) {
	m.record("CancelReservation")
	return "Accepted", nil
}

func (m *MockOCPPCommands) DataTransfer(ctx context.Context, chargePointID, vendorID, messageID, data string) (string, string, error) {
	m.record("DataTransfer")
	return "Accepted", "", nil
}

func (m *MockOCPPCommands) GetLocalListVersion(ctx context.Context, chargePointID string) (int, error) {
	m.record("GetLocalListVersion")
	return 0, nil
}

func (m *MockOCPPCommands) SendLocalList(ctx context.Context, chargePointID string, listVersion int, updateType string, entries []ports.LocalListEntry) (string, error) {
	m.record("SendLocalList")
	return "Accepted", nil
}

func (m *MockOCPPCommands) TriggerMessage(ctx context.Context, chargePointID, requestedMessage string, connectorID *int) (string, error) {
	m.record("TriggerMessage")
	return "Accepted", nil
}

func (m *MockOCPPCommands) GetCompositeSchedule(ctx context.Context, chargePointID string, connectorID, durationS int) (json.RawMessage, error) {
	m.record("GetCompositeSchedule")
	return json.RawMessage(`{"status":"Accepted"}`), nil
}

func (m *MockOCPPCommands) ClearChargingProfile(ctx context.Context, chargePointID string, profileID *int) (string, error) {
	m.record("ClearChargingProfile")
	return "Accepted", nil
}

func (m *MockOCPPCommands) SetChargingProfile(ctx context.Context, chargePointID string, connectorID int, profile json.RawMessage) (string, error) {
	m.record("SetChargingProfile")
	return "Accepted", nil
}

// MockPaymentGateway scripts one payment provider.
type MockPaymentGateway struct {
	GatewayName string

	CreatePaymentFunc  func(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error)
	VerifyCallbackFunc func(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error)
	CheckStatusFunc    func(ctx context.Context, gatewayTransactionID string) (*ports.StatusResult, error)
}

func NewMockPaymentGateway(name string) *MockPaymentGateway {
	return &MockPaymentGateway{GatewayName: name}
}

func (m *MockPaymentGateway) Name() string { return m.GatewayName }

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error) {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	return &ports.CreatePaymentResult{
		GatewayTransactionID: "gw-" + req.TransactionRef,
		PaymentURL:           "https://pay.example.com/" + req.TransactionRef,
		Status:               domain.PaymentPending,
	}, nil
}

func (m *MockPaymentGateway) VerifyCallback(ctx context.Context, payload map[string]interface{}) (*ports.CallbackResult, error) {
	if m.VerifyCallbackFunc != nil {
		return m.VerifyCallbackFunc(ctx, payload)
	}
	ref, _ := payload["transaction_ref"].(string)
	return &ports.CallbackResult{
		TransactionRef: ref,
		Status:         domain.PaymentSuccess,
		Raw:            payload,
	}, nil
}

func (m *MockPaymentGateway) CheckStatus(ctx context.Context, gatewayTransactionID string) (*ports.StatusResult, error) {
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, gatewayTransactionID)
	}
	return &ports.StatusResult{Status: domain.PaymentPending, PaidAmount: decimal.Zero}, nil
}
