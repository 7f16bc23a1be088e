package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/ports"
)

// Handlers processes OCPP 1.6 CALLs from charge points. Every handler
// returns a schema-valid response payload; errors bubble to the server which
// substitutes a benign CALLRESULT.
type Handlers struct {
	chargers ports.ChargerService
	sessions ports.SessionService
	log      *zap.Logger
}

func NewHandlers(chargers ports.ChargerService, sessions ports.SessionService, log *zap.Logger) *Handlers {
	return &Handlers{
		chargers: chargers,
		sessions: sessions,
		log:      log,
	}
}

// HandleMessage routes an OCPP 1.6 action to its handler.
func (h *Handlers) HandleMessage(chargePointID, action string, payload json.RawMessage) (interface{}, error) {
	ctx := context.Background()

	switch action {
	case "BootNotification":
		return h.handleBootNotification(ctx, chargePointID, payload)
	case "Heartbeat":
		return h.handleHeartbeat(ctx, chargePointID)
	case "StatusNotification":
		return h.handleStatusNotification(ctx, chargePointID, payload)
	case "StartTransaction":
		return h.handleStartTransaction(ctx, chargePointID, payload)
	case "StopTransaction":
		return h.handleStopTransaction(ctx, chargePointID, payload)
	case "MeterValues":
		return h.handleMeterValues(ctx, chargePointID, payload)
	case "Authorize":
		return h.handleAuthorize(ctx, chargePointID, payload)
	case "DataTransfer":
		return map[string]string{"status": "Accepted"}, nil
	case "DiagnosticsStatusNotification", "FirmwareStatusNotification":
		h.log.Info("OCPP status notification",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", action),
			zap.ByteString("payload", payload),
		)
		return map[string]interface{}{}, nil
	default:
		h.log.Warn("Unknown OCPP 1.6 action",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", action))
		return map[string]interface{}{}, nil
	}
}

// --- OCPP 1.6 request/response types ---

type bootNotificationReq struct {
	ChargePointVendor string `json:"chargePointVendor"`
	ChargePointModel  string `json:"chargePointModel"`
	ChargePointSerial string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion   string `json:"firmwareVersion,omitempty"`
}

type bootNotificationResp struct {
	Status      string `json:"status"`
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

func (h *Handlers) handleBootNotification(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req bootNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid BootNotification: %w", err)
	}

	h.log.Info("BootNotification",
		zap.String("charge_point_id", chargePointID),
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
		zap.String("firmware", req.FirmwareVersion),
	)

	interval, err := h.chargers.OnBootNotification(ctx, chargePointID, ports.BootInfo{
		Vendor:          req.ChargePointVendor,
		Model:           req.ChargePointModel,
		SerialNumber:    req.ChargePointSerial,
		FirmwareVersion: req.FirmwareVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("boot notification: %w", err)
	}

	if err := h.sessions.ReconcileOnBoot(ctx, chargePointID); err != nil {
		h.log.Warn("Session reconciliation on boot failed",
			zap.String("charge_point_id", chargePointID),
			zap.Error(err))
	}

	return bootNotificationResp{
		Status:      "Accepted",
		CurrentTime: time.Now().UTC().Format(time.RFC3339),
		Interval:    interval,
	}, nil
}

func (h *Handlers) handleHeartbeat(ctx context.Context, chargePointID string) (interface{}, error) {
	if err := h.chargers.OnHeartbeat(ctx, chargePointID); err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	return map[string]string{
		"currentTime": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

type statusNotificationReq struct {
	ConnectorId     int    `json:"connectorId"`
	ErrorCode       string `json:"errorCode"`
	Status          string `json:"status"`
	Info            string `json:"info,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	VendorErrorCode string `json:"vendorErrorCode,omitempty"`
}

func (h *Handlers) handleStatusNotification(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req statusNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StatusNotification: %w", err)
	}

	h.log.Info("StatusNotification",
		zap.String("charge_point_id", chargePointID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("status", req.Status),
		zap.String("error_code", req.ErrorCode),
	)

	// Status reports also refresh the heartbeat.
	if err := h.chargers.OnHeartbeat(ctx, chargePointID); err != nil {
		h.log.Warn("Heartbeat refresh failed", zap.Error(err))
	}

	if err := h.sessions.OnStatusNotification(ctx, chargePointID, req.ConnectorId,
		req.Status, req.ErrorCode, req.Info, parseOCPPTime(req.Timestamp)); err != nil {
		return nil, fmt.Errorf("status notification: %w", err)
	}

	return map[string]interface{}{}, nil
}

type startTransactionReq struct {
	ConnectorId   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	MeterStart    int    `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
	TransactionId int    `json:"transactionId,omitempty"`
	ReservationId *int   `json:"reservationId,omitempty"`
}

func (h *Handlers) handleStartTransaction(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req startTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StartTransaction: %w", err)
	}

	h.log.Info("StartTransaction",
		zap.String("charge_point_id", chargePointID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("id_tag", req.IdTag),
		zap.Int("meter_start", req.MeterStart),
	)

	txnID, err := h.sessions.OnStartTransaction(ctx, chargePointID, req.ConnectorId,
		req.IdTag, req.MeterStart, parseOCPPTime(req.Timestamp), req.TransactionId)
	if err != nil {
		return nil, fmt.Errorf("start transaction: %w", err)
	}

	return map[string]interface{}{
		"transactionId": txnID,
		"idTagInfo":     map[string]string{"status": "Accepted"},
	}, nil
}

type stopTransactionReq struct {
	TransactionId int    `json:"transactionId"`
	MeterStop     int    `json:"meterStop"`
	Timestamp     string `json:"timestamp"`
	IdTag         string `json:"idTag,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (h *Handlers) handleStopTransaction(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req stopTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid StopTransaction: %w", err)
	}

	h.log.Info("StopTransaction",
		zap.String("charge_point_id", chargePointID),
		zap.Int("transaction_id", req.TransactionId),
		zap.Int("meter_stop", req.MeterStop),
		zap.String("reason", req.Reason),
	)

	if err := h.sessions.OnStopTransaction(ctx, chargePointID, req.TransactionId,
		req.MeterStop, parseOCPPTime(req.Timestamp), req.Reason); err != nil {
		return nil, fmt.Errorf("stop transaction: %w", err)
	}

	return map[string]interface{}{
		"idTagInfo": map[string]string{"status": "Accepted"},
	}, nil
}

type sampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Phase     string `json:"phase,omitempty"`
}

type meterValueEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []sampledValue `json:"sampledValue"`
}

type meterValuesReq struct {
	ConnectorId   int               `json:"connectorId"`
	TransactionId *int              `json:"transactionId,omitempty"`
	MeterValue    []meterValueEntry `json:"meterValue"`
}

func (h *Handlers) handleMeterValues(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req meterValuesReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid MeterValues: %w", err)
	}

	// Meter reports also refresh the heartbeat.
	if err := h.chargers.OnHeartbeat(ctx, chargePointID); err != nil {
		h.log.Warn("Heartbeat refresh failed", zap.Error(err))
	}

	samples := make([]ports.MeterSample, 0, len(req.MeterValue))
	for _, entry := range req.MeterValue {
		sample := ports.MeterSample{
			Timestamp:     parseOCPPTime(entry.Timestamp),
			TransactionID: req.TransactionId,
		}
		for _, sv := range entry.SampledValue {
			value, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			switch sv.Measurand {
			case "Voltage":
				v := value
				sample.VoltageV = &v
			case "Current.Import":
				v := value
				sample.CurrentA = &v
			case "Power.Active.Import":
				v := value
				if sv.Unit == "W" {
					v = value / 1000
				}
				sample.PowerKW = &v
			case "Energy.Active.Import.Register", "":
				// Energy register is the default measurand; reported
				// in Wh unless the unit says kWh.
				v := value
				if sv.Unit != "kWh" {
					v = value / 1000
				}
				sample.EnergyKWh = &v
			}
		}
		samples = append(samples, sample)
	}

	if err := h.sessions.OnMeterValues(ctx, chargePointID, samples); err != nil {
		return nil, fmt.Errorf("meter values: %w", err)
	}
	return map[string]interface{}{}, nil
}

type authorizeReq struct {
	IdTag string `json:"idTag"`
}

func (h *Handlers) handleAuthorize(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req authorizeReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid Authorize: %w", err)
	}

	accepted, err := h.chargers.Authorize(ctx, chargePointID, req.IdTag)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	status := "Accepted"
	if !accepted {
		status = "Invalid"
	}
	return map[string]interface{}{
		"idTagInfo": map[string]string{"status": status},
	}, nil
}

// parseOCPPTime parses the charger-reported RFC3339 timestamp, falling back
// to the server clock for absent or malformed values.
func parseOCPPTime(value string) time.Time {
	if value == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02T15:04:05.000Z07:00", value); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
