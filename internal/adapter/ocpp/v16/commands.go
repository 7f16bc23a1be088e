package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chargenet/csms/internal/ports"
)

// Typed wrappers over Server.Call for every central-system initiated action.
// Server implements ports.OCPPCommands.

type statusResp struct {
	Status string `json:"status"`
}

func (s *Server) callForStatus(ctx context.Context, chargePointID, action string, payload interface{}) (string, error) {
	raw, err := s.Call(ctx, chargePointID, action, payload, DefaultCallTimeout)
	if err != nil {
		return "", err
	}
	var resp statusResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("parse %s response: %w", action, err)
	}
	return resp.Status, nil
}

func (s *Server) RemoteStartTransaction(ctx context.Context, chargePointID, idTag string, connectorID int) (string, error) {
	payload := map[string]interface{}{"idTag": idTag}
	if connectorID > 0 {
		payload["connectorId"] = connectorID
	}
	return s.callForStatus(ctx, chargePointID, "RemoteStartTransaction", payload)
}

func (s *Server) RemoteStopTransaction(ctx context.Context, chargePointID string, transactionID int) (string, error) {
	return s.callForStatus(ctx, chargePointID, "RemoteStopTransaction", map[string]interface{}{
		"transactionId": transactionID,
	})
}

func (s *Server) GetConfiguration(ctx context.Context, chargePointID string, keys []string) (json.RawMessage, error) {
	payload := map[string]interface{}{}
	if len(keys) > 0 {
		payload["key"] = keys
	}
	return s.Call(ctx, chargePointID, "GetConfiguration", payload, DefaultCallTimeout)
}

func (s *Server) ChangeConfiguration(ctx context.Context, chargePointID, key, value string) (string, error) {
	return s.callForStatus(ctx, chargePointID, "ChangeConfiguration", map[string]string{
		"key":   key,
		"value": value,
	})
}

func (s *Server) ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error) {
	return s.callForStatus(ctx, chargePointID, "ChangeAvailability", map[string]interface{}{
		"connectorId": connectorID,
		"type":        availabilityType,
	})
}

func (s *Server) ClearCache(ctx context.Context, chargePointID string) (string, error) {
	return s.callForStatus(ctx, chargePointID, "ClearCache", map[string]interface{}{})
}

func (s *Server) Reset(ctx context.Context, chargePointID, resetType string) (string, error) {
	return s.callForStatus(ctx, chargePointID, "Reset", map[string]string{"type": resetType})
}

func (s *Server) UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (string, error) {
	return s.callForStatus(ctx, chargePointID, "UnlockConnector", map[string]interface{}{
		"connectorId": connectorID,
	})
}

func (s *Server) GetDiagnostics(ctx context.Context, chargePointID, location string) (string, error) {
	raw, err := s.Call(ctx, chargePointID, "GetDiagnostics", map[string]string{
		"location": location,
	}, LongCallTimeout)
	if err != nil {
		return "", err
	}
	var resp struct {
		FileName string `json:"fileName"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("parse GetDiagnostics response: %w", err)
	}
	return resp.FileName, nil
}

// UpdateFirmware has no response fields; a CALLRESULT is a plain ack.
func (s *Server) UpdateFirmware(ctx context.Context, chargePointID, location string, retrieveDate time.Time) error {
	_, err := s.Call(ctx, chargePointID, "UpdateFirmware", map[string]string{
		"location":     location,
		"retrieveDate": retrieveDate.UTC().Format(time.RFC3339),
	}, LongCallTimeout)
	return err
}

func (s *Server) ReserveNow(ctx context.Context, chargePointID string, connectorID int, expiryDate time.Time, idTag string, reservationID int) (string, error) {
	return s.callForStatus(ctx, chargePointID, "ReserveNow", map[string]interface{}{
		"connectorId":   connectorID,
		"expiryDate":    expiryDate.UTC().Format(time.RFC3339),
		"idTag":         idTag,
		"reservationId": reservationID,
	})
}

func (s *Server) CancelReservation(ctx context.Context, chargePointID string, reservationID int) (string, error) {
	return s.callForStatus(ctx, chargePointID, "CancelReservation", map[string]interface{}{
		"reservationId": reservationID,
	})
}

func (s *Server) DataTransfer(ctx context.Context, chargePointID, vendorID, messageID, data string) (string, string, error) {
	payload := map[string]string{"vendorId": vendorID}
	if messageID != "" {
		payload["messageId"] = messageID
	}
	if data != "" {
		payload["data"] = data
	}
	raw, err := s.Call(ctx, chargePointID, "DataTransfer", payload, DefaultCallTimeout)
	if err != nil {
		return "", "", err
	}
	var resp struct {
		Status string `json:"status"`
		Data   string `json:"data,omitempty"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", "", fmt.Errorf("parse DataTransfer response: %w", err)
	}
	return resp.Status, resp.Data, nil
}

func (s *Server) GetLocalListVersion(ctx context.Context, chargePointID string) (int, error) {
	raw, err := s.Call(ctx, chargePointID, "GetLocalListVersion", map[string]interface{}{}, DefaultCallTimeout)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ListVersion int `json:"listVersion"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("parse GetLocalListVersion response: %w", err)
	}
	return resp.ListVersion, nil
}

func (s *Server) SendLocalList(ctx context.Context, chargePointID string, listVersion int, updateType string, entries []ports.LocalListEntry) (string, error) {
	auth := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		entry := map[string]interface{}{"idTag": e.IDTag}
		if e.Status != "" {
			entry["idTagInfo"] = map[string]string{"status": e.Status}
		}
		auth = append(auth, entry)
	}
	return s.callForStatus(ctx, chargePointID, "SendLocalList", map[string]interface{}{
		"listVersion":            listVersion,
		"updateType":             updateType,
		"localAuthorizationList": auth,
	})
}

func (s *Server) TriggerMessage(ctx context.Context, chargePointID, requestedMessage string, connectorID *int) (string, error) {
	payload := map[string]interface{}{"requestedMessage": requestedMessage}
	if connectorID != nil {
		payload["connectorId"] = *connectorID
	}
	return s.callForStatus(ctx, chargePointID, "TriggerMessage", payload)
}

func (s *Server) GetCompositeSchedule(ctx context.Context, chargePointID string, connectorID, durationS int) (json.RawMessage, error) {
	return s.Call(ctx, chargePointID, "GetCompositeSchedule", map[string]interface{}{
		"connectorId": connectorID,
		"duration":    durationS,
	}, DefaultCallTimeout)
}

func (s *Server) ClearChargingProfile(ctx context.Context, chargePointID string, profileID *int) (string, error) {
	payload := map[string]interface{}{}
	if profileID != nil {
		payload["id"] = *profileID
	}
	return s.callForStatus(ctx, chargePointID, "ClearChargingProfile", payload)
}

func (s *Server) SetChargingProfile(ctx context.Context, chargePointID string, connectorID int, profile json.RawMessage) (string, error) {
	return s.callForStatus(ctx, chargePointID, "SetChargingProfile", map[string]interface{}{
		"connectorId":        connectorID,
		"csChargingProfiles": profile,
	})
}
