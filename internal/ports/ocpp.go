package ports

import (
	"context"
	"encoding/json"
	"time"
)

// CommandSender is the outbound half of the OCPP gateway: issue a CALL to a
// connected charge point and wait for its CALLRESULT.
type CommandSender interface {
	// Call sends action/payload and blocks until the charger answers, the
	// timeout elapses, or ctx is done. Returns the CALLRESULT payload.
	Call(ctx context.Context, chargePointID, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error)
	IsConnected(chargePointID string) bool
	ConnectedChargePoints() []string
}

// OCPPCommands is the typed command surface exposed to the HTTP control plane.
type OCPPCommands interface {
	RemoteStartTransaction(ctx context.Context, chargePointID, idTag string, connectorID int) (status string, err error)
	RemoteStopTransaction(ctx context.Context, chargePointID string, transactionID int) (status string, err error)
	GetConfiguration(ctx context.Context, chargePointID string, keys []string) (json.RawMessage, error)
	ChangeConfiguration(ctx context.Context, chargePointID, key, value string) (status string, err error)
	ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (status string, err error)
	ClearCache(ctx context.Context, chargePointID string) (status string, err error)
	Reset(ctx context.Context, chargePointID, resetType string) (status string, err error)
	UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (status string, err error)
	GetDiagnostics(ctx context.Context, chargePointID, location string) (fileName string, err error)
	UpdateFirmware(ctx context.Context, chargePointID, location string, retrieveDate time.Time) error
	ReserveNow(ctx context.Context, chargePointID string, connectorID int, expiryDate time.Time, idTag string, reservationID int) (status string, err error)
	CancelReservation(ctx context.Context, chargePointID string, reservationID int) (status string, err error)
	DataTransfer(ctx context.Context, chargePointID, vendorID, messageID, data string) (status string, responseData string, err error)
	GetLocalListVersion(ctx context.Context, chargePointID string) (version int, err error)
	SendLocalList(ctx context.Context, chargePointID string, listVersion int, updateType string, entries []LocalListEntry) (status string, err error)
	TriggerMessage(ctx context.Context, chargePointID, requestedMessage string, connectorID *int) (status string, err error)
	GetCompositeSchedule(ctx context.Context, chargePointID string, connectorID, durationS int) (json.RawMessage, error)
	ClearChargingProfile(ctx context.Context, chargePointID string, profileID *int) (status string, err error)
	SetChargingProfile(ctx context.Context, chargePointID string, connectorID int, profile json.RawMessage) (status string, err error)
}

type LocalListEntry struct {
	IDTag  string `json:"idTag"`
	Status string `json:"status,omitempty"`
}
