package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusStopping  SessionStatus = "stopping"
	SessionStatusCompleted SessionStatus = "completed"
)

// PlaceholderTransactionID marks a session pre-allocated by a remote start
// before the charger has confirmed StartTransaction with a real id.
const PlaceholderTransactionID = -1

type ChargingSession struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	ChargePointID string          `json:"charge_point_id" gorm:"index;size:64"`
	TransactionID int             `json:"transaction_id" gorm:"index"`
	ConnectorID   int             `json:"connector_id"`
	UserTag       string          `json:"user_tag" gorm:"size:64"`
	UserID        *uint           `json:"user_id,omitempty" gorm:"index"`
	Status        SessionStatus   `json:"status" gorm:"index;size:16"`
	StartTime     time.Time       `json:"start_time"`
	StopTime      *time.Time      `json:"stop_time,omitempty"`
	MeterStart    int             `json:"meter_start"` // Wh
	MeterStop     *int            `json:"meter_stop,omitempty"`
	EnergyKWh     float64         `json:"energy_kwh"`
	Cost          decimal.Decimal `json:"cost" gorm:"type:decimal(12,2)"`
	Currency      string          `json:"currency" gorm:"size:8;default:MYR"`
	StopReason    string          `json:"stop_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsOpen reports whether the session still blocks new sessions on its charger.
func (s *ChargingSession) IsOpen() bool {
	return s.Status == SessionStatusPending || s.Status == SessionStatusActive
}

// IsPlaceholder reports whether the session is awaiting a real transaction id.
func (s *ChargingSession) IsPlaceholder() bool {
	return s.TransactionID <= 0
}

// MeterValue is append-only telemetry. Rows are never mutated.
type MeterValue struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ChargePointID string    `json:"charge_point_id" gorm:"index;size:64"`
	TransactionID *int      `json:"transaction_id,omitempty" gorm:"index"`
	Timestamp     time.Time `json:"timestamp"`
	VoltageV      *float64  `json:"voltage_v,omitempty"`
	CurrentA      *float64  `json:"current_a,omitempty"`
	PowerKW       *float64  `json:"power_kw,omitempty"`
	EnergyKWh     *float64  `json:"energy_kwh,omitempty"` // cumulative register
	CreatedAt     time.Time `json:"created_at"`
}

type Fault struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	ChargePointID string     `json:"charge_point_id" gorm:"index;size:64"`
	FaultType     string     `json:"fault_type" gorm:"size:64"`
	Message       string     `json:"message"`
	Timestamp     time.Time  `json:"timestamp"`
	Cleared       bool       `json:"cleared" gorm:"index"`
	ClearedAt     *time.Time `json:"cleared_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MapOCPPStatus translates an OCPP 1.6 ChargePointStatus into the stored
// availability value.
func MapOCPPStatus(status string) ChargerAvailability {
	switch status {
	case "Available":
		return AvailabilityAvailable
	case "Preparing":
		return AvailabilityPreparing
	case "Charging":
		return AvailabilityCharging
	case "SuspendedEVSE", "SuspendedEV", "Finishing":
		return AvailabilityPreparing
	case "Reserved", "Unavailable":
		return AvailabilityUnavailable
	case "Faulted":
		return AvailabilityFaulted
	default:
		return AvailabilityUnknown
	}
}

// MapOCPPErrorCode normalizes an OCPP errorCode into the fault ledger's
// fault_type vocabulary.
func MapOCPPErrorCode(errorCode string) string {
	switch errorCode {
	case "OverCurrentFailure":
		return "overcurrent"
	case "GroundFailure":
		return "ground_fault"
	case "OtherError":
		return "cp_error"
	case "HighTemperature":
		return "high_temperature"
	case "PowerMeterFailure":
		return "power_meter_failure"
	default:
		return toSnake(errorCode)
	}
}

func toSnake(s string) string {
	out := make([]rune, 0, len(s)+4)
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
