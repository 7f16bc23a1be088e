package domain

import (
	"time"
)

type ChargerStatus string

const (
	ChargerStatusOnline  ChargerStatus = "online"
	ChargerStatusOffline ChargerStatus = "offline"
)

type ChargerAvailability string

const (
	AvailabilityAvailable   ChargerAvailability = "available"
	AvailabilityPreparing   ChargerAvailability = "preparing"
	AvailabilityCharging    ChargerAvailability = "charging"
	AvailabilityFaulted     ChargerAvailability = "faulted"
	AvailabilityUnavailable ChargerAvailability = "unavailable"
	AvailabilityUnknown     ChargerAvailability = "unknown"
)

// HeartbeatOnlineWindow is the maximum last_heartbeat age for a charger to be
// considered online by the read path. Deliberately much shorter than the
// default advertised heartbeat interval (7200s): StatusNotifications and
// MeterValues also refresh last_heartbeat, so an actively reporting charger
// stays online between heartbeats.
const HeartbeatOnlineWindow = 900 * time.Second

const (
	DefaultHeartbeatIntervalS  = 7200
	DefaultNumberOfConnectors  = 1
	DefaultMeterValueIntervalS = 60
)

type Charger struct {
	ID                  uint                `json:"id" gorm:"primaryKey"`
	ChargePointID       string              `json:"charge_point_id" gorm:"uniqueIndex;size:64"`
	Name                string              `json:"name"`
	Vendor              string              `json:"vendor"`
	Model               string              `json:"model"`
	SerialNumber        string              `json:"serial_number"`
	FirmwareVersion     string              `json:"firmware_version"`
	Status              ChargerStatus       `json:"status"`
	Availability        ChargerAvailability `json:"availability"`
	LastHeartbeat       *time.Time          `json:"last_heartbeat,omitempty"`
	HeartbeatIntervalS  int                 `json:"heartbeat_interval_s" gorm:"default:7200"`
	NumberOfConnectors  int                 `json:"number_of_connectors" gorm:"default:1"`
	MeterValueIntervalS int                 `json:"meter_value_interval_s" gorm:"default:60"`
	Location            string              `json:"location,omitempty"`
	Latitude            float64             `json:"latitude,omitempty"`
	Longitude           float64             `json:"longitude,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// EffectiveStatus derives online-ness from heartbeat age rather than the
// stored status, so a charger that dropped its socket without a Close frame
// does not flap the operator view.
func (c *Charger) EffectiveStatus(now time.Time) ChargerStatus {
	if c.LastHeartbeat == nil {
		return ChargerStatusOffline
	}
	if now.Sub(*c.LastHeartbeat) <= HeartbeatOnlineWindow {
		return ChargerStatusOnline
	}
	return ChargerStatusOffline
}
