package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

type MaintenanceRecord struct {
	ID            uint              `json:"id" gorm:"primaryKey"`
	ChargePointID string            `json:"charge_point_id" gorm:"index;size:64"`
	FaultID       *uint             `json:"fault_id,omitempty" gorm:"index"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Status        MaintenanceStatus `json:"status" gorm:"size:16;index"`
	Technician    string            `json:"technician,omitempty"`
	ScheduledFor  *time.Time        `json:"scheduled_for,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type Pricing struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"size:64"`
	PricePerKWh decimal.Decimal `json:"price_per_kwh" gorm:"type:decimal(12,2)"`
	Currency    string          `json:"currency" gorm:"size:8;default:MYR"`
	IsActive    bool            `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DefaultPricePerKWh seeds the pricing table when no active row exists.
var DefaultPricePerKWh = decimal.RequireFromString("0.50")
