package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentPendingApproval PaymentStatus = "pending_approval"
	PaymentProcessing      PaymentStatus = "processing"
	PaymentSuccess         PaymentStatus = "success"
	PaymentFailed          PaymentStatus = "failed"
	PaymentExpired         PaymentStatus = "expired"
	PaymentRefunded        PaymentStatus = "refunded"
)

// PaymentExpiry is how long an unpaid payment stays actionable.
const PaymentExpiry = time.Hour

// JSONMap stores loosely-typed gateway payloads in a jsonb column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("jsonmap: unsupported scan type %T", value)
	}
	return json.Unmarshal(b, m)
}

type PaymentTransaction struct {
	ID                   uint            `json:"id" gorm:"primaryKey"`
	TransactionRef       string          `json:"transaction_ref" gorm:"uniqueIndex;size:32"`
	UserID               uint            `json:"user_id" gorm:"index"`
	GatewayName          string          `json:"gateway_name" gorm:"size:32;index"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty" gorm:"size:128"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:decimal(12,2)"`
	Currency             string          `json:"currency" gorm:"size:8;default:MYR"`
	Status               PaymentStatus   `json:"status" gorm:"size:24;index"`
	PaymentURL           string          `json:"payment_url,omitempty"`
	Purpose              string          `json:"purpose,omitempty" gorm:"size:32;default:topup"`
	WalletTransactionID  *uint           `json:"wallet_transaction_id,omitempty" gorm:"index"`
	CallbackPayload      JSONMap         `json:"callback_payload,omitempty" gorm:"type:jsonb"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	ExpiredAt            *time.Time      `json:"expired_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the payment can no longer change state through
// callbacks or polling.
func (p *PaymentTransaction) IsTerminal() bool {
	switch p.Status {
	case PaymentSuccess, PaymentFailed, PaymentExpired, PaymentRefunded:
		return true
	}
	return false
}

type PaymentGatewayConfig struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	GatewayName string    `json:"gateway_name" gorm:"uniqueIndex;size:32"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	IsSandbox   bool      `json:"is_sandbox" gorm:"default:true"`
	APIKey      string    `json:"-"`
	APISecret   string    `json:"-"`
	ExtraConfig JSONMap   `json:"extra_config,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
