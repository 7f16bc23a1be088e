package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const WalletCurrency = "MYR"

var (
	MinTopupAmount   = decimal.NewFromInt(1)
	MaxTopupAmount   = decimal.NewFromInt(500)
	DailyTopupCap    = decimal.NewFromInt(2000)
	PointsBonusFloor = decimal.NewFromInt(50)
)

type Wallet struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	UserID    uint            `json:"user_id" gorm:"uniqueIndex"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(12,2)"`
	Points    int64           `json:"points"`
	Currency  string          `json:"currency" gorm:"size:8;default:MYR"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type WalletTransactionType string

const (
	WalletTxnTopup          WalletTransactionType = "topup"
	WalletTxnChargePayment  WalletTransactionType = "charge_payment"
	WalletTxnPointsRedeemed WalletTransactionType = "points_redeemed"
	WalletTxnRefund         WalletTransactionType = "refund"
)

type WalletTransactionStatus string

const (
	WalletTxnPending   WalletTransactionStatus = "pending"
	WalletTxnCompleted WalletTransactionStatus = "completed"
	WalletTxnFailed    WalletTransactionStatus = "failed"
)

type WalletTransaction struct {
	ID               uint                    `json:"id" gorm:"primaryKey"`
	WalletID         uint                    `json:"wallet_id" gorm:"index"`
	UserID           uint                    `json:"user_id" gorm:"index"`
	Type             WalletTransactionType   `json:"type" gorm:"size:16;index"`
	Status           WalletTransactionStatus `json:"status" gorm:"size:16;index"`
	Amount           decimal.Decimal         `json:"amount" gorm:"type:decimal(12,2)"`
	BalanceBefore    decimal.Decimal         `json:"balance_before" gorm:"type:decimal(12,2)"`
	BalanceAfter     decimal.Decimal         `json:"balance_after" gorm:"type:decimal(12,2)"`
	PointsAmount     int64                   `json:"points_amount"`
	PointsBefore     int64                   `json:"points_before"`
	PointsAfter      int64                   `json:"points_after"`
	Method           string                  `json:"method,omitempty" gorm:"size:32"`
	Description      string                  `json:"description,omitempty"`
	IdempotencyKey   *string                 `json:"idempotency_key,omitempty" gorm:"uniqueIndex;size:64"`
	GatewayReference string                  `json:"gateway_reference,omitempty" gorm:"index;size:64"`
	SessionID        *uint                   `json:"session_id,omitempty" gorm:"index"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// TopupPoints returns the loyalty points earned for a completed topup:
// 10 points per whole ringgit, plus a 50-point bonus at RM 50 and above.
func TopupPoints(amount decimal.Decimal) int64 {
	points := amount.Floor().IntPart() * 10
	if amount.GreaterThanOrEqual(PointsBonusFloor) {
		points += 50
	}
	return points
}

type Reward struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	UserID     uint            `json:"user_id" gorm:"index"`
	RewardType string          `json:"reward_type" gorm:"size:32"`
	PointsCost int64           `json:"points_cost"`
	Value      decimal.Decimal `json:"value" gorm:"type:decimal(12,2)"`
	Status     string          `json:"status" gorm:"size:16;default:issued"`
	RedeemedAt time.Time       `json:"redeemed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

type RewardItem struct {
	PointsCost int64
	Value      decimal.Decimal
}

// RewardCatalog is the fixed redemption menu. Values are wallet credit in MYR;
// premium_membership grants status only, no credit.
var RewardCatalog = map[string]RewardItem{
	"voucher_5":          {PointsCost: 500, Value: decimal.NewFromInt(5)},
	"voucher_10":         {PointsCost: 1000, Value: decimal.NewFromInt(10)},
	"free_charge":        {PointsCost: 2000, Value: decimal.NewFromInt(25)},
	"voucher_25":         {PointsCost: 2500, Value: decimal.NewFromInt(25)},
	"premium_membership": {PointsCost: 5000, Value: decimal.Zero},
}
