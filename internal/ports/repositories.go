package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chargenet/csms/internal/domain"
)

// Repositories return (nil, nil) when a row does not exist so callers can
// distinguish absence from infrastructure failure.

type ChargerRepository interface {
	Create(ctx context.Context, charger *domain.Charger) error
	GetByChargePointID(ctx context.Context, chargePointID string) (*domain.Charger, error)
	GetByID(ctx context.Context, id uint) (*domain.Charger, error)
	List(ctx context.Context) ([]*domain.Charger, error)
	Update(ctx context.Context, charger *domain.Charger) error
	UpdateHeartbeat(ctx context.Context, chargePointID string, at time.Time) error
	UpdateAvailability(ctx context.Context, chargePointID string, availability domain.ChargerAvailability) error
	Delete(ctx context.Context, id uint) error
}

type SessionFilter struct {
	ChargePointID string
	UserID        *uint
	Status        domain.SessionStatus
	Limit         int
	Offset        int
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.ChargingSession) error
	Update(ctx context.Context, session *domain.ChargingSession) error
	Delete(ctx context.Context, id uint) error
	GetByID(ctx context.Context, id uint) (*domain.ChargingSession, error)
	GetByTransactionID(ctx context.Context, transactionID int) (*domain.ChargingSession, error)
	// GetOpenByChargePoint returns the newest pending or active session.
	GetOpenByChargePoint(ctx context.Context, chargePointID string) (*domain.ChargingSession, error)
	List(ctx context.Context, filter SessionFilter) ([]*domain.ChargingSession, error)
	NextTransactionID(ctx context.Context) (int, error)

	CreateMeterValue(ctx context.Context, mv *domain.MeterValue) error
	ListMeterValues(ctx context.Context, chargePointID string, transactionID *int, limit int) ([]*domain.MeterValue, error)

	CreateFault(ctx context.Context, fault *domain.Fault) error
	HasUnclearedFault(ctx context.Context, chargePointID, faultType string) (bool, error)
	ClearFaults(ctx context.Context, chargePointID string, at time.Time) error
	ListFaults(ctx context.Context, chargePointID string, includeCleared bool) ([]*domain.Fault, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	List(ctx context.Context, limit, offset int) ([]*domain.User, error)
	CountAdmins(ctx context.Context) (int64, error)
}

type WalletRepository interface {
	// InTx runs fn inside a database transaction; the repository passed to fn
	// is scoped to that transaction.
	InTx(ctx context.Context, fn func(tx WalletRepository) error) error
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uint) (*domain.Wallet, error)
	// LockByUserID acquires a FOR UPDATE row lock; only valid inside InTx.
	LockByUserID(ctx context.Context, userID uint) (*domain.Wallet, error)
	Update(ctx context.Context, wallet *domain.Wallet) error

	CreateTransaction(ctx context.Context, txn *domain.WalletTransaction) error
	UpdateTransaction(ctx context.Context, txn *domain.WalletTransaction) error
	GetTransactionByID(ctx context.Context, id uint) (*domain.WalletTransaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.WalletTransaction, error)
	GetTopupByGatewayReference(ctx context.Context, ref string) (*domain.WalletTransaction, error)
	// GetDebitBySessionID returns the completed charge_payment row for a
	// session, if the session has already been settled.
	GetDebitBySessionID(ctx context.Context, sessionID uint) (*domain.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]*domain.WalletTransaction, error)
	// SumCompletedTopupsSince totals completed topup amounts for the daily cap.
	SumCompletedTopupsSince(ctx context.Context, userID uint, since time.Time) (decimal.Decimal, error)

	CreateReward(ctx context.Context, reward *domain.Reward) error
	ListRewards(ctx context.Context, userID uint) ([]*domain.Reward, error)
}

type PaymentRepository interface {
	InTx(ctx context.Context, fn func(tx PaymentRepository) error) error
	Create(ctx context.Context, payment *domain.PaymentTransaction) error
	Update(ctx context.Context, payment *domain.PaymentTransaction) error
	GetByID(ctx context.Context, id uint) (*domain.PaymentTransaction, error)
	GetByRef(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error)
	// LockByRef acquires a FOR UPDATE row lock; only valid inside InTx.
	LockByRef(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error)
	// LockByGatewayTransactionID is the callback fallback lookup for gateways
	// that echo their own transaction id instead of ours.
	LockByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*domain.PaymentTransaction, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*domain.PaymentTransaction, error)
	ListByStatus(ctx context.Context, status domain.PaymentStatus, limit int) ([]*domain.PaymentTransaction, error)

	GetGatewayConfig(ctx context.Context, gatewayName string) (*domain.PaymentGatewayConfig, error)
	ListGatewayConfigs(ctx context.Context, activeOnly bool) ([]*domain.PaymentGatewayConfig, error)
	SaveGatewayConfig(ctx context.Context, cfg *domain.PaymentGatewayConfig) error
}

type TicketFilter struct {
	UserID     *uint
	Department string
	StaffID    *uint
	Status     domain.TicketStatus
	Priority   domain.TicketPriority
	Limit      int
	Offset     int
}

type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.SupportTicket) error
	Update(ctx context.Context, ticket *domain.SupportTicket) error
	GetByID(ctx context.Context, id uint) (*domain.SupportTicket, error)
	GetByNumber(ctx context.Context, ticketNumber string) (*domain.SupportTicket, error)
	List(ctx context.Context, filter TicketFilter) ([]*domain.SupportTicket, error)
	// CountCreatedOn counts tickets created on the given calendar day, used
	// for the daily ticket-number sequence.
	CountCreatedOn(ctx context.Context, day time.Time) (int64, error)
	CountByStatus(ctx context.Context, department string) (map[domain.TicketStatus]int64, error)
	// ListDueSoon returns unresolved tickets with due_at before the horizon.
	ListDueSoon(ctx context.Context, horizon time.Time) ([]*domain.SupportTicket, error)

	CreateMessage(ctx context.Context, msg *domain.TicketMessage) error
	ListMessages(ctx context.Context, ticketID uint) ([]*domain.TicketMessage, error)

	CreateStaff(ctx context.Context, staff *domain.SupportStaff) error
	UpdateStaff(ctx context.Context, staff *domain.SupportStaff) error
	GetStaffByID(ctx context.Context, id uint) (*domain.SupportStaff, error)
	GetStaffByUserID(ctx context.Context, userID uint) (*domain.SupportStaff, error)
	ListStaff(ctx context.Context, department string, activeOnly bool) ([]*domain.SupportStaff, error)
	// CountOpenAssigned counts open + in_progress tickets held by a staff member.
	CountOpenAssigned(ctx context.Context, staffID uint) (int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	List(ctx context.Context, entityType string, limit, offset int) ([]*domain.AuditLog, error)
}

type MaintenanceRepository interface {
	Create(ctx context.Context, record *domain.MaintenanceRecord) error
	Update(ctx context.Context, record *domain.MaintenanceRecord) error
	GetByID(ctx context.Context, id uint) (*domain.MaintenanceRecord, error)
	List(ctx context.Context, chargePointID string, limit, offset int) ([]*domain.MaintenanceRecord, error)
	Delete(ctx context.Context, id uint) error
}

type PricingRepository interface {
	GetActive(ctx context.Context) (*domain.Pricing, error)
	Save(ctx context.Context, pricing *domain.Pricing) error
	List(ctx context.Context) ([]*domain.Pricing, error)
}
