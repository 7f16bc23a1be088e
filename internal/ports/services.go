package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chargenet/csms/internal/domain"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthService interface {
	Register(ctx context.Context, name, email, phone, password string) (*domain.User, error)
	Login(ctx context.Context, email, password, clientIP string) (*domain.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	ValidateAccessToken(ctx context.Context, token string) (*AuthClaims, error)
	GetUser(ctx context.Context, userID uint) (*domain.User, error)
	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	EnsureAdmin(ctx context.Context, name, email, password string) error
}

type AuthClaims struct {
	UserID  uint
	Email   string
	IsAdmin bool
}

type RemoteStartResult struct {
	Session    *domain.ChargingSession `json:"session"`
	Accepted   bool                    `json:"accepted"`
	BestEffort bool                    `json:"best_effort,omitempty"`
	Note       string                  `json:"note,omitempty"`
}

type RemoteStopResult struct {
	Accepted   bool   `json:"accepted"`
	BestEffort bool   `json:"best_effort,omitempty"`
	Note       string `json:"note,omitempty"`
}

type MeterSample struct {
	Timestamp     time.Time
	TransactionID *int
	VoltageV      *float64
	CurrentA      *float64
	PowerKW       *float64
	EnergyKWh     *float64
}

// SessionService is the session engine: the charger-facing half is invoked by
// the OCPP gateway, the operator-facing half by the HTTP control plane.
type SessionService interface {
	RemoteStart(ctx context.Context, chargePointID string, connectorID int, idTag string, userID *uint) (*RemoteStartResult, error)
	RemoteStop(ctx context.Context, transactionID int, chargePointID string) (*RemoteStopResult, error)

	OnStartTransaction(ctx context.Context, chargePointID string, connectorID int, idTag string, meterStart int, timestamp time.Time, proposedTxnID int) (int, error)
	OnStopTransaction(ctx context.Context, chargePointID string, transactionID int, meterStop int, timestamp time.Time, reason string) error
	OnMeterValues(ctx context.Context, chargePointID string, samples []MeterSample) error
	OnStatusNotification(ctx context.Context, chargePointID string, connectorID int, status, errorCode, info string, timestamp time.Time) error
	// ReconcileOnBoot re-derives availability from open sessions after a
	// charger reboot or reconnect.
	ReconcileOnBoot(ctx context.Context, chargePointID string) error

	GetSession(ctx context.Context, id uint) (*domain.ChargingSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*domain.ChargingSession, error)
	ListMeterValues(ctx context.Context, chargePointID string, transactionID *int, limit int) ([]*domain.MeterValue, error)
	ListFaults(ctx context.Context, chargePointID string, includeCleared bool) ([]*domain.Fault, error)
}

type BootInfo struct {
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
}

type ChargerService interface {
	OnBootNotification(ctx context.Context, chargePointID string, info BootInfo) (intervalSeconds int, err error)
	OnHeartbeat(ctx context.Context, chargePointID string) error
	Authorize(ctx context.Context, chargePointID, idTag string) (accepted bool, err error)

	Register(ctx context.Context, charger *domain.Charger) error
	Get(ctx context.Context, chargePointID string) (*domain.Charger, error)
	List(ctx context.Context) ([]*domain.Charger, error)
	UpdateConfig(ctx context.Context, chargePointID string, heartbeatIntervalS, numberOfConnectors, meterValueIntervalS *int) (*domain.Charger, error)
	Delete(ctx context.Context, id uint) error
}

type TopupRequest struct {
	UserID         uint
	Amount         decimal.Decimal
	Method         string
	IdempotencyKey string
	Description    string
}

type WalletService interface {
	GetWallet(ctx context.Context, userID uint) (*domain.Wallet, error)
	ValidateTopupAmount(ctx context.Context, userID uint, amount decimal.Decimal) error
	Topup(ctx context.Context, req TopupRequest) (*domain.WalletTransaction, error)
	// CreditFromPayment credits a wallet exactly once per gateway reference.
	CreditFromPayment(ctx context.Context, payment *domain.PaymentTransaction) (*domain.WalletTransaction, error)
	DebitForSession(ctx context.Context, userID uint, sessionID uint, amount decimal.Decimal) (*domain.WalletTransaction, error)
	RedeemReward(ctx context.Context, userID uint, rewardType string, clientPointsCost int64) (*domain.Reward, error)
	ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]*domain.WalletTransaction, error)
	ListRewards(ctx context.Context, userID uint) ([]*domain.Reward, error)
}

type PaymentService interface {
	CreateTopupPayment(ctx context.Context, userID uint, amount decimal.Decimal, gatewayName string) (*domain.PaymentTransaction, error)
	// HandleCallback verifies and applies a gateway callback payload for the
	// named gateway. Idempotent for already-settled payments.
	HandleCallback(ctx context.Context, gatewayName string, payload map[string]interface{}, headers map[string]string) (*domain.PaymentTransaction, error)
	ApproveManualPayment(ctx context.Context, transactionRef string, adminID uint) (*domain.PaymentTransaction, error)
	CheckStatus(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error)
	Get(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*domain.PaymentTransaction, error)
	ListGateways(ctx context.Context) ([]*domain.PaymentGatewayConfig, error)
}

type CreateTicketRequest struct {
	UserID      uint
	Subject     string
	Description string
	Category    string
	Priority    domain.TicketPriority
}

type TicketService interface {
	Create(ctx context.Context, req CreateTicketRequest) (*domain.SupportTicket, error)
	Get(ctx context.Context, id uint, requester *AuthClaims) (*domain.SupportTicket, error)
	List(ctx context.Context, filter TicketFilter, requester *AuthClaims) ([]*domain.SupportTicket, error)
	// AddMessage appends to the conversation; whether the sender is staff is
	// derived from the staff roster, not trusted from the client.
	AddMessage(ctx context.Context, ticketID uint, senderID uint, senderName, body string) (*domain.TicketMessage, error)
	ListMessages(ctx context.Context, ticketID uint, requester *AuthClaims) ([]*domain.TicketMessage, error)
	UpdateStatus(ctx context.Context, ticketID uint, status domain.TicketStatus) (*domain.SupportTicket, error)
	UpdatePriority(ctx context.Context, ticketID uint, priority domain.TicketPriority) (*domain.SupportTicket, error)
	AssignStaff(ctx context.Context, ticketID, staffID uint) (*domain.SupportTicket, error)
	Stats(ctx context.Context, department string) (map[domain.TicketStatus]int64, error)
	ListOverdue(ctx context.Context) ([]*domain.SupportTicket, error)
	// SweepReminders sends SLA reminder mail for tickets approaching or past
	// their due time. Called by the scheduler loop.
	SweepReminders(ctx context.Context) (sent int, err error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

type Clock interface {
	Now() time.Time
}

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry *domain.AuditLog)
}
