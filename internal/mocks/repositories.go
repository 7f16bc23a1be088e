package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// In-memory repository fakes. They mirror the (nil, nil)-on-absence contract
// of the real repositories and auto-assign primary keys.

// MockChargerRepository

type MockChargerRepository struct {
	mu       sync.Mutex
	nextID   uint
	Chargers map[string]*domain.Charger
}

func NewMockChargerRepository() *MockChargerRepository {
	return &MockChargerRepository{Chargers: make(map[string]*domain.Charger)}
}

func (m *MockChargerRepository) Create(ctx context.Context, charger *domain.Charger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Chargers[charger.ChargePointID]; ok {
		return fmt.Errorf("duplicate key: charge_point_id %s", charger.ChargePointID)
	}
	m.nextID++
	charger.ID = m.nextID
	m.Chargers[charger.ChargePointID] = charger
	return nil
}

func (m *MockChargerRepository) GetByChargePointID(ctx context.Context, chargePointID string) (*domain.Charger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Chargers[chargePointID], nil
}

func (m *MockChargerRepository) GetByID(ctx context.Context, id uint) (*domain.Charger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Chargers {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (m *MockChargerRepository) List(ctx context.Context) ([]*domain.Charger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Charger, 0, len(m.Chargers))
	for _, c := range m.Chargers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockChargerRepository) Update(ctx context.Context, charger *domain.Charger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Chargers[charger.ChargePointID] = charger
	return nil
}

func (m *MockChargerRepository) UpdateHeartbeat(ctx context.Context, chargePointID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Chargers[chargePointID]; ok {
		t := at
		c.LastHeartbeat = &t
	}
	return nil
}

func (m *MockChargerRepository) UpdateAvailability(ctx context.Context, chargePointID string, availability domain.ChargerAvailability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Chargers[chargePointID]; ok {
		c.Availability = availability
	}
	return nil
}

func (m *MockChargerRepository) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cpid, c := range m.Chargers {
		if c.ID == id {
			delete(m.Chargers, cpid)
			return nil
		}
	}
	return nil
}

// MockSessionRepository

type MockSessionRepository struct {
	mu          sync.Mutex
	nextID      uint
	nextTxnID   int
	Sessions    map[uint]*domain.ChargingSession
	MeterValues []*domain.MeterValue
	Faults      []*domain.Fault
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{Sessions: make(map[uint]*domain.ChargingSession)}
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.ChargingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	session.ID = m.nextID
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	m.Sessions[session.ID] = session
	return nil
}

func (m *MockSessionRepository) Update(ctx context.Context, session *domain.ChargingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[session.ID] = session
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, id)
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id uint) (*domain.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sessions[id], nil
}

func (m *MockSessionRepository) GetByTransactionID(ctx context.Context, transactionID int) (*domain.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *domain.ChargingSession
	for _, s := range m.Sessions {
		if s.TransactionID == transactionID {
			if newest == nil || s.ID > newest.ID {
				newest = s
			}
		}
	}
	return newest, nil
}

func (m *MockSessionRepository) GetOpenByChargePoint(ctx context.Context, chargePointID string) (*domain.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *domain.ChargingSession
	for _, s := range m.Sessions {
		if s.ChargePointID != chargePointID {
			continue
		}
		if s.Status != domain.SessionStatusPending && s.Status != domain.SessionStatusActive {
			continue
		}
		if newest == nil || s.ID > newest.ID {
			newest = s
		}
	}
	return newest, nil
}

func (m *MockSessionRepository) List(ctx context.Context, filter ports.SessionFilter) ([]*domain.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ChargingSession
	for _, s := range m.Sessions {
		if filter.ChargePointID != "" && s.ChargePointID != filter.ChargePointID {
			continue
		}
		if filter.UserID != nil && (s.UserID == nil || *s.UserID != *filter.UserID) {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (m *MockSessionRepository) NextTransactionID(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxnID++
	return m.nextTxnID, nil
}

func (m *MockSessionRepository) CreateMeterValue(ctx context.Context, mv *domain.MeterValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv.ID = uint(len(m.MeterValues) + 1)
	m.MeterValues = append(m.MeterValues, mv)
	return nil
}

func (m *MockSessionRepository) ListMeterValues(ctx context.Context, chargePointID string, transactionID *int, limit int) ([]*domain.MeterValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MeterValue
	for _, mv := range m.MeterValues {
		if mv.ChargePointID != chargePointID {
			continue
		}
		if transactionID != nil && (mv.TransactionID == nil || *mv.TransactionID != *transactionID) {
			continue
		}
		out = append(out, mv)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockSessionRepository) CreateFault(ctx context.Context, fault *domain.Fault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fault.ID = uint(len(m.Faults) + 1)
	m.Faults = append(m.Faults, fault)
	return nil
}

func (m *MockSessionRepository) HasUnclearedFault(ctx context.Context, chargePointID, faultType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.Faults {
		if f.ChargePointID == chargePointID && f.FaultType == faultType && !f.Cleared {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockSessionRepository) ClearFaults(ctx context.Context, chargePointID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.Faults {
		if f.ChargePointID == chargePointID && !f.Cleared {
			f.Cleared = true
			t := at
			f.ClearedAt = &t
		}
	}
	return nil
}

func (m *MockSessionRepository) ListFaults(ctx context.Context, chargePointID string, includeCleared bool) ([]*domain.Fault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Fault
	for _, f := range m.Faults {
		if f.ChargePointID != chargePointID {
			continue
		}
		if !includeCleared && f.Cleared {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// MockUserRepository

type MockUserRepository struct {
	mu     sync.Mutex
	nextID uint
	Users  map[uint]*domain.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{Users: make(map[uint]*domain.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == user.Email {
			return fmt.Errorf("duplicate key: email %s", user.Email)
		}
	}
	m.nextID++
	user.ID = m.nextID
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Users[id], nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.User, 0, len(m.Users))
	for _, u := range m.Users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (m *MockUserRepository) CountAdmins(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.Users {
		if u.IsAdmin {
			n++
		}
	}
	return n, nil
}

// MockWalletRepository

type MockWalletRepository struct {
	mu           sync.Mutex
	nextWalletID uint
	nextTxnID    uint
	nextRewardID uint
	Wallets      map[uint]*domain.Wallet // keyed by user id
	Transactions []*domain.WalletTransaction
	Rewards      []*domain.Reward

	CreateTransactionFunc func(ctx context.Context, txn *domain.WalletTransaction) error
}

func NewMockWalletRepository() *MockWalletRepository {
	return &MockWalletRepository{Wallets: make(map[uint]*domain.Wallet)}
}

func (m *MockWalletRepository) InTx(ctx context.Context, fn func(tx ports.WalletRepository) error) error {
	return fn(m)
}

func (m *MockWalletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextWalletID++
	wallet.ID = m.nextWalletID
	m.Wallets[wallet.UserID] = wallet
	return nil
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Wallets[userID], nil
}

func (m *MockWalletRepository) LockByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return m.GetByUserID(ctx, userID)
}

func (m *MockWalletRepository) Update(ctx context.Context, wallet *domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Wallets[wallet.UserID] = wallet
	return nil
}

func (m *MockWalletRepository) CreateTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, txn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.IdempotencyKey != nil {
		for _, t := range m.Transactions {
			if t.IdempotencyKey != nil && *t.IdempotencyKey == *txn.IdempotencyKey {
				return fmt.Errorf("duplicate key: idempotency_key %s", *txn.IdempotencyKey)
			}
		}
	}
	m.nextTxnID++
	txn.ID = m.nextTxnID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	m.Transactions = append(m.Transactions, txn)
	return nil
}

func (m *MockWalletRepository) UpdateTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.Transactions {
		if t.ID == txn.ID {
			m.Transactions[i] = txn
			return nil
		}
	}
	return nil
}

func (m *MockWalletRepository) GetTransactionByID(ctx context.Context, id uint) (*domain.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (m *MockWalletRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Transactions {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return t, nil
		}
	}
	return nil, nil
}

func (m *MockWalletRepository) GetTopupByGatewayReference(ctx context.Context, ref string) (*domain.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Transactions {
		if t.Type == domain.WalletTxnTopup && t.GatewayReference == ref {
			return t, nil
		}
	}
	return nil, nil
}

func (m *MockWalletRepository) GetDebitBySessionID(ctx context.Context, sessionID uint) (*domain.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Transactions {
		if t.Type == domain.WalletTxnChargePayment && t.Status == domain.WalletTxnCompleted &&
			t.SessionID != nil && *t.SessionID == sessionID {
			return t, nil
		}
	}
	return nil, nil
}

func (m *MockWalletRepository) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]*domain.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WalletTransaction
	for _, t := range m.Transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, limit, offset), nil
}

func (m *MockWalletRepository) SumCompletedTopupsSince(ctx context.Context, userID uint, since time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, t := range m.Transactions {
		if t.UserID == userID && t.Type == domain.WalletTxnTopup &&
			t.Status == domain.WalletTxnCompleted && !t.CreatedAt.Before(since) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (m *MockWalletRepository) CreateReward(ctx context.Context, reward *domain.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRewardID++
	reward.ID = m.nextRewardID
	m.Rewards = append(m.Rewards, reward)
	return nil
}

func (m *MockWalletRepository) ListRewards(ctx context.Context, userID uint) ([]*domain.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Reward
	for _, r := range m.Rewards {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// MockPaymentRepository

type MockPaymentRepository struct {
	mu       sync.Mutex
	nextID   uint
	Payments map[string]*domain.PaymentTransaction // keyed by transaction ref
	Configs  map[string]*domain.PaymentGatewayConfig
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		Payments: make(map[string]*domain.PaymentTransaction),
		Configs:  make(map[string]*domain.PaymentGatewayConfig),
	}
}

func (m *MockPaymentRepository) InTx(ctx context.Context, fn func(tx ports.PaymentRepository) error) error {
	return fn(m)
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Payments[payment.TransactionRef]; ok {
		return fmt.Errorf("duplicate key: transaction_ref %s", payment.TransactionRef)
	}
	m.nextID++
	payment.ID = m.nextID
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	m.Payments[payment.TransactionRef] = payment
	return nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, payment *domain.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payments[payment.TransactionRef] = payment
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uint) (*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *MockPaymentRepository) GetByRef(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Payments[transactionRef], nil
}

func (m *MockPaymentRepository) LockByRef(ctx context.Context, transactionRef string) (*domain.PaymentTransaction, error) {
	return m.GetByRef(ctx, transactionRef)
}

func (m *MockPaymentRepository) LockByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Payments {
		if p.GatewayTransactionID == gatewayTransactionID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *MockPaymentRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PaymentTransaction
	for _, p := range m.Payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, limit, offset), nil
}

func (m *MockPaymentRepository) ListByStatus(ctx context.Context, status domain.PaymentStatus, limit int) ([]*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PaymentTransaction
	for _, p := range m.Payments {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepository) GetGatewayConfig(ctx context.Context, gatewayName string) (*domain.PaymentGatewayConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Configs[gatewayName], nil
}

func (m *MockPaymentRepository) ListGatewayConfigs(ctx context.Context, activeOnly bool) ([]*domain.PaymentGatewayConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PaymentGatewayConfig
	for _, cfg := range m.Configs {
		if activeOnly && !cfg.IsActive {
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GatewayName < out[j].GatewayName })
	return out, nil
}

func (m *MockPaymentRepository) SaveGatewayConfig(ctx context.Context, cfg *domain.PaymentGatewayConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Configs[cfg.GatewayName] = cfg
	return nil
}

// MockTicketRepository

type MockTicketRepository struct {
	mu          sync.Mutex
	nextID      uint
	nextMsgID   uint
	nextStaffID uint
	Tickets     map[uint]*domain.SupportTicket
	Messages    []*domain.TicketMessage
	Staff       map[uint]*domain.SupportStaff

	CreateFunc func(ctx context.Context, ticket *domain.SupportTicket) error
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{
		Tickets: make(map[uint]*domain.SupportTicket),
		Staff:   make(map[uint]*domain.SupportStaff),
	}
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.SupportTicket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, ticket)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ticket.ID = m.nextID
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	m.Tickets[ticket.ID] = ticket
	return nil
}

func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.SupportTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tickets[ticket.ID] = ticket
	return nil
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id uint) (*domain.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tickets[id], nil
}

func (m *MockTicketRepository) GetByNumber(ctx context.Context, ticketNumber string) (*domain.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Tickets {
		if t.TicketNumber == ticketNumber {
			return t, nil
		}
	}
	return nil, nil
}

func (m *MockTicketRepository) List(ctx context.Context, filter ports.TicketFilter) ([]*domain.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SupportTicket
	for _, t := range m.Tickets {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if filter.Department != "" && t.Department != filter.Department {
			continue
		}
		if filter.StaffID != nil && (t.AssignedStaffID == nil || *t.AssignedStaffID != *filter.StaffID) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (m *MockTicketRepository) CountCreatedOn(ctx context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	y, mo, d := day.Date()
	for _, t := range m.Tickets {
		ty, tmo, td := t.CreatedAt.Date()
		if ty == y && tmo == mo && td == d {
			n++
		}
	}
	return n, nil
}

func (m *MockTicketRepository) CountByStatus(ctx context.Context, department string) (map[domain.TicketStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.TicketStatus]int64)
	for _, t := range m.Tickets {
		if department != "" && t.Department != department {
			continue
		}
		out[t.Status]++
	}
	return out, nil
}

func (m *MockTicketRepository) ListDueSoon(ctx context.Context, horizon time.Time) ([]*domain.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SupportTicket
	for _, t := range m.Tickets {
		if t.Status == domain.TicketResolved || t.Status == domain.TicketClosed {
			continue
		}
		if t.DueAt.Before(horizon) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (m *MockTicketRepository) CreateMessage(ctx context.Context, msg *domain.TicketMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsgID++
	msg.ID = m.nextMsgID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *MockTicketRepository) ListMessages(ctx context.Context, ticketID uint) ([]*domain.TicketMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TicketMessage
	for _, msg := range m.Messages {
		if msg.TicketID == ticketID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MockTicketRepository) CreateStaff(ctx context.Context, staff *domain.SupportStaff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextStaffID++
	staff.ID = m.nextStaffID
	m.Staff[staff.ID] = staff
	return nil
}

func (m *MockTicketRepository) UpdateStaff(ctx context.Context, staff *domain.SupportStaff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Staff[staff.ID] = staff
	return nil
}

func (m *MockTicketRepository) GetStaffByID(ctx context.Context, id uint) (*domain.SupportStaff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Staff[id], nil
}

func (m *MockTicketRepository) GetStaffByUserID(ctx context.Context, userID uint) (*domain.SupportStaff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Staff {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, nil
}

func (m *MockTicketRepository) ListStaff(ctx context.Context, department string, activeOnly bool) ([]*domain.SupportStaff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SupportStaff
	for _, s := range m.Staff {
		if department != "" && s.Department != department {
			continue
		}
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockTicketRepository) CountOpenAssigned(ctx context.Context, staffID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.Tickets {
		if t.AssignedStaffID == nil || *t.AssignedStaffID != staffID {
			continue
		}
		if t.Status == domain.TicketOpen || t.Status == domain.TicketInProgress {
			n++
		}
	}
	return n, nil
}

// MockAuditRepository

type MockAuditRepository struct {
	mu      sync.Mutex
	Entries []*domain.AuditLog

	CreateFunc func(ctx context.Context, entry *domain.AuditLog) error
}

func NewMockAuditRepository() *MockAuditRepository { return &MockAuditRepository{} }

func (m *MockAuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uint(len(m.Entries) + 1)
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockAuditRepository) List(ctx context.Context, entityType string, limit, offset int) ([]*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditLog
	for _, e := range m.Entries {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, limit, offset), nil
}

// MockMaintenanceRepository

type MockMaintenanceRepository struct {
	mu      sync.Mutex
	nextID  uint
	Records map[uint]*domain.MaintenanceRecord
}

func NewMockMaintenanceRepository() *MockMaintenanceRepository {
	return &MockMaintenanceRepository{Records: make(map[uint]*domain.MaintenanceRecord)}
}

func (m *MockMaintenanceRepository) Create(ctx context.Context, record *domain.MaintenanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	record.ID = m.nextID
	m.Records[record.ID] = record
	return nil
}

func (m *MockMaintenanceRepository) Update(ctx context.Context, record *domain.MaintenanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records[record.ID] = record
	return nil
}

func (m *MockMaintenanceRepository) GetByID(ctx context.Context, id uint) (*domain.MaintenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Records[id], nil
}

func (m *MockMaintenanceRepository) List(ctx context.Context, chargePointID string, limit, offset int) ([]*domain.MaintenanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MaintenanceRecord
	for _, r := range m.Records {
		if chargePointID != "" && r.ChargePointID != chargePointID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, limit, offset), nil
}

func (m *MockMaintenanceRepository) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Records, id)
	return nil
}

// MockPricingRepository

type MockPricingRepository struct {
	mu      sync.Mutex
	nextID  uint
	Tariffs []*domain.Pricing
}

func NewMockPricingRepository() *MockPricingRepository { return &MockPricingRepository{} }

func (m *MockPricingRepository) GetActive(ctx context.Context) (*domain.Pricing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Tariffs) - 1; i >= 0; i-- {
		if m.Tariffs[i].IsActive {
			return m.Tariffs[i], nil
		}
	}
	return nil, nil
}

func (m *MockPricingRepository) Save(ctx context.Context, pricing *domain.Pricing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pricing.ID == 0 {
		m.nextID++
		pricing.ID = m.nextID
		m.Tariffs = append(m.Tariffs, pricing)
		return nil
	}
	for i, p := range m.Tariffs {
		if p.ID == pricing.ID {
			m.Tariffs[i] = pricing
			return nil
		}
	}
	m.Tariffs = append(m.Tariffs, pricing)
	return nil
}

func (m *MockPricingRepository) List(ctx context.Context) ([]*domain.Pricing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Pricing(nil), m.Tariffs...), nil
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}
