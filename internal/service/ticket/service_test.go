package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/mocks"
	"github.com/chargenet/csms/internal/ports"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type ticketEnv struct {
	service *Service
	repo    *mocks.MockTicketRepository
	users   *mocks.MockUserRepository
	mailer  *mocks.MockMailer
	clock   *mocks.FixedClock
}

func newTicketEnv() *ticketEnv {
	clock := mocks.NewFixedClock(time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	repo := mocks.NewMockTicketRepository()
	users := mocks.NewMockUserRepository()
	mailer := mocks.NewMockMailer()
	return &ticketEnv{
		service: NewService(repo, users, mailer, nil, clock, 4*time.Hour, newTestLogger()),
		repo:    repo,
		users:   users,
		mailer:  mailer,
		clock:   clock,
	}
}

func seedStaff(t *testing.T, env *ticketEnv, staff *domain.SupportStaff) *domain.SupportStaff {
	t.Helper()
	if staff.MaxTickets == 0 {
		staff.MaxTickets = 10
	}
	staff.IsActive = true
	if err := env.repo.CreateStaff(context.Background(), staff); err != nil {
		t.Fatalf("seed staff: %v", err)
	}
	return staff
}

func TestCreate_NumberingAndRouting(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	env.users.Create(ctx, &domain.User{Name: "Aisyah", Email: "aisyah@example.my"})

	first, err := env.service.Create(ctx, ports.CreateTicketRequest{
		UserID:      1,
		Subject:     "Cannot log in",
		Description: "Password reset loop",
		Category:    "login_account",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if first.TicketNumber != "TKT-20250615-0001" {
		t.Errorf("expected TKT-20250615-0001, got %s", first.TicketNumber)
	}
	if first.Department != "IT" {
		t.Errorf("login_account should route to IT, got %s", first.Department)
	}
	if first.Priority != domain.PriorityMedium {
		t.Errorf("expected default medium priority, got %s", first.Priority)
	}
	// Medium SLA is 24 hours.
	if !first.DueAt.Equal(env.clock.Now().Add(24 * time.Hour)) {
		t.Errorf("wrong due time: %v", first.DueAt)
	}

	// The description opens the conversation, then a system note records
	// the routing outcome.
	messages, _ := env.repo.ListMessages(ctx, first.ID)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %+v", messages)
	}
	if messages[0].IsSystem || messages[0].Body != "Password reset loop" {
		t.Errorf("opening message wrong: %+v", messages[0])
	}
	if messages[0].SenderID == nil || *messages[0].SenderID != 1 || messages[0].SenderName != "Aisyah" {
		t.Errorf("opening message not attributed to the creator: %+v", messages[0])
	}
	if !messages[1].IsSystem ||
		!strings.Contains(messages[1].Body, "Department: IT") ||
		!strings.Contains(messages[1].Body, "Priority: "+string(domain.PriorityMedium)) {
		t.Errorf("routing note wrong: %+v", messages[1])
	}

	second, err := env.service.Create(ctx, ports.CreateTicketRequest{
		UserID:      1,
		Subject:     "Charger offline",
		Description: "CP007 not responding",
		Category:    "charging",
		Priority:    domain.PriorityUrgent,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if second.TicketNumber != "TKT-20250615-0002" {
		t.Errorf("daily sequence broken: %s", second.TicketNumber)
	}
	if second.Department != "Operations" {
		t.Errorf("charging should route to Operations, got %s", second.Department)
	}
	if !second.DueAt.Equal(env.clock.Now().Add(4 * time.Hour)) {
		t.Errorf("urgent SLA should be 4h, due %v", second.DueAt)
	}
}

func TestCreate_UnknownCategoryFallsBack(t *testing.T) {
	env := newTicketEnv()

	ticket, err := env.service.Create(context.Background(), ports.CreateTicketRequest{
		UserID:      1,
		Subject:     "Question",
		Description: "Misc",
		Category:    "something_else",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ticket.Department != domain.DefaultDepartment {
		t.Errorf("expected %s, got %s", domain.DefaultDepartment, ticket.Department)
	}
}

func TestCreate_Validation(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	_, err := env.service.Create(ctx, ports.CreateTicketRequest{UserID: 1, Subject: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing description: expected ErrValidation, got %v", err)
	}

	_, err = env.service.Create(ctx, ports.CreateTicketRequest{
		UserID: 1, Subject: "x", Description: "y", Priority: "critical",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown priority: expected ErrValidation, got %v", err)
	}
}

func TestCreate_AssignsLeastLoadedStaff(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	busy := seedStaff(t, env, &domain.SupportStaff{
		UserID: 10, Name: "Busy", Email: "busy@chargenet.my",
		Department: "IT", Role: domain.StaffRoleStaff,
	})
	idle := seedStaff(t, env, &domain.SupportStaff{
		UserID: 11, Name: "Idle", Email: "idle@chargenet.my",
		Department: "IT", Role: domain.StaffRoleStaff,
	})

	// Preload one open ticket on the busy staffer.
	bid := busy.ID
	env.repo.Create(ctx, &domain.SupportTicket{
		UserID: 5, Subject: "old", Description: "old",
		Department: "IT", Status: domain.TicketOpen, AssignedStaffID: &bid,
		CreatedAt: env.clock.Now().Add(-48 * time.Hour),
	})

	ticket, err := env.service.Create(ctx, ports.CreateTicketRequest{
		UserID: 1, Subject: "App crash", Description: "details", Category: "app_issue",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ticket.AssignedStaffID == nil || *ticket.AssignedStaffID != idle.ID {
		t.Errorf("expected least-loaded staff %d, got %v", idle.ID, ticket.AssignedStaffID)
	}
}

func TestCreate_UrgentPrefersManager(t *testing.T) {
	env := newTicketEnv()

	seedStaff(t, env, &domain.SupportStaff{
		UserID: 10, Name: "Rank", Email: "rank@chargenet.my",
		Department: "Operations", Role: domain.StaffRoleStaff,
	})
	manager := seedStaff(t, env, &domain.SupportStaff{
		UserID: 11, Name: "Boss", Email: "boss@chargenet.my",
		Department: "Operations", Role: domain.StaffRoleManager,
	})

	ticket, err := env.service.Create(context.Background(), ports.CreateTicketRequest{
		UserID: 1, Subject: "Charger on fire", Description: "details",
		Category: "charging", Priority: domain.PriorityUrgent,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ticket.AssignedStaffID == nil || *ticket.AssignedStaffID != manager.ID {
		t.Errorf("urgent ticket should go to the manager, got %v", ticket.AssignedStaffID)
	}
}

func TestCreate_NoCapacityLeavesSystemNote(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	full := seedStaff(t, env, &domain.SupportStaff{
		UserID: 10, Name: "Full", Email: "full@chargenet.my",
		Department: "Finance", Role: domain.StaffRoleStaff, MaxTickets: 1,
	})
	fid := full.ID
	env.repo.Create(ctx, &domain.SupportTicket{
		UserID: 5, Subject: "old", Description: "old",
		Department: "Finance", Status: domain.TicketOpen, AssignedStaffID: &fid,
		CreatedAt: env.clock.Now().Add(-48 * time.Hour),
	})

	ticket, err := env.service.Create(ctx, ports.CreateTicketRequest{
		UserID: 1, Subject: "Refund", Description: "details", Category: "wallet_payment",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ticket.AssignedStaffID != nil {
		t.Errorf("expected unassigned ticket, got staff %d", *ticket.AssignedStaffID)
	}

	messages, _ := env.repo.ListMessages(ctx, ticket.ID)
	if len(messages) != 2 {
		t.Fatalf("expected opening message and system note, got %+v", messages)
	}
	if messages[0].IsSystem || messages[0].Body != "details" {
		t.Errorf("opening message wrong: %+v", messages[0])
	}
	if !messages[1].IsSystem ||
		!strings.Contains(messages[1].Body, "Finance") ||
		!strings.Contains(messages[1].Body, "awaiting manual assignment") {
		t.Errorf("system note should flag the unstaffed department: %s", messages[1].Body)
	}
}

func TestCreate_RetriesOnNumberCollision(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	// A concurrent create wins the first ticket number; the insert fails on
	// the unique index and the service must re-derive and retry.
	failures := 0
	env.repo.CreateFunc = func(ctx context.Context, tk *domain.SupportTicket) error {
		if failures == 0 {
			failures++
			env.repo.Tickets[99] = &domain.SupportTicket{
				ID: 99, TicketNumber: tk.TicketNumber, CreatedAt: env.clock.Now(),
			}
			return errors.New(`duplicate key value violates unique constraint "idx_support_tickets_ticket_number"`)
		}
		return nil
	}

	ticket, err := env.service.Create(ctx, ports.CreateTicketRequest{
		UserID: 1, Subject: "s", Description: "d", Category: "general",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ticket.TicketNumber != "TKT-20250615-0002" {
		t.Errorf("expected retry to take the next sequence, got %s", ticket.TicketNumber)
	}
	if failures != 1 {
		t.Errorf("expected exactly one collision, got %d", failures)
	}
}

func TestGet_Authorization(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	itStaff := seedStaff(t, env, &domain.SupportStaff{
		UserID: 20, Name: "Tech", Department: "IT", Role: domain.StaffRoleStaff,
	})
	seedStaff(t, env, &domain.SupportStaff{
		UserID: 21, Name: "OpsMgr", Department: "Operations", Role: domain.StaffRoleManager,
	})

	sid := itStaff.ID
	ticket := &domain.SupportTicket{
		UserID: 1, Subject: "s", Description: "d",
		Department: "IT", Status: domain.TicketOpen, AssignedStaffID: &sid,
	}
	env.repo.Create(ctx, ticket)

	cases := []struct {
		name      string
		requester *ports.AuthClaims
		wantErr   bool
	}{
		{"admin", &ports.AuthClaims{UserID: 99, IsAdmin: true}, false},
		{"owner", &ports.AuthClaims{UserID: 1}, false},
		{"assigned staff", &ports.AuthClaims{UserID: 20}, false},
		{"manager other department", &ports.AuthClaims{UserID: 21}, true},
		{"unrelated customer", &ports.AuthClaims{UserID: 50}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.service.Get(ctx, ticket.ID, tc.requester)
			if tc.wantErr && !errors.Is(err, domain.ErrForbidden) {
				t.Errorf("expected ErrForbidden, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected access, got %v", err)
			}
		})
	}
}

func TestList_ScopesByRole(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	staff := seedStaff(t, env, &domain.SupportStaff{
		UserID: 20, Name: "Tech", Department: "IT", Role: domain.StaffRoleStaff,
	})

	sid := staff.ID
	env.repo.Create(ctx, &domain.SupportTicket{
		UserID: 1, Department: "IT", Status: domain.TicketOpen, AssignedStaffID: &sid,
	})
	env.repo.Create(ctx, &domain.SupportTicket{
		UserID: 2, Department: "IT", Status: domain.TicketOpen,
	})
	env.repo.Create(ctx, &domain.SupportTicket{
		UserID: 1, Department: "Finance", Status: domain.TicketOpen,
	})

	// A customer sees only their own tickets.
	got, err := env.service.List(ctx, ports.TicketFilter{}, &ports.AuthClaims{UserID: 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("customer should see 2 tickets, got %d", len(got))
	}

	// A staff member sees their assigned queue.
	got, err = env.service.List(ctx, ports.TicketFilter{}, &ports.AuthClaims{UserID: 20})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("staff should see 1 assigned ticket, got %d", len(got))
	}

	// An admin sees everything.
	got, err = env.service.List(ctx, ports.TicketFilter{}, &ports.AuthClaims{UserID: 99, IsAdmin: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("admin should see 3 tickets, got %d", len(got))
	}
}

func TestAddMessage_StaffDerivedFromRoster(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	seedStaff(t, env, &domain.SupportStaff{
		UserID: 20, Name: "Tech", Department: "IT", Role: domain.StaffRoleStaff,
	})
	ticket := &domain.SupportTicket{
		UserID: 1, Department: "IT", Status: domain.TicketOpen,
	}
	env.repo.Create(ctx, ticket)

	// Customer message is not staff and does not change status.
	msg, err := env.service.AddMessage(ctx, ticket.ID, 1, "Aisyah", "still broken")
	if err != nil {
		t.Fatalf("add message failed: %v", err)
	}
	if msg.IsStaff {
		t.Error("customer message flagged as staff")
	}
	if ticket.FirstResponseAt != nil {
		t.Error("customer message set FirstResponseAt")
	}

	// First staff reply stamps the response time and starts progress.
	msg, err = env.service.AddMessage(ctx, ticket.ID, 20, "Tech", "looking into it")
	if err != nil {
		t.Fatalf("staff message failed: %v", err)
	}
	if !msg.IsStaff {
		t.Error("roster member not flagged as staff")
	}
	stored, _ := env.repo.GetByID(ctx, ticket.ID)
	if stored.FirstResponseAt == nil {
		t.Error("FirstResponseAt not recorded")
	}
	if stored.Status != domain.TicketInProgress {
		t.Errorf("expected in_progress, got %s", stored.Status)
	}
}

func TestUpdateStatus_ResolvedStampsTime(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	ticket := &domain.SupportTicket{UserID: 1, Status: domain.TicketOpen}
	env.repo.Create(ctx, ticket)

	updated, err := env.service.UpdateStatus(ctx, ticket.ID, domain.TicketResolved)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(env.clock.Now()) {
		t.Errorf("ResolvedAt not stamped: %v", updated.ResolvedAt)
	}

	if _, err := env.service.UpdateStatus(ctx, ticket.ID, "archived"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown status: expected ErrValidation, got %v", err)
	}
}

func TestUpdateStatus_ClosedStampsTime(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	// Closing without passing through resolved still records when the
	// ticket stopped being worked.
	ticket := &domain.SupportTicket{UserID: 1, Status: domain.TicketOpen}
	env.repo.Create(ctx, ticket)

	updated, err := env.service.UpdateStatus(ctx, ticket.ID, domain.TicketClosed)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(env.clock.Now()) {
		t.Errorf("ResolvedAt not stamped on close: %v", updated.ResolvedAt)
	}

	// Reopening and resolving later must not move the original stamp back.
	stamp := *updated.ResolvedAt
	env.clock.Advance(2 * time.Hour)
	updated, err = env.service.UpdateStatus(ctx, ticket.ID, domain.TicketResolved)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.ResolvedAt.Equal(stamp) {
		t.Errorf("existing ResolvedAt overwritten: %v", updated.ResolvedAt)
	}
}

func TestUpdatePriority_RederivesDueFromCreation(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	created := env.clock.Now().Add(-2 * time.Hour)
	ticket := &domain.SupportTicket{
		UserID: 1, Status: domain.TicketOpen,
		Priority: domain.PriorityLow, CreatedAt: created,
		DueAt: created.Add(48 * time.Hour),
	}
	env.repo.Create(ctx, ticket)

	updated, err := env.service.UpdatePriority(ctx, ticket.ID, domain.PriorityUrgent)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	// Escalation tightens the deadline from creation, not from now.
	if !updated.DueAt.Equal(created.Add(4 * time.Hour)) {
		t.Errorf("expected due 4h after creation, got %v", updated.DueAt)
	}
}

func TestSweepReminders(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	staff := seedStaff(t, env, &domain.SupportStaff{
		UserID: 20, Name: "Tech", Email: "tech@chargenet.my",
		Department: "IT", Role: domain.StaffRoleStaff,
	})
	sid := staff.ID
	now := env.clock.Now()

	dueSoon := &domain.SupportTicket{
		TicketNumber: "TKT-20250615-0001", UserID: 1, Department: "IT",
		Status: domain.TicketOpen, AssignedStaffID: &sid,
		DueAt: now.Add(time.Hour), CreatedAt: now.Add(-23 * time.Hour),
	}
	overdue := &domain.SupportTicket{
		TicketNumber: "TKT-20250615-0002", UserID: 1, Department: "IT",
		Status: domain.TicketOpen, AssignedStaffID: &sid,
		DueAt: now.Add(-time.Hour), CreatedAt: now.Add(-25 * time.Hour),
	}
	unassigned := &domain.SupportTicket{
		TicketNumber: "TKT-20250615-0003", UserID: 1, Department: "IT",
		Status: domain.TicketOpen, DueAt: now.Add(time.Hour),
		CreatedAt: now.Add(-23 * time.Hour),
	}
	farOut := &domain.SupportTicket{
		TicketNumber: "TKT-20250615-0004", UserID: 1, Department: "IT",
		Status: domain.TicketOpen, AssignedStaffID: &sid,
		DueAt: now.Add(30 * time.Hour), CreatedAt: now,
	}
	for _, tk := range []*domain.SupportTicket{dueSoon, overdue, unassigned, farOut} {
		env.repo.Create(ctx, tk)
	}

	sent, err := env.service.SweepReminders(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 reminders, got %d", sent)
	}
	if len(env.mailer.Sent) != 2 {
		t.Fatalf("expected 2 mails, got %d", len(env.mailer.Sent))
	}

	var sawOverdue bool
	for _, mail := range env.mailer.Sent {
		if strings.Contains(mail.Subject, "OVERDUE") {
			sawOverdue = true
		}
	}
	if !sawOverdue {
		t.Error("overdue ticket reminder not flagged OVERDUE")
	}

	stored, _ := env.repo.GetByID(ctx, overdue.ID)
	if !stored.Escalated {
		t.Error("overdue ticket not escalated")
	}
	messages, _ := env.repo.ListMessages(ctx, overdue.ID)
	if len(messages) != 1 || !messages[0].IsSystem {
		t.Error("escalation system note missing")
	}

	// Within the cooldown nothing new goes out.
	env.clock.Advance(time.Hour)
	sent, err = env.service.SweepReminders(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("cooldown not honored, sent %d", sent)
	}

	// After the cooldown the reminder repeats.
	env.clock.Advance(4 * time.Hour)
	sent, err = env.service.SweepReminders(ctx)
	if err != nil {
		t.Fatalf("third sweep failed: %v", err)
	}
	if sent == 0 {
		t.Error("expected reminders after cooldown expiry")
	}
}

func TestCreateStaff_Validation(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	err := env.service.CreateStaff(ctx, &domain.SupportStaff{Name: "X", Department: "IT", Role: "intern"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown role: expected ErrValidation, got %v", err)
	}

	staff := &domain.SupportStaff{UserID: 30, Name: "X", Department: "IT", Role: domain.StaffRoleStaff}
	if err := env.service.CreateStaff(ctx, staff); err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.MaxTickets != 10 {
		t.Errorf("expected default capacity 10, got %d", staff.MaxTickets)
	}
	if !staff.IsActive {
		t.Error("new staff should be active")
	}
}

func TestDailySequenceCountsOnlyToday(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	// A ticket from yesterday must not advance today's sequence.
	env.repo.Create(ctx, &domain.SupportTicket{
		UserID: 1, Subject: "old", Description: "old",
		Status: domain.TicketClosed, CreatedAt: env.clock.Now().Add(-24 * time.Hour),
	})

	ticket, err := env.service.Create(ctx, ports.CreateTicketRequest{
		UserID: 1, Subject: "new", Description: "new", Category: "general",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	want := fmt.Sprintf("TKT-%s-0001", env.clock.Now().Format("20060102"))
	if ticket.TicketNumber != want {
		t.Errorf("expected %s, got %s", want, ticket.TicketNumber)
	}
}
