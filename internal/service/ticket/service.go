package ticket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/observability/telemetry"
	"github.com/chargenet/csms/internal/ports"
)

// ReminderHorizon is how close to the SLA deadline a ticket must be before a
// reminder goes out.
const ReminderHorizon = 2 * time.Hour

// Service is the support ticket engine: numbering, department routing,
// auto-assignment, SLA tracking and the reminder sweep.
type Service struct {
	tickets        ports.TicketRepository
	users          ports.UserRepository
	mailer         ports.Mailer
	events         ports.EventPublisher
	clock          ports.Clock
	reminderCooldn time.Duration
	log            *zap.Logger
}

func NewService(
	tickets ports.TicketRepository,
	users ports.UserRepository,
	mailer ports.Mailer,
	events ports.EventPublisher,
	clock ports.Clock,
	reminderCooldown time.Duration,
	log *zap.Logger,
) *Service {
	if reminderCooldown <= 0 {
		reminderCooldown = 4 * time.Hour
	}
	return &Service{
		tickets:        tickets,
		users:          users,
		mailer:         mailer,
		events:         events,
		clock:          clock,
		reminderCooldn: reminderCooldown,
		log:            log,
	}
}

func (s *Service) Create(ctx context.Context, req ports.CreateTicketRequest) (*domain.SupportTicket, error) {
	if req.Subject == "" || req.Description == "" {
		return nil, domain.ValidationError("subject and description are required")
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	sla, ok := domain.TicketSLA[priority]
	if !ok {
		return nil, domain.ValidationError("unknown priority %q", priority)
	}

	department, ok := domain.CategoryDepartments[req.Category]
	if !ok {
		department = domain.DefaultDepartment
	}

	now := s.clock.Now()

	staff, err := s.pickAssignee(ctx, department, priority)
	if err != nil {
		s.log.Warn("Auto-assignment lookup failed", zap.Error(err))
	}

	// Two instances creating tickets in the same instant can derive the
	// same daily sequence; the unique index on ticket_number catches the
	// loser, who re-counts and tries again.
	var ticket *domain.SupportTicket
	for attempt := 0; ; attempt++ {
		number, err := s.nextTicketNumber(ctx, now)
		if err != nil {
			return nil, err
		}
		ticket = &domain.SupportTicket{
			TicketNumber: number,
			UserID:       req.UserID,
			Subject:      req.Subject,
			Description:  req.Description,
			Category:     req.Category,
			Department:   department,
			Priority:     priority,
			Status:       domain.TicketOpen,
			DueAt:        now.Add(sla),
			CreatedAt:    now,
		}
		if staff != nil {
			ticket.AssignedStaffID = &staff.ID
		}
		err = s.tickets.Create(ctx, ticket)
		if err == nil {
			break
		}
		if attempt < maxNumberRetries && isUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	// The opening description becomes the first conversation entry, followed
	// by a system note recording how the ticket was routed.
	senderName := "Customer"
	if req.UserID != 0 {
		if user, err := s.users.GetByID(ctx, req.UserID); err != nil {
			s.log.Warn("Ticket creator lookup failed", zap.Error(err))
		} else if user != nil {
			senderName = user.Name
		}
	}
	opening := &domain.TicketMessage{
		TicketID:   ticket.ID,
		SenderName: senderName,
		Body:       req.Description,
	}
	if req.UserID != 0 {
		uid := req.UserID
		opening.SenderID = &uid
	}
	s.appendMessage(ctx, opening)

	routing := fmt.Sprintf("Ticket created. Department: %s, Priority: %s.", department, priority)
	if staff == nil {
		// No capacity anywhere in the department; leave it in the queue
		// for manual triage.
		routing = fmt.Sprintf("Ticket created. Department: %s, Priority: %s. No available staff in %s; ticket awaiting manual assignment.",
			department, priority, department)
	}
	s.appendMessage(ctx, &domain.TicketMessage{
		TicketID:   ticket.ID,
		SenderName: "System",
		IsSystem:   true,
		Body:       routing,
	})

	s.publish(ctx, "ticket.created", ticket)
	s.log.Info("Support ticket created",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("department", department),
		zap.String("priority", string(priority)))
	return ticket, nil
}

// maxNumberRetries bounds re-derivations of a colliding ticket number.
const maxNumberRetries = 3

// nextTicketNumber produces TKT-YYYYMMDD-NNNN with a per-day sequence.
func (s *Service) nextTicketNumber(ctx context.Context, now time.Time) (string, error) {
	count, err := s.tickets.CountCreatedOn(ctx, now)
	if err != nil {
		return "", fmt.Errorf("ticket sequence: %w", err)
	}
	return fmt.Sprintf("TKT-%s-%04d", now.Format("20060102"), count+1), nil
}

func (s *Service) appendMessage(ctx context.Context, msg *domain.TicketMessage) {
	if err := s.tickets.CreateMessage(ctx, msg); err != nil {
		s.log.Warn("Failed to add ticket message",
			zap.Uint("ticket_id", msg.TicketID), zap.Error(err))
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// pickAssignee chooses the least-loaded active staff member in the
// department with spare capacity. Urgent and high tickets go to managers
// when one has room.
func (s *Service) pickAssignee(ctx context.Context, department string, priority domain.TicketPriority) (*domain.SupportStaff, error) {
	candidates, err := s.tickets.ListStaff(ctx, department, true)
	if err != nil {
		return nil, err
	}

	eligible := candidates[:0]
	for _, st := range candidates {
		if st.Role == domain.StaffRoleManager || st.Role == domain.StaffRoleStaff {
			eligible = append(eligible, st)
		}
	}

	preferManagers := priority == domain.PriorityUrgent || priority == domain.PriorityHigh

	pick := func(managersOnly bool) (*domain.SupportStaff, error) {
		var best *domain.SupportStaff
		var bestLoad int64
		for _, st := range eligible {
			if managersOnly && st.Role != domain.StaffRoleManager {
				continue
			}
			load, err := s.tickets.CountOpenAssigned(ctx, st.ID)
			if err != nil {
				return nil, err
			}
			if load >= int64(st.MaxTickets) {
				continue
			}
			if best == nil || load < bestLoad {
				best = st
				bestLoad = load
			}
		}
		return best, nil
	}

	if preferManagers {
		if best, err := pick(true); err != nil {
			return nil, err
		} else if best != nil {
			return best, nil
		}
	}
	return pick(false)
}

func (s *Service) Get(ctx context.Context, id uint, requester *ports.AuthClaims) (*domain.SupportTicket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: ticket %d", domain.ErrNotFound, id)
	}
	if err := s.authorize(ctx, ticket, requester); err != nil {
		return nil, err
	}
	return ticket, nil
}

// authorize applies role-scoped visibility: admins see everything, managers
// their department, staff their own queue, and customers their own tickets.
func (s *Service) authorize(ctx context.Context, ticket *domain.SupportTicket, requester *ports.AuthClaims) error {
	if requester == nil || requester.IsAdmin {
		return nil
	}
	if ticket.UserID == requester.UserID {
		return nil
	}
	staff, err := s.tickets.GetStaffByUserID(ctx, requester.UserID)
	if err != nil {
		return err
	}
	if staff == nil {
		return fmt.Errorf("%w: not your ticket", domain.ErrForbidden)
	}
	switch staff.Role {
	case domain.StaffRoleAdmin:
		return nil
	case domain.StaffRoleManager:
		if staff.Department == ticket.Department {
			return nil
		}
	case domain.StaffRoleStaff:
		if ticket.AssignedStaffID != nil && *ticket.AssignedStaffID == staff.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: outside your scope", domain.ErrForbidden)
}

func (s *Service) List(ctx context.Context, filter ports.TicketFilter, requester *ports.AuthClaims) ([]*domain.SupportTicket, error) {
	if requester != nil && !requester.IsAdmin {
		staff, err := s.tickets.GetStaffByUserID(ctx, requester.UserID)
		if err != nil {
			return nil, err
		}
		switch {
		case staff == nil:
			uid := requester.UserID
			filter.UserID = &uid
		case staff.Role == domain.StaffRoleManager || staff.Role == domain.StaffRoleAdmin:
			if filter.Department == "" {
				filter.Department = staff.Department
			}
		default:
			sid := staff.ID
			filter.StaffID = &sid
		}
	}
	return s.tickets.List(ctx, filter)
}

// AddMessage appends to the conversation. The first staff reply moves an
// open ticket to in_progress and stamps the first response time. Staff
// membership comes from the roster, never from the request.
func (s *Service) AddMessage(ctx context.Context, ticketID uint, senderID uint, senderName, body string) (*domain.TicketMessage, error) {
	if body == "" {
		return nil, domain.ValidationError("message body required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: ticket %d", domain.ErrNotFound, ticketID)
	}

	staff, err := s.tickets.GetStaffByUserID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	isStaff := staff != nil

	sid := senderID
	msg := &domain.TicketMessage{
		TicketID:   ticketID,
		SenderID:   &sid,
		SenderName: senderName,
		IsStaff:    isStaff,
		Body:       body,
	}
	if err := s.tickets.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	if isStaff && ticket.FirstResponseAt == nil {
		now := s.clock.Now()
		ticket.FirstResponseAt = &now
		if ticket.Status == domain.TicketOpen {
			ticket.Status = domain.TicketInProgress
		}
		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.log.Warn("Failed to record first response", zap.Error(err))
		}
	}

	s.publish(ctx, "ticket.message", msg)
	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, ticketID uint, requester *ports.AuthClaims) ([]*domain.TicketMessage, error) {
	if _, err := s.Get(ctx, ticketID, requester); err != nil {
		return nil, err
	}
	return s.tickets.ListMessages(ctx, ticketID)
}

func (s *Service) UpdateStatus(ctx context.Context, ticketID uint, status domain.TicketStatus) (*domain.SupportTicket, error) {
	switch status {
	case domain.TicketOpen, domain.TicketInProgress, domain.TicketResolved, domain.TicketClosed:
	default:
		return nil, domain.ValidationError("unknown status %q", status)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: ticket %d", domain.ErrNotFound, ticketID)
	}

	ticket.Status = status
	if (status == domain.TicketResolved || status == domain.TicketClosed) && ticket.ResolvedAt == nil {
		now := s.clock.Now()
		ticket.ResolvedAt = &now
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.publish(ctx, "ticket.status", ticket)
	return ticket, nil
}

// UpdatePriority re-derives due_at from the creation time so escalating a
// ticket tightens its deadline rather than restarting it.
func (s *Service) UpdatePriority(ctx context.Context, ticketID uint, priority domain.TicketPriority) (*domain.SupportTicket, error) {
	sla, ok := domain.TicketSLA[priority]
	if !ok {
		return nil, domain.ValidationError("unknown priority %q", priority)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: ticket %d", domain.ErrNotFound, ticketID)
	}

	ticket.Priority = priority
	ticket.DueAt = ticket.CreatedAt.Add(sla)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.publish(ctx, "ticket.priority", ticket)
	return ticket, nil
}

func (s *Service) AssignStaff(ctx context.Context, ticketID, staffID uint) (*domain.SupportTicket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: ticket %d", domain.ErrNotFound, ticketID)
	}
	staff, err := s.tickets.GetStaffByID(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if staff == nil {
		return nil, fmt.Errorf("%w: staff %d", domain.ErrNotFound, staffID)
	}

	ticket.AssignedStaffID = &staff.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.publish(ctx, "ticket.assigned", ticket)
	return ticket, nil
}

func (s *Service) Stats(ctx context.Context, department string) (map[domain.TicketStatus]int64, error) {
	return s.tickets.CountByStatus(ctx, department)
}

func (s *Service) ListOverdue(ctx context.Context) ([]*domain.SupportTicket, error) {
	return s.tickets.ListDueSoon(ctx, s.clock.Now())
}

// SweepReminders mails assignees of tickets due within the horizon, honoring
// the per-ticket cooldown, and marks overdue tickets escalated.
func (s *Service) SweepReminders(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.tickets.ListDueSoon(ctx, now.Add(ReminderHorizon))
	if err != nil {
		return 0, fmt.Errorf("list due tickets: %w", err)
	}

	sent := 0
	for _, ticket := range due {
		if ticket.AssignedStaffID == nil {
			continue
		}
		if ticket.ReminderSentAt != nil && now.Sub(*ticket.ReminderSentAt) < s.reminderCooldn {
			continue
		}
		staff, err := s.tickets.GetStaffByID(ctx, *ticket.AssignedStaffID)
		if err != nil {
			s.log.Warn("Reminder staff lookup failed", zap.Error(err))
			continue
		}
		if staff == nil || staff.Email == "" {
			continue
		}

		overdue := ticket.IsOverdue(now)
		if err := s.sendReminder(ctx, ticket, staff, overdue); err != nil {
			s.log.Warn("Failed to send SLA reminder",
				zap.String("ticket_number", ticket.TicketNumber),
				zap.Error(err))
			continue
		}

		ticket.ReminderSentAt = &now
		if overdue && !ticket.Escalated {
			ticket.Escalated = true
			msg := &domain.TicketMessage{
				TicketID:   ticket.ID,
				SenderName: "System",
				IsSystem:   true,
				Body:       "Ticket has passed its SLA deadline and was escalated.",
			}
			if err := s.tickets.CreateMessage(ctx, msg); err != nil {
				s.log.Warn("Failed to add escalation note", zap.Error(err))
			}
		}
		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.log.Warn("Failed to record reminder", zap.Error(err))
			continue
		}

		telemetry.TicketRemindersTotal.Inc()
		sent++
	}
	return sent, nil
}

func (s *Service) sendReminder(ctx context.Context, ticket *domain.SupportTicket, staff *domain.SupportStaff, overdue bool) error {
	subject := fmt.Sprintf("Reminder: ticket %s due %s", ticket.TicketNumber, ticket.DueAt.Format(time.RFC822))
	if overdue {
		subject = fmt.Sprintf("OVERDUE: ticket %s passed its SLA", ticket.TicketNumber)
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Ticket <strong>%s</strong> (%s, %s priority) is due at %s.</p><p>Subject: %s</p>",
		staff.Name, ticket.TicketNumber, ticket.Department, ticket.Priority,
		ticket.DueAt.Format(time.RFC822), ticket.Subject)
	return s.mailer.Send(ctx, staff.Email, subject, body, true)
}

// RunReminderLoop runs the sweep on a ticker until ctx is cancelled.
// Iteration failures are logged and swallowed.
func (s *Service) RunReminderLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("SLA reminder loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("SLA reminder loop stopped")
			return
		case <-ticker.C:
			if sent, err := s.SweepReminders(ctx); err != nil {
				s.log.Error("Reminder sweep failed", zap.Error(err))
			} else if sent > 0 {
				s.log.Info("Reminder sweep complete", zap.Int("sent", sent))
			}
		}
	}
}

func (s *Service) publish(ctx context.Context, event string, payload interface{}) {
	if s.events == nil {
		return
	}
	body := map[string]interface{}{
		"event":     event,
		"timestamp": s.clock.Now().UTC(),
		"data":      payload,
	}
	if err := s.events.Publish(ctx, ports.SubjectTicketEvents, body); err != nil {
		s.log.Warn("Failed to publish ticket event", zap.String("event", event), zap.Error(err))
	}
}

// CreateStaff registers a support staff member tied to a user account.
func (s *Service) CreateStaff(ctx context.Context, staff *domain.SupportStaff) error {
	if staff.Name == "" || staff.Department == "" {
		return domain.ValidationError("name and department are required")
	}
	switch staff.Role {
	case domain.StaffRoleAdmin, domain.StaffRoleManager, domain.StaffRoleStaff:
	default:
		return domain.ValidationError("unknown role %q", staff.Role)
	}
	if staff.MaxTickets <= 0 {
		staff.MaxTickets = 10
	}
	staff.IsActive = true
	return s.tickets.CreateStaff(ctx, staff)
}

func (s *Service) ListStaff(ctx context.Context, department string) ([]*domain.SupportStaff, error) {
	return s.tickets.ListStaff(ctx, department, false)
}

func (s *Service) UpdateStaff(ctx context.Context, staff *domain.SupportStaff) error {
	return s.tickets.UpdateStaff(ctx, staff)
}
