package domain

import "time"

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

type TicketPriority string

const (
	PriorityUrgent TicketPriority = "urgent"
	PriorityHigh   TicketPriority = "high"
	PriorityMedium TicketPriority = "medium"
	PriorityLow    TicketPriority = "low"
)

// CategoryDepartments routes a ticket category to the department that owns it.
var CategoryDepartments = map[string]string{
	"login_account":  "IT",
	"app_issue":      "IT",
	"charging":       "Operations",
	"vehicle":        "Operations",
	"wallet_payment": "Finance",
	"rewards":        "Marketing",
	"general":        "Customer Service",
}

// DefaultDepartment catches categories outside the routing table.
const DefaultDepartment = "Customer Service"

// TicketSLA maps priority to the resolution window used for due_at.
var TicketSLA = map[TicketPriority]time.Duration{
	PriorityUrgent: 4 * time.Hour,
	PriorityHigh:   12 * time.Hour,
	PriorityMedium: 24 * time.Hour,
	PriorityLow:    48 * time.Hour,
}

type SupportTicket struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	TicketNumber    string         `json:"ticket_number" gorm:"uniqueIndex;size:24"`
	UserID          uint           `json:"user_id" gorm:"index"`
	Subject         string         `json:"subject"`
	Description     string         `json:"description"`
	Category        string         `json:"category" gorm:"size:32;index"`
	Department      string         `json:"department" gorm:"size:32;index"`
	Priority        TicketPriority `json:"priority" gorm:"size:16;index"`
	Status          TicketStatus   `json:"status" gorm:"size:16;index"`
	AssignedStaffID *uint          `json:"assigned_staff_id,omitempty" gorm:"index"`
	DueAt           time.Time      `json:"due_at" gorm:"index"`
	FirstResponseAt *time.Time     `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ReminderSentAt  *time.Time     `json:"reminder_sent_at,omitempty"`
	Escalated       bool           `json:"escalated"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsOverdue reports whether the SLA window has already elapsed.
func (t *SupportTicket) IsOverdue(now time.Time) bool {
	return now.After(t.DueAt) && t.Status != TicketResolved && t.Status != TicketClosed
}

type TicketMessage struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TicketID    uint      `json:"ticket_id" gorm:"index"`
	SenderID    *uint     `json:"sender_id,omitempty"`
	SenderName  string    `json:"sender_name"`
	IsStaff     bool      `json:"is_staff"`
	IsSystem    bool      `json:"is_system"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

type StaffRole string

const (
	StaffRoleAdmin   StaffRole = "admin"
	StaffRoleManager StaffRole = "manager"
	StaffRoleStaff   StaffRole = "staff"
)

type SupportStaff struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"uniqueIndex"`
	Name       string    `json:"name"`
	Email      string    `json:"email" gorm:"size:255"`
	Department string    `json:"department" gorm:"size:32;index"`
	Role       StaffRole `json:"role" gorm:"size:16"`
	MaxTickets int       `json:"max_tickets" gorm:"default:10"`
	IsActive   bool      `json:"is_active" gorm:"default:true"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
