package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type TicketRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTicketRepository(db *gorm.DB, log *zap.Logger) ports.TicketRepository {
	return &TicketRepository{db: db, log: log}
}

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.SupportTicket) error {
	result := r.db.WithContext(ctx).Create(ticket)
	if result.Error != nil {
		r.log.Error("Failed to create ticket",
			zap.String("ticket_number", ticket.TicketNumber),
			zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *TicketRepository) Update(ctx context.Context, ticket *domain.SupportTicket) error {
	return r.db.WithContext(ctx).Save(ticket).Error
}

func (r *TicketRepository) GetByID(ctx context.Context, id uint) (*domain.SupportTicket, error) {
	var ticket domain.SupportTicket
	result := r.db.WithContext(ctx).First(&ticket, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &ticket, nil
}

func (r *TicketRepository) GetByNumber(ctx context.Context, ticketNumber string) (*domain.SupportTicket, error) {
	var ticket domain.SupportTicket
	result := r.db.WithContext(ctx).First(&ticket, "ticket_number = ?", ticketNumber)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &ticket, nil
}

func (r *TicketRepository) List(ctx context.Context, filter ports.TicketFilter) ([]*domain.SupportTicket, error) {
	query := r.db.WithContext(ctx).Model(&domain.SupportTicket{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}
	if filter.StaffID != nil {
		query = query.Where("assigned_staff_id = ?", *filter.StaffID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var tickets []*domain.SupportTicket
	result := query.Order("id desc").Limit(limit).Offset(filter.Offset).Find(&tickets)
	if result.Error != nil {
		return nil, result.Error
	}
	return tickets, nil
}

func (r *TicketRepository) CountCreatedOn(ctx context.Context, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	var count int64
	result := r.db.WithContext(ctx).Model(&domain.SupportTicket{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count)
	return count, result.Error
}

func (r *TicketRepository) CountByStatus(ctx context.Context, department string) (map[domain.TicketStatus]int64, error) {
	type row struct {
		Status domain.TicketStatus
		Count  int64
	}
	query := r.db.WithContext(ctx).Model(&domain.SupportTicket{}).
		Select("status, COUNT(*) as count").Group("status")
	if department != "" {
		query = query.Where("department = ?", department)
	}
	var rows []row
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	stats := make(map[domain.TicketStatus]int64, len(rows))
	for _, rw := range rows {
		stats[rw.Status] = rw.Count
	}
	return stats, nil
}

func (r *TicketRepository) ListDueSoon(ctx context.Context, horizon time.Time) ([]*domain.SupportTicket, error) {
	var tickets []*domain.SupportTicket
	result := r.db.WithContext(ctx).
		Where("due_at <= ? AND status NOT IN ?", horizon,
			[]domain.TicketStatus{domain.TicketResolved, domain.TicketClosed}).
		Order("due_at asc").
		Find(&tickets)
	if result.Error != nil {
		return nil, result.Error
	}
	return tickets, nil
}

func (r *TicketRepository) CreateMessage(ctx context.Context, msg *domain.TicketMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *TicketRepository) ListMessages(ctx context.Context, ticketID uint) ([]*domain.TicketMessage, error) {
	var msgs []*domain.TicketMessage
	result := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("id asc").
		Find(&msgs)
	if result.Error != nil {
		return nil, result.Error
	}
	return msgs, nil
}

func (r *TicketRepository) CreateStaff(ctx context.Context, staff *domain.SupportStaff) error {
	return r.db.WithContext(ctx).Create(staff).Error
}

func (r *TicketRepository) UpdateStaff(ctx context.Context, staff *domain.SupportStaff) error {
	return r.db.WithContext(ctx).Save(staff).Error
}

func (r *TicketRepository) GetStaffByID(ctx context.Context, id uint) (*domain.SupportStaff, error) {
	var staff domain.SupportStaff
	result := r.db.WithContext(ctx).First(&staff, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &staff, nil
}

func (r *TicketRepository) GetStaffByUserID(ctx context.Context, userID uint) (*domain.SupportStaff, error) {
	var staff domain.SupportStaff
	result := r.db.WithContext(ctx).First(&staff, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &staff, nil
}

func (r *TicketRepository) ListStaff(ctx context.Context, department string, activeOnly bool) ([]*domain.SupportStaff, error) {
	query := r.db.WithContext(ctx).Model(&domain.SupportStaff{})
	if department != "" {
		query = query.Where("department = ?", department)
	}
	if activeOnly {
		query = query.Where("is_active = true")
	}
	var staff []*domain.SupportStaff
	result := query.Order("id asc").Find(&staff)
	if result.Error != nil {
		return nil, result.Error
	}
	return staff, nil
}

func (r *TicketRepository) CountOpenAssigned(ctx context.Context, staffID uint) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&domain.SupportTicket{}).
		Where("assigned_staff_id = ? AND status IN ?", staffID,
			[]domain.TicketStatus{domain.TicketOpen, domain.TicketInProgress}).
		Count(&count)
	return count, result.Error
}
