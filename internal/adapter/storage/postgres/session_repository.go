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

type SessionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSessionRepository(db *gorm.DB, log *zap.Logger) ports.SessionRepository {
	return &SessionRepository{db: db, log: log}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.ChargingSession) error {
	result := r.db.WithContext(ctx).Create(session)
	if result.Error != nil {
		r.log.Error("Failed to create charging session",
			zap.String("charge_point_id", session.ChargePointID),
			zap.Int("transaction_id", session.TransactionID),
			zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *SessionRepository) Update(ctx context.Context, session *domain.ChargingSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *SessionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&domain.ChargingSession{}, id).Error
}

func (r *SessionRepository) GetByID(ctx context.Context, id uint) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	result := r.db.WithContext(ctx).First(&session, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &session, nil
}

func (r *SessionRepository) GetByTransactionID(ctx context.Context, transactionID int) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	result := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id desc").
		First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &session, nil
}

func (r *SessionRepository) GetOpenByChargePoint(ctx context.Context, chargePointID string) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	result := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND status IN ?", chargePointID,
			[]domain.SessionStatus{domain.SessionStatusPending, domain.SessionStatusActive}).
		Order("id desc").
		First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &session, nil
}

func (r *SessionRepository) List(ctx context.Context, filter ports.SessionFilter) ([]*domain.ChargingSession, error) {
	query := r.db.WithContext(ctx).Model(&domain.ChargingSession{})
	if filter.ChargePointID != "" {
		query = query.Where("charge_point_id = ?", filter.ChargePointID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var sessions []*domain.ChargingSession
	result := query.Order("id desc").Limit(limit).Offset(filter.Offset).Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

// NextTransactionID allocates the next OCPP transaction id as max+1 so ids
// stay monotonic across restarts.
func (r *SessionRepository) NextTransactionID(ctx context.Context) (int, error) {
	var maxID *int
	result := r.db.WithContext(ctx).Model(&domain.ChargingSession{}).
		Select("MAX(transaction_id)").Scan(&maxID)
	if result.Error != nil {
		return 0, result.Error
	}
	if maxID == nil || *maxID < 0 {
		return 1, nil
	}
	return *maxID + 1, nil
}

func (r *SessionRepository) CreateMeterValue(ctx context.Context, mv *domain.MeterValue) error {
	return r.db.WithContext(ctx).Create(mv).Error
}

func (r *SessionRepository) ListMeterValues(ctx context.Context, chargePointID string, transactionID *int, limit int) ([]*domain.MeterValue, error) {
	query := r.db.WithContext(ctx).Where("charge_point_id = ?", chargePointID)
	if transactionID != nil {
		query = query.Where("transaction_id = ?", *transactionID)
	}
	if limit <= 0 {
		limit = 100
	}
	var values []*domain.MeterValue
	result := query.Order("timestamp desc").Limit(limit).Find(&values)
	if result.Error != nil {
		return nil, result.Error
	}
	return values, nil
}

func (r *SessionRepository) CreateFault(ctx context.Context, fault *domain.Fault) error {
	return r.db.WithContext(ctx).Create(fault).Error
}

func (r *SessionRepository) HasUnclearedFault(ctx context.Context, chargePointID, faultType string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&domain.Fault{}).
		Where("charge_point_id = ? AND fault_type = ? AND cleared = false", chargePointID, faultType).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

func (r *SessionRepository) ClearFaults(ctx context.Context, chargePointID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Fault{}).
		Where("charge_point_id = ? AND cleared = false", chargePointID).
		Updates(map[string]interface{}{"cleared": true, "cleared_at": at})
	return result.Error
}

func (r *SessionRepository) ListFaults(ctx context.Context, chargePointID string, includeCleared bool) ([]*domain.Fault, error) {
	query := r.db.WithContext(ctx).Where("charge_point_id = ?", chargePointID)
	if !includeCleared {
		query = query.Where("cleared = false")
	}
	var faults []*domain.Fault
	result := query.Order("timestamp desc").Find(&faults)
	if result.Error != nil {
		return nil, result.Error
	}
	return faults, nil
}
