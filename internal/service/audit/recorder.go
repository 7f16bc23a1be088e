package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// Recorder persists audit entries. Writes are best-effort: an audit failure
// never fails the operation being audited, it is only logged.
type Recorder struct {
	repo  ports.AuditRepository
	clock ports.Clock
	log   *zap.Logger
}

func NewRecorder(repo ports.AuditRepository, clock ports.Clock, log *zap.Logger) *Recorder {
	return &Recorder{repo: repo, clock: clock, log: log}
}

func (r *Recorder) Record(ctx context.Context, entry *domain.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		r.log.Error("Failed to write audit entry",
			zap.String("action", entry.Action),
			zap.String("entity_type", entry.EntityType),
			zap.Error(err))
	}
}

// List exposes the trail for the admin API.
func (r *Recorder) List(ctx context.Context, entityType string, limit, offset int) ([]*domain.AuditLog, error) {
	return r.repo.List(ctx, entityType, limit, offset)
}
