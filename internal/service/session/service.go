package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/observability/telemetry"
	"github.com/chargenet/csms/internal/ports"
)

// Grace windows for reconciliation after reconnects and charger reboots.
const (
	// A pending remote start younger than this still counts as in flight
	// when the charger reboots mid-handshake.
	PendingReconnectGrace = 10 * time.Minute
	// An active session younger than this survives an early
	// Available/Preparing status report; older ones are closed out.
	StatusReportGrace = 120 * time.Second
)

type Service struct {
	sessions ports.SessionRepository
	chargers ports.ChargerRepository
	pricing  ports.PricingRepository
	commands ports.OCPPCommands
	events   ports.EventPublisher
	clock    ports.Clock
	log      *zap.Logger
}

func NewService(
	sessions ports.SessionRepository,
	chargers ports.ChargerRepository,
	pricing ports.PricingRepository,
	commands ports.OCPPCommands,
	events ports.EventPublisher,
	clock ports.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		sessions: sessions,
		chargers: chargers,
		pricing:  pricing,
		commands: commands,
		events:   events,
		clock:    clock,
		log:      log,
	}
}

// RemoteStart pre-allocates a pending session, flips the charger to charging
// optimistically, and asks the charge point to start. A command timeout keeps
// the placeholder and reports best-effort success; an explicit rejection
// rolls everything back.
func (s *Service) RemoteStart(ctx context.Context, chargePointID string, connectorID int, idTag string, userID *uint) (*ports.RemoteStartResult, error) {
	charger, err := s.chargers.GetByChargePointID(ctx, chargePointID)
	if err != nil {
		return nil, fmt.Errorf("load charger: %w", err)
	}
	if charger == nil {
		return nil, fmt.Errorf("%w: charger %s", domain.ErrNotFound, chargePointID)
	}

	now := s.clock.Now()
	if charger.EffectiveStatus(now) != domain.ChargerStatusOnline {
		return nil, domain.ValidationError("charger %s is offline", chargePointID)
	}
	if charger.Availability != domain.AvailabilityAvailable && charger.Availability != domain.AvailabilityPreparing {
		return nil, domain.ValidationError("charger %s is %s", chargePointID, charger.Availability)
	}
	if connectorID < 1 || connectorID > charger.NumberOfConnectors {
		return nil, domain.ValidationError("connector %d out of range (charger has %d)", connectorID, charger.NumberOfConnectors)
	}

	if open, err := s.sessions.GetOpenByChargePoint(ctx, chargePointID); err != nil {
		return nil, fmt.Errorf("check open session: %w", err)
	} else if open != nil {
		return nil, fmt.Errorf("%w: charger %s already has session %d", domain.ErrConflict, chargePointID, open.ID)
	}

	placeholder := &domain.ChargingSession{
		ChargePointID: chargePointID,
		TransactionID: domain.PlaceholderTransactionID,
		ConnectorID:   connectorID,
		UserTag:       idTag,
		UserID:        userID,
		Status:        domain.SessionStatusPending,
		StartTime:     now,
		Currency:      domain.WalletCurrency,
	}
	if err := s.sessions.Create(ctx, placeholder); err != nil {
		return nil, fmt.Errorf("create placeholder session: %w", err)
	}

	previousAvailability := charger.Availability
	if err := s.chargers.UpdateAvailability(ctx, chargePointID, domain.AvailabilityCharging); err != nil {
		s.log.Warn("Failed to set optimistic availability", zap.Error(err))
	}

	status, err := s.commands.RemoteStartTransaction(ctx, chargePointID, idTag, connectorID)
	switch {
	case errors.Is(err, domain.ErrTransportTimeout):
		// The charger may still act on the request; keep the placeholder
		// for StartTransaction to claim and stop claiming the connector.
		if uErr := s.chargers.UpdateAvailability(ctx, chargePointID, domain.AvailabilityPreparing); uErr != nil {
			s.log.Warn("Failed to revert availability after timeout", zap.Error(uErr))
		}
		s.log.Warn("RemoteStartTransaction timed out, keeping placeholder",
			zap.String("charge_point_id", chargePointID),
			zap.Uint("session_id", placeholder.ID))
		s.publish(ctx, "session.remote_start_timeout", placeholder)
		return &ports.RemoteStartResult{
			Session:    placeholder,
			Accepted:   true,
			BestEffort: true,
			Note:       "charger did not confirm in time; session will activate if the charger starts",
		}, nil

	case err != nil:
		s.rollbackRemoteStart(ctx, placeholder, chargePointID, previousAvailability)
		return nil, fmt.Errorf("remote start command: %w", err)

	case status != "Accepted":
		s.rollbackRemoteStart(ctx, placeholder, chargePointID, previousAvailability)
		return nil, domain.ValidationError("charger rejected remote start (%s)", status)
	}

	s.publish(ctx, "session.remote_start_accepted", placeholder)
	return &ports.RemoteStartResult{Session: placeholder, Accepted: true}, nil
}

func (s *Service) rollbackRemoteStart(ctx context.Context, placeholder *domain.ChargingSession, chargePointID string, previous domain.ChargerAvailability) {
	if err := s.sessions.Delete(ctx, placeholder.ID); err != nil {
		s.log.Warn("Failed to remove rejected placeholder", zap.Error(err))
	}
	if err := s.chargers.UpdateAvailability(ctx, chargePointID, previous); err != nil {
		s.log.Warn("Failed to revert availability", zap.Error(err))
	}
}

// RemoteStop resolves the target session from a transaction id or a charge
// point id and asks the charger to stop. Always best effort: the session is
// only finalized by the charger's StopTransaction.
func (s *Service) RemoteStop(ctx context.Context, transactionID int, chargePointID string) (*ports.RemoteStopResult, error) {
	var session *domain.ChargingSession
	var err error

	if transactionID > 0 {
		session, err = s.sessions.GetByTransactionID(ctx, transactionID)
	} else if chargePointID != "" {
		session, err = s.sessions.GetOpenByChargePoint(ctx, chargePointID)
	} else {
		return nil, domain.ValidationError("transaction_id or charger_id required")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if session == nil || !s.stoppable(session) {
		return nil, fmt.Errorf("%w: no stoppable session", domain.ErrNotFound)
	}

	session.Status = domain.SessionStatusStopping
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("mark session stopping: %w", err)
	}

	// A placeholder has no real transaction id yet; send 0 and let the
	// charger stop its current transaction.
	txnID := session.TransactionID
	if txnID < 0 {
		txnID = 0
	}

	status, err := s.commands.RemoteStopTransaction(ctx, session.ChargePointID, txnID)
	result := &ports.RemoteStopResult{Accepted: true}
	switch {
	case errors.Is(err, domain.ErrTransportTimeout):
		result.BestEffort = true
		result.Note = "charger did not confirm in time"
	case err != nil:
		result.Accepted = false
		result.Note = err.Error()
	case status != "Accepted":
		result.Accepted = false
		result.Note = fmt.Sprintf("charger answered %s", status)
	}
	if txnID == 0 {
		result.BestEffort = true
	}

	s.publish(ctx, "session.remote_stop", session)
	return result, nil
}

func (s *Service) stoppable(session *domain.ChargingSession) bool {
	return session.Status == domain.SessionStatusPending ||
		session.Status == domain.SessionStatusActive ||
		session.Status == domain.SessionStatusStopping
}

// OnStartTransaction claims the remote-start placeholder if one exists,
// otherwise records a charger-initiated session. Returns the transaction id
// to echo back to the charger.
func (s *Service) OnStartTransaction(ctx context.Context, chargePointID string, connectorID int, idTag string, meterStart int, timestamp time.Time, proposedTxnID int) (int, error) {
	txnID := proposedTxnID
	if txnID <= 0 {
		var err error
		txnID, err = s.sessions.NextTransactionID(ctx)
		if err != nil {
			return 0, fmt.Errorf("allocate transaction id: %w", err)
		}
	}

	open, err := s.sessions.GetOpenByChargePoint(ctx, chargePointID)
	if err != nil {
		return 0, fmt.Errorf("find open session: %w", err)
	}

	if open != nil && open.IsPlaceholder() {
		// Claim the placeholder: recreate it with the real transaction id
		// so the unique history keeps one row per transaction.
		claimed := &domain.ChargingSession{
			ChargePointID: chargePointID,
			TransactionID: txnID,
			ConnectorID:   connectorID,
			UserTag:       open.UserTag,
			UserID:        open.UserID,
			Status:        domain.SessionStatusActive,
			StartTime:     timestamp,
			MeterStart:    meterStart,
			Currency:      domain.WalletCurrency,
		}
		if claimed.UserTag == "" {
			claimed.UserTag = idTag
		}
		if err := s.sessions.Delete(ctx, open.ID); err != nil {
			return 0, fmt.Errorf("replace placeholder: %w", err)
		}
		if err := s.sessions.Create(ctx, claimed); err != nil {
			return 0, fmt.Errorf("create session: %w", err)
		}
		open = claimed
	} else if open != nil {
		// Duplicate StartTransaction for an already-active session:
		// refresh in place.
		open.TransactionID = txnID
		open.ConnectorID = connectorID
		open.MeterStart = meterStart
		open.Status = domain.SessionStatusActive
		if err := s.sessions.Update(ctx, open); err != nil {
			return 0, fmt.Errorf("update session: %w", err)
		}
	} else {
		open = &domain.ChargingSession{
			ChargePointID: chargePointID,
			TransactionID: txnID,
			ConnectorID:   connectorID,
			UserTag:       idTag,
			Status:        domain.SessionStatusActive,
			StartTime:     timestamp,
			MeterStart:    meterStart,
			Currency:      domain.WalletCurrency,
		}
		if err := s.sessions.Create(ctx, open); err != nil {
			return 0, fmt.Errorf("create session: %w", err)
		}
	}

	if err := s.chargers.UpdateAvailability(ctx, chargePointID, domain.AvailabilityCharging); err != nil {
		s.log.Warn("Failed to set availability on start", zap.Error(err))
	}

	telemetry.ActiveChargingSessions.Inc()
	s.publish(ctx, "session.started", open)
	s.log.Info("Charging session started",
		zap.String("charge_point_id", chargePointID),
		zap.Int("transaction_id", txnID),
		zap.Uint("session_id", open.ID))
	return txnID, nil
}

// OnStopTransaction finalizes the session, computes energy and cost, and
// frees the charger. Settlement against the wallet is the control plane's
// job (POST /api/payment/process); the session engine only records the cost.
func (s *Service) OnStopTransaction(ctx context.Context, chargePointID string, transactionID int, meterStop int, timestamp time.Time, reason string) error {
	session, err := s.sessions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		// Unknown transaction; fall back to the open session on this
		// charger so the charger still gets closed out.
		session, err = s.sessions.GetOpenByChargePoint(ctx, chargePointID)
		if err != nil {
			return fmt.Errorf("find open session: %w", err)
		}
	}
	if session == nil {
		s.log.Warn("StopTransaction for unknown session",
			zap.String("charge_point_id", chargePointID),
			zap.Int("transaction_id", transactionID))
		return s.chargers.UpdateAvailability(ctx, chargePointID, domain.AvailabilityAvailable)
	}
	if session.Status == domain.SessionStatusCompleted {
		return nil
	}

	wasOpen := session.IsOpen() || session.Status == domain.SessionStatusStopping

	session.Status = domain.SessionStatusCompleted
	session.StopTime = &timestamp
	session.MeterStop = &meterStop
	session.StopReason = reason
	if meterStop >= session.MeterStart {
		session.EnergyKWh = float64(meterStop-session.MeterStart) / 1000.0
	}
	session.Cost = s.sessionCost(ctx, session.EnergyKWh)

	if err := s.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if err := s.chargers.UpdateAvailability(ctx, session.ChargePointID, domain.AvailabilityAvailable); err != nil {
		s.log.Warn("Failed to free charger", zap.Error(err))
	}

	if wasOpen {
		telemetry.ActiveChargingSessions.Dec()
	}
	telemetry.EnergyDeliveredTotal.Add(session.EnergyKWh)

	s.publish(ctx, "session.completed", session)
	s.log.Info("Charging session completed",
		zap.String("charge_point_id", session.ChargePointID),
		zap.Int("transaction_id", session.TransactionID),
		zap.Float64("energy_kwh", session.EnergyKWh),
		zap.String("cost", session.Cost.String()))
	return nil
}

func (s *Service) sessionCost(ctx context.Context, energyKWh float64) decimal.Decimal {
	price := domain.DefaultPricePerKWh
	if s.pricing != nil {
		if active, err := s.pricing.GetActive(ctx); err != nil {
			s.log.Warn("Failed to load pricing, using default", zap.Error(err))
		} else if active != nil {
			price = active.PricePerKWh
		}
	}
	return price.Mul(decimal.NewFromFloat(energyKWh)).Round(2)
}

// OnMeterValues stores the telemetry and keeps the live session's energy
// figure current from the cumulative register.
func (s *Service) OnMeterValues(ctx context.Context, chargePointID string, samples []ports.MeterSample) error {
	var session *domain.ChargingSession
	for _, sample := range samples {
		mv := &domain.MeterValue{
			ChargePointID: chargePointID,
			TransactionID: sample.TransactionID,
			Timestamp:     sample.Timestamp,
			VoltageV:      sample.VoltageV,
			CurrentA:      sample.CurrentA,
			PowerKW:       sample.PowerKW,
			EnergyKWh:     sample.EnergyKWh,
		}
		if err := s.sessions.CreateMeterValue(ctx, mv); err != nil {
			return fmt.Errorf("store meter value: %w", err)
		}

		if sample.TransactionID == nil || sample.EnergyKWh == nil {
			continue
		}
		if session == nil {
			var err error
			session, err = s.sessions.GetByTransactionID(ctx, *sample.TransactionID)
			if err != nil {
				return fmt.Errorf("find session: %w", err)
			}
		}
		if session != nil && session.Status == domain.SessionStatusActive {
			delivered := *sample.EnergyKWh - float64(session.MeterStart)/1000.0
			if delivered >= 0 {
				session.EnergyKWh = delivered
				if err := s.sessions.Update(ctx, session); err != nil {
					s.log.Warn("Failed to update session energy", zap.Error(err))
				}
			}
		}
	}
	return nil
}

// OnStatusNotification maintains availability and the fault ledger, and
// reconciles sessions the charger silently dropped.
func (s *Service) OnStatusNotification(ctx context.Context, chargePointID string, connectorID int, status, errorCode, info string, timestamp time.Time) error {
	availability := domain.MapOCPPStatus(status)

	if err := s.recordFaults(ctx, chargePointID, status, errorCode, info, timestamp); err != nil {
		s.log.Warn("Fault ledger update failed", zap.Error(err))
	}

	if status == "Available" || status == "Preparing" {
		keep, err := s.reconcileOnIdleStatus(ctx, chargePointID)
		if err != nil {
			s.log.Warn("Session reconciliation failed", zap.Error(err))
		}
		if keep {
			availability = domain.AvailabilityCharging
		}
	}

	if availability == domain.AvailabilityUnknown {
		s.log.Warn("Unrecognized charge point status",
			zap.String("charge_point_id", chargePointID),
			zap.String("status", status))
		return nil
	}

	if err := s.chargers.UpdateAvailability(ctx, chargePointID, availability); err != nil {
		return fmt.Errorf("update availability: %w", err)
	}

	s.publish(ctx, "charger.status", map[string]interface{}{
		"charge_point_id": chargePointID,
		"connector_id":    connectorID,
		"status":          status,
		"availability":    availability,
		"error_code":      errorCode,
	})
	return nil
}

func (s *Service) recordFaults(ctx context.Context, chargePointID, status, errorCode, info string, timestamp time.Time) error {
	hasError := errorCode != "" && errorCode != "NoError"

	if hasError {
		faultType := domain.MapOCPPErrorCode(errorCode)
		exists, err := s.sessions.HasUnclearedFault(ctx, chargePointID, faultType)
		if err != nil {
			return err
		}
		if !exists {
			fault := &domain.Fault{
				ChargePointID: chargePointID,
				FaultType:     faultType,
				Message:       info,
				Timestamp:     timestamp,
			}
			if fault.Message == "" {
				fault.Message = errorCode
			}
			if err := s.sessions.CreateFault(ctx, fault); err != nil {
				return err
			}
			s.publish(ctx, "charger.fault", fault)
			s.log.Warn("Charge point fault recorded",
				zap.String("charge_point_id", chargePointID),
				zap.String("fault_type", faultType))
		}
		return nil
	}

	if status != "Faulted" {
		return s.sessions.ClearFaults(ctx, chargePointID, s.clock.Now())
	}
	return nil
}

// reconcileOnIdleStatus decides what an Available/Preparing report means for
// an open session. Returns true when the charging availability must be kept.
func (s *Service) reconcileOnIdleStatus(ctx context.Context, chargePointID string) (bool, error) {
	open, err := s.sessions.GetOpenByChargePoint(ctx, chargePointID)
	if err != nil || open == nil {
		return false, err
	}

	now := s.clock.Now()

	if open.IsPlaceholder() {
		// The charger reports idle, so a pending remote start is not
		// going to happen. Clear the placeholder.
		open.Status = domain.SessionStatusCompleted
		open.StopTime = &now
		if err := s.sessions.Update(ctx, open); err != nil {
			return false, err
		}
		s.publish(ctx, "session.placeholder_cleared", open)
		return false, nil
	}

	if now.Sub(open.StartTime) < StatusReportGrace {
		// Status reports can race StartTransaction right after a session
		// begins; trust the session over the report for a short window.
		return true, nil
	}

	// The charger thinks it is idle but we hold an old active session:
	// the StopTransaction was lost. Close the session out.
	open.Status = domain.SessionStatusCompleted
	open.StopTime = &now
	open.StopReason = "reconciled"
	if err := s.sessions.Update(ctx, open); err != nil {
		return false, err
	}
	telemetry.ActiveChargingSessions.Dec()
	s.publish(ctx, "session.reconciled", open)
	s.log.Warn("Closed stale session after idle status report",
		zap.String("charge_point_id", chargePointID),
		zap.Int("transaction_id", open.TransactionID))
	return false, nil
}

// ReconcileOnBoot restores the charging availability when a rebooting
// charger still has a live transaction, and clears stale placeholders.
func (s *Service) ReconcileOnBoot(ctx context.Context, chargePointID string) error {
	open, err := s.sessions.GetOpenByChargePoint(ctx, chargePointID)
	if err != nil {
		return fmt.Errorf("find open session: %w", err)
	}
	if open == nil {
		return nil
	}

	now := s.clock.Now()

	if open.IsPlaceholder() && now.Sub(open.StartTime) >= PendingReconnectGrace {
		open.Status = domain.SessionStatusCompleted
		open.StopTime = &now
		open.StopReason = "expired"
		if err := s.sessions.Update(ctx, open); err != nil {
			return fmt.Errorf("expire placeholder: %w", err)
		}
		s.publish(ctx, "session.placeholder_expired", open)
		return nil
	}

	// Active transaction, or a pending remote start still inside its
	// grace window: the connector is still claimed.
	if err := s.chargers.UpdateAvailability(ctx, chargePointID, domain.AvailabilityCharging); err != nil {
		return fmt.Errorf("restore availability: %w", err)
	}
	return nil
}

func (s *Service) GetSession(ctx context.Context, id uint) (*domain.ChargingSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, filter ports.SessionFilter) ([]*domain.ChargingSession, error) {
	return s.sessions.List(ctx, filter)
}

func (s *Service) ListMeterValues(ctx context.Context, chargePointID string, transactionID *int, limit int) ([]*domain.MeterValue, error) {
	return s.sessions.ListMeterValues(ctx, chargePointID, transactionID, limit)
}

func (s *Service) ListFaults(ctx context.Context, chargePointID string, includeCleared bool) ([]*domain.Fault, error) {
	return s.sessions.ListFaults(ctx, chargePointID, includeCleared)
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
	if err := s.events.Publish(ctx, ports.SubjectSessionEvents, body); err != nil {
		s.log.Warn("Failed to publish session event", zap.String("event", event), zap.Error(err))
	}
}
