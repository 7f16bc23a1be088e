package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/mocks"
	"github.com/chargenet/csms/internal/ports"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type sessionEnv struct {
	service  *Service
	sessions *mocks.MockSessionRepository
	chargers *mocks.MockChargerRepository
	pricing  *mocks.MockPricingRepository
	commands *mocks.MockOCPPCommands
	clock    *mocks.FixedClock
}

func newSessionEnv() *sessionEnv {
	clock := mocks.NewFixedClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	log := newTestLogger()
	sessions := mocks.NewMockSessionRepository()
	chargers := mocks.NewMockChargerRepository()
	pricing := mocks.NewMockPricingRepository()
	commands := mocks.NewMockOCPPCommands()
	return &sessionEnv{
		service:  NewService(sessions, chargers, pricing, commands, nil, clock, log),
		sessions: sessions,
		chargers: chargers,
		pricing:  pricing,
		commands: commands,
		clock:    clock,
	}
}

func (e *sessionEnv) seedOnlineCharger(t *testing.T, chargePointID string) *domain.Charger {
	t.Helper()
	hb := e.clock.Now()
	charger := &domain.Charger{
		ChargePointID:      chargePointID,
		Status:             domain.ChargerStatusOnline,
		Availability:       domain.AvailabilityAvailable,
		LastHeartbeat:      &hb,
		NumberOfConnectors: 2,
	}
	if err := e.chargers.Create(context.Background(), charger); err != nil {
		t.Fatalf("seed charger: %v", err)
	}
	return charger
}

func TestRemoteStart_CreatesPlaceholder(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	uid := uint(7)
	result, err := env.service.RemoteStart(ctx, "CP001", 1, "TAG01", &uid)
	if err != nil {
		t.Fatalf("remote start failed: %v", err)
	}
	if !result.Accepted || result.BestEffort {
		t.Errorf("expected plain acceptance, got %+v", result)
	}
	if result.Session.TransactionID != domain.PlaceholderTransactionID {
		t.Errorf("expected placeholder transaction id, got %d", result.Session.TransactionID)
	}
	if result.Session.Status != domain.SessionStatusPending {
		t.Errorf("expected pending session, got %s", result.Session.Status)
	}
	if result.Session.UserID == nil || *result.Session.UserID != 7 {
		t.Error("session not linked to the requesting user")
	}

	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.Availability != domain.AvailabilityCharging {
		t.Errorf("charger not optimistically marked charging: %s", charger.Availability)
	}
}

func TestRemoteStart_OfflineCharger(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()

	stale := env.clock.Now().Add(-time.Hour)
	env.chargers.Create(ctx, &domain.Charger{
		ChargePointID:      "CP002",
		Availability:       domain.AvailabilityAvailable,
		LastHeartbeat:      &stale,
		NumberOfConnectors: 1,
	})

	_, err := env.service.RemoteStart(ctx, "CP002", 1, "TAG01", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for offline charger, got %v", err)
	}
}

func TestRemoteStart_ConnectorOutOfRange(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001") // 2 connectors

	// Connectors number from 1; connector 0 is the charge point itself.
	for _, connector := range []int{0, 3} {
		_, err := env.service.RemoteStart(ctx, "CP001", connector, "TAG01", nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("connector %d: expected ErrValidation, got %v", connector, err)
		}
	}

	open, _ := env.sessions.GetOpenByChargePoint(ctx, "CP001")
	if open != nil {
		t.Error("rejected start left a placeholder behind")
	}
}

func TestRemoteStart_BusyCharger(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 10,
		Status:        domain.SessionStatusActive,
	})

	_, err := env.service.RemoteStart(ctx, "CP001", 1, "TAG01", nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestRemoteStart_TimeoutKeepsPlaceholder(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.commands.RemoteStartFunc = func(ctx context.Context, chargePointID, idTag string, connectorID int) (string, error) {
		return "", domain.ErrTransportTimeout
	}

	result, err := env.service.RemoteStart(ctx, "CP001", 1, "TAG01", nil)
	if err != nil {
		t.Fatalf("timeout should be best effort, got %v", err)
	}
	if !result.Accepted || !result.BestEffort {
		t.Errorf("expected best-effort acceptance, got %+v", result)
	}

	// Placeholder stays for StartTransaction to claim; the connector is
	// released back to preparing so it no longer reads as charging.
	open, _ := env.sessions.GetOpenByChargePoint(ctx, "CP001")
	if open == nil || !open.IsPlaceholder() {
		t.Fatal("placeholder removed after timeout")
	}
	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.Availability != domain.AvailabilityPreparing {
		t.Errorf("expected preparing after timeout, got %s", charger.Availability)
	}
}

func TestRemoteStart_RejectionRollsBack(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.commands.RemoteStartFunc = func(ctx context.Context, chargePointID, idTag string, connectorID int) (string, error) {
		return "Rejected", nil
	}

	_, err := env.service.RemoteStart(ctx, "CP001", 1, "TAG01", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation on rejection, got %v", err)
	}

	open, _ := env.sessions.GetOpenByChargePoint(ctx, "CP001")
	if open != nil {
		t.Error("placeholder survived the rollback")
	}
	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.Availability != domain.AvailabilityAvailable {
		t.Errorf("availability not reverted, got %s", charger.Availability)
	}
}

func TestOnStartTransaction_ClaimsPlaceholder(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	uid := uint(7)
	if _, err := env.service.RemoteStart(ctx, "CP001", 1, "TAG01", &uid); err != nil {
		t.Fatalf("remote start failed: %v", err)
	}

	txnID, err := env.service.OnStartTransaction(ctx, "CP001", 1, "TAG01", 1000, env.clock.Now(), 0)
	if err != nil {
		t.Fatalf("start transaction failed: %v", err)
	}
	if txnID <= 0 {
		t.Fatalf("expected a real transaction id, got %d", txnID)
	}

	open, _ := env.sessions.GetOpenByChargePoint(ctx, "CP001")
	if open == nil {
		t.Fatal("no open session after claim")
	}
	if open.TransactionID != txnID {
		t.Errorf("claimed session has wrong transaction id: %d", open.TransactionID)
	}
	if open.Status != domain.SessionStatusActive {
		t.Errorf("expected active, got %s", open.Status)
	}
	if open.UserID == nil || *open.UserID != 7 {
		t.Error("owner lost when the placeholder was claimed")
	}
	if open.MeterStart != 1000 {
		t.Errorf("meter start not recorded: %d", open.MeterStart)
	}
}

func TestOnStartTransaction_ChargerInitiated(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	txnID, err := env.service.OnStartTransaction(ctx, "CP001", 1, "RFID99", 500, env.clock.Now(), 0)
	if err != nil {
		t.Fatalf("start transaction failed: %v", err)
	}

	open, _ := env.sessions.GetOpenByChargePoint(ctx, "CP001")
	if open == nil || open.TransactionID != txnID {
		t.Fatal("charger-initiated session not recorded")
	}
	if open.UserTag != "RFID99" {
		t.Errorf("wrong user tag: %s", open.UserTag)
	}
	if open.UserID != nil {
		t.Error("anonymous session should have no owner")
	}
}

func TestOnStopTransaction_ComputesCost(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.pricing.Save(ctx, &domain.Pricing{
		Name:        "standard",
		PricePerKWh: decimal.RequireFromString("0.80"),
		IsActive:    true,
	})

	uid := uint(7)
	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 1,
		UserID:        &uid,
		Status:        domain.SessionStatusActive,
		StartTime:     env.clock.Now().Add(-time.Hour),
		MeterStart:    1000,
	})

	stopAt := env.clock.Now()
	if err := env.service.OnStopTransaction(ctx, "CP001", 1, 13500, stopAt, "Local"); err != nil {
		t.Fatalf("stop transaction failed: %v", err)
	}

	session, _ := env.sessions.GetByTransactionID(ctx, 1)
	if session.Status != domain.SessionStatusCompleted {
		t.Errorf("expected completed, got %s", session.Status)
	}
	// 12500 Wh at RM 0.80/kWh.
	if session.EnergyKWh != 12.5 {
		t.Errorf("expected 12.5 kWh, got %f", session.EnergyKWh)
	}
	if !session.Cost.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected cost 10.00, got %s", session.Cost)
	}

	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.Availability != domain.AvailabilityAvailable {
		t.Errorf("charger not freed, got %s", charger.Availability)
	}
}

func TestOnStopTransaction_DefaultPricing(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 1,
		Status:        domain.SessionStatusActive,
		StartTime:     env.clock.Now().Add(-time.Hour),
		MeterStart:    0,
	})

	if err := env.service.OnStopTransaction(ctx, "CP001", 1, 10000, env.clock.Now(), "Remote"); err != nil {
		t.Fatalf("stop transaction failed: %v", err)
	}

	session, _ := env.sessions.GetByTransactionID(ctx, 1)
	// 10 kWh at the default RM 0.50/kWh.
	if !session.Cost.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("expected default-priced cost 5.00, got %s", session.Cost)
	}
}

func TestOnStopTransaction_UnknownTransactionFreesCharger(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	charger := env.seedOnlineCharger(t, "CP001")
	charger.Availability = domain.AvailabilityCharging

	if err := env.service.OnStopTransaction(ctx, "CP001", 999, 0, env.clock.Now(), ""); err != nil {
		t.Fatalf("expected graceful handling, got %v", err)
	}
	if charger.Availability != domain.AvailabilityAvailable {
		t.Errorf("charger not freed, got %s", charger.Availability)
	}
}

func TestOnStopTransaction_Idempotent(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 1,
		Status:        domain.SessionStatusActive,
		StartTime:     env.clock.Now().Add(-time.Hour),
		MeterStart:    0,
	})

	if err := env.service.OnStopTransaction(ctx, "CP001", 1, 5000, env.clock.Now(), "Local"); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	session, _ := env.sessions.GetByTransactionID(ctx, 1)
	firstCost := session.Cost

	// A retransmitted StopTransaction must not recompute anything.
	if err := env.service.OnStopTransaction(ctx, "CP001", 1, 9000, env.clock.Now(), "Local"); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	session, _ = env.sessions.GetByTransactionID(ctx, 1)
	if !session.Cost.Equal(firstCost) {
		t.Errorf("duplicate stop changed the cost: %s vs %s", session.Cost, firstCost)
	}
	if *session.MeterStop != 5000 {
		t.Errorf("duplicate stop changed meter stop: %d", *session.MeterStop)
	}
}

func TestRemoteStop_MarksStopping(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 5,
		Status:        domain.SessionStatusActive,
	})

	result, err := env.service.RemoteStop(ctx, 5, "")
	if err != nil {
		t.Fatalf("remote stop failed: %v", err)
	}
	if !result.Accepted {
		t.Errorf("expected acceptance, got %+v", result)
	}

	session, _ := env.sessions.GetByTransactionID(ctx, 5)
	if session.Status != domain.SessionStatusStopping {
		t.Errorf("expected stopping, got %s", session.Status)
	}
}

func TestRemoteStop_NoSession(t *testing.T) {
	env := newSessionEnv()

	_, err := env.service.RemoteStop(context.Background(), 0, "CP404")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOnMeterValues_TracksSessionEnergy(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 3,
		Status:        domain.SessionStatusActive,
		MeterStart:    2000,
	})

	txn := 3
	// The register reads 7.5 kWh cumulative; meter start was 2 kWh.
	reg := 7.5
	power := 22.0
	err := env.service.OnMeterValues(ctx, "CP001", []ports.MeterSample{{
		Timestamp:     env.clock.Now(),
		TransactionID: &txn,
		PowerKW:       &power,
		EnergyKWh:     &reg,
	}})
	if err != nil {
		t.Fatalf("meter values failed: %v", err)
	}

	if len(env.sessions.MeterValues) != 1 {
		t.Fatalf("sample not stored, have %d", len(env.sessions.MeterValues))
	}
	session, _ := env.sessions.GetByTransactionID(ctx, 3)
	if session.EnergyKWh != 5.5 {
		t.Errorf("expected 5.5 kWh delivered, got %f", session.EnergyKWh)
	}
}

func TestOnStatusNotification_FaultLedger(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	at := env.clock.Now()
	if err := env.service.OnStatusNotification(ctx, "CP001", 1, "Faulted", "GroundFailure", "RCD tripped", at); err != nil {
		t.Fatalf("status notification failed: %v", err)
	}
	if len(env.sessions.Faults) != 1 {
		t.Fatalf("fault not recorded, have %d", len(env.sessions.Faults))
	}
	if env.sessions.Faults[0].FaultType != "ground_fault" {
		t.Errorf("wrong fault type: %s", env.sessions.Faults[0].FaultType)
	}

	// The charger repeats the status every few seconds; one ledger row.
	if err := env.service.OnStatusNotification(ctx, "CP001", 1, "Faulted", "GroundFailure", "RCD tripped", at); err != nil {
		t.Fatalf("repeat notification failed: %v", err)
	}
	if len(env.sessions.Faults) != 1 {
		t.Errorf("duplicate fault recorded, have %d", len(env.sessions.Faults))
	}

	// Recovery clears the ledger and restores availability.
	if err := env.service.OnStatusNotification(ctx, "CP001", 1, "Available", "NoError", "", at); err != nil {
		t.Fatalf("recovery notification failed: %v", err)
	}
	if !env.sessions.Faults[0].Cleared {
		t.Error("fault not cleared on recovery")
	}
	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.Availability != domain.AvailabilityAvailable {
		t.Errorf("availability not restored, got %s", charger.Availability)
	}
}

func TestOnStatusNotification_IdleClearsPlaceholder(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: domain.PlaceholderTransactionID,
		Status:        domain.SessionStatusPending,
		StartTime:     env.clock.Now().Add(-time.Minute),
	})

	if err := env.service.OnStatusNotification(ctx, "CP001", 1, "Available", "NoError", "", env.clock.Now()); err != nil {
		t.Fatalf("status notification failed: %v", err)
	}

	open, _ := env.sessions.GetOpenByChargePoint(ctx, "CP001")
	if open != nil {
		t.Error("idle report should clear the pending placeholder")
	}
}

func TestOnStatusNotification_GraceKeepsFreshSession(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 4,
		Status:        domain.SessionStatusActive,
		StartTime:     env.clock.Now().Add(-30 * time.Second),
	})

	if err := env.service.OnStatusNotification(ctx, "CP001", 1, "Available", "NoError", "", env.clock.Now()); err != nil {
		t.Fatalf("status notification failed: %v", err)
	}

	// The report raced StartTransaction; the session wins.
	open, _ := env.sessions.GetOpenByChargePoint(ctx, "CP001")
	if open == nil {
		t.Fatal("fresh session closed by racing status report")
	}
	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.Availability != domain.AvailabilityCharging {
		t.Errorf("expected charging kept, got %s", charger.Availability)
	}
}

func TestOnStatusNotification_ClosesStaleSession(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()
	env.seedOnlineCharger(t, "CP001")

	env.sessions.Create(ctx, &domain.ChargingSession{
		ChargePointID: "CP001",
		TransactionID: 4,
		Status:        domain.SessionStatusActive,
		StartTime:     env.clock.Now().Add(-10 * time.Minute),
	})

	if err := env.service.OnStatusNotification(ctx, "CP001", 1, "Available", "NoError", "", env.clock.Now()); err != nil {
		t.Fatalf("status notification failed: %v", err)
	}

	session, _ := env.sessions.GetByTransactionID(ctx, 4)
	if session.Status != domain.SessionStatusCompleted {
		t.Errorf("stale session not closed, got %s", session.Status)
	}
	if session.StopReason != "reconciled" {
		t.Errorf("expected reconciled stop reason, got %q", session.StopReason)
	}
}

func TestReconcileOnBoot(t *testing.T) {
	env := newSessionEnv()
	ctx := context.Background()

	t.Run("stale placeholder expires", func(t *testing.T) {
		env.seedOnlineCharger(t, "CP010")
		stale := &domain.ChargingSession{
			ChargePointID: "CP010",
			TransactionID: domain.PlaceholderTransactionID,
			Status:        domain.SessionStatusPending,
			StartTime:     env.clock.Now().Add(-15 * time.Minute),
		}
		env.sessions.Create(ctx, stale)

		if err := env.service.ReconcileOnBoot(ctx, "CP010"); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if stale.Status != domain.SessionStatusCompleted || stale.StopReason != "expired" {
			t.Errorf("stale placeholder not expired: %s/%s", stale.Status, stale.StopReason)
		}
	})

	t.Run("live transaction reclaims connector", func(t *testing.T) {
		env.seedOnlineCharger(t, "CP011")
		env.sessions.Create(ctx, &domain.ChargingSession{
			ChargePointID: "CP011",
			TransactionID: 8,
			Status:        domain.SessionStatusActive,
			StartTime:     env.clock.Now().Add(-time.Hour),
		})

		if err := env.service.ReconcileOnBoot(ctx, "CP011"); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		charger, _ := env.chargers.GetByChargePointID(ctx, "CP011")
		if charger.Availability != domain.AvailabilityCharging {
			t.Errorf("connector not reclaimed, got %s", charger.Availability)
		}
	})

	t.Run("no open session is a no-op", func(t *testing.T) {
		env.seedOnlineCharger(t, "CP012")
		if err := env.service.ReconcileOnBoot(ctx, "CP012"); err != nil {
			t.Errorf("expected no-op, got %v", err)
		}
	})
}
