package charger

import (
	"context"
	"errors"
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

type chargerEnv struct {
	service  *Service
	chargers *mocks.MockChargerRepository
	users    *mocks.MockUserRepository
	cache    *mocks.MockCache
	clock    *mocks.FixedClock
}

func newChargerEnv() *chargerEnv {
	clock := mocks.NewFixedClock(time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC))
	chargers := mocks.NewMockChargerRepository()
	users := mocks.NewMockUserRepository()
	cache := mocks.NewMockCache()
	return &chargerEnv{
		service:  NewService(chargers, users, cache, nil, clock, newTestLogger()),
		chargers: chargers,
		users:    users,
		cache:    cache,
		clock:    clock,
	}
}

func TestOnBootNotification_RegistersNewCharger(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	interval, err := env.service.OnBootNotification(ctx, "CP001", ports.BootInfo{
		Vendor:          "ChargeNet",
		Model:           "AC22",
		SerialNumber:    "SN-1",
		FirmwareVersion: "1.2.0",
	})
	if err != nil {
		t.Fatalf("boot failed: %v", err)
	}
	if interval != domain.DefaultHeartbeatIntervalS {
		t.Errorf("expected default interval %d, got %d", domain.DefaultHeartbeatIntervalS, interval)
	}

	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger == nil {
		t.Fatal("charger not registered")
	}
	if charger.Vendor != "ChargeNet" || charger.Model != "AC22" {
		t.Errorf("self-description not stored: %s/%s", charger.Vendor, charger.Model)
	}
	if charger.LastHeartbeat == nil || !charger.LastHeartbeat.Equal(env.clock.Now()) {
		t.Error("boot did not stamp the heartbeat")
	}
	if charger.Availability != domain.AvailabilityAvailable {
		t.Errorf("new charger should be available, got %s", charger.Availability)
	}
}

func TestOnBootNotification_UpdatesExisting(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	env.chargers.Create(ctx, &domain.Charger{
		ChargePointID:      "CP001",
		Vendor:             "ChargeNet",
		Model:              "AC22",
		SerialNumber:       "SN-1",
		FirmwareVersion:    "1.0.0",
		HeartbeatIntervalS: 300,
	})

	interval, err := env.service.OnBootNotification(ctx, "CP001", ports.BootInfo{
		Vendor:          "ChargeNet",
		Model:           "AC22",
		FirmwareVersion: "1.3.0",
	})
	if err != nil {
		t.Fatalf("boot failed: %v", err)
	}
	// The configured interval survives reboots.
	if interval != 300 {
		t.Errorf("expected configured interval 300, got %d", interval)
	}

	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.FirmwareVersion != "1.3.0" {
		t.Errorf("firmware not refreshed: %s", charger.FirmwareVersion)
	}
	// Empty serial in the boot payload must not erase the stored one.
	if charger.SerialNumber != "SN-1" {
		t.Errorf("serial number lost: %q", charger.SerialNumber)
	}
}

func TestOnHeartbeat(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	env.chargers.Create(ctx, &domain.Charger{ChargePointID: "CP001"})

	if err := env.service.OnHeartbeat(ctx, "CP001"); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	charger, _ := env.chargers.GetByChargePointID(ctx, "CP001")
	if charger.LastHeartbeat == nil || !charger.LastHeartbeat.Equal(env.clock.Now()) {
		t.Error("heartbeat not recorded")
	}
}

func TestGet_DerivesOnlineStatus(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	fresh := env.clock.Now().Add(-5 * time.Minute)
	stale := env.clock.Now().Add(-20 * time.Minute)
	env.chargers.Create(ctx, &domain.Charger{ChargePointID: "CP-FRESH", LastHeartbeat: &fresh})
	env.chargers.Create(ctx, &domain.Charger{ChargePointID: "CP-STALE", LastHeartbeat: &stale, Status: domain.ChargerStatusOnline})
	env.chargers.Create(ctx, &domain.Charger{ChargePointID: "CP-NEVER"})

	cases := []struct {
		chargePointID string
		want          domain.ChargerStatus
	}{
		{"CP-FRESH", domain.ChargerStatusOnline},
		{"CP-STALE", domain.ChargerStatusOffline},
		{"CP-NEVER", domain.ChargerStatusOffline},
	}
	for _, tc := range cases {
		charger, err := env.service.Get(ctx, tc.chargePointID)
		if err != nil {
			t.Fatalf("get %s failed: %v", tc.chargePointID, err)
		}
		if charger.Status != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.chargePointID, tc.want, charger.Status)
		}
	}

	if _, err := env.service.Get(ctx, "CP-MISSING"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList_UsesCache(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	hb := env.clock.Now()
	env.chargers.Create(ctx, &domain.Charger{ChargePointID: "CP001", LastHeartbeat: &hb})

	first, err := env.service.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(first) != 1 || first[0].Status != domain.ChargerStatusOnline {
		t.Fatalf("unexpected first listing: %+v", first)
	}

	// The second read is served from the cached serialization, so a charger
	// added since does not show up until the cache expires or is invalidated.
	env.chargers.Create(ctx, &domain.Charger{ChargePointID: "CP002"})
	second, err := env.service.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(second) != 1 {
		t.Errorf("expected cached listing of 1, got %d", len(second))
	}

	// Registration invalidates the cache.
	if err := env.service.Register(ctx, &domain.Charger{ChargePointID: "CP003"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	third, err := env.service.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(third) != 3 {
		t.Errorf("expected fresh listing of 3, got %d", len(third))
	}
}

func TestRegister(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	charger := &domain.Charger{ChargePointID: "CP001", Name: "Lobby"}
	if err := env.service.Register(ctx, charger); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if charger.HeartbeatIntervalS != domain.DefaultHeartbeatIntervalS {
		t.Errorf("defaults not applied: %d", charger.HeartbeatIntervalS)
	}
	if charger.Status != domain.ChargerStatusOffline {
		t.Errorf("pre-registered charger should start offline, got %s", charger.Status)
	}

	if err := env.service.Register(ctx, &domain.Charger{ChargePointID: "CP001"}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate, got %v", err)
	}
	if err := env.service.Register(ctx, &domain.Charger{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for missing id, got %v", err)
	}
}

func TestUpdateConfig(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	env.chargers.Create(ctx, &domain.Charger{
		ChargePointID:      "CP001",
		HeartbeatIntervalS: 7200,
		NumberOfConnectors: 1,
	})

	hb := 600
	conns := 2
	charger, err := env.service.UpdateConfig(ctx, "CP001", &hb, &conns, nil)
	if err != nil {
		t.Fatalf("update config failed: %v", err)
	}
	if charger.HeartbeatIntervalS != 600 || charger.NumberOfConnectors != 2 {
		t.Errorf("config not applied: %d/%d", charger.HeartbeatIntervalS, charger.NumberOfConnectors)
	}

	tooShort := 5
	if _, err := env.service.UpdateConfig(ctx, "CP001", &tooShort, nil, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for 5s heartbeat, got %v", err)
	}
	zero := 0
	if _, err := env.service.UpdateConfig(ctx, "CP001", nil, &zero, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for zero connectors, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	env := newChargerEnv()
	ctx := context.Background()

	env.users.Create(ctx, &domain.User{Email: "active@chargenet.my", IsActive: true})
	env.users.Create(ctx, &domain.User{Email: "blocked@chargenet.my", IsActive: false})

	cases := []struct {
		name  string
		idTag string
		want  bool
	}{
		{"active account", "active@chargenet.my", true},
		{"deactivated account", "blocked@chargenet.my", false},
		{"unknown rfid card", "RFID-UNKNOWN", true},
		{"empty tag", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.service.Authorize(ctx, "CP001", tc.idTag)
			if err != nil {
				t.Fatalf("authorize failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
