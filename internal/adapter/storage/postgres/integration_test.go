package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// startPostgres boots a disposable PostgreSQL container and returns a
// migrated connection. Skipped with -short and when Docker is unavailable.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("csms_test"),
		tcpostgres.WithUsername("csms"),
		tcpostgres.WithPassword("csms"),
		tcpostgres.BasicWaitStrategies(),
		tcpostgres.WithSQLDriver("pgx"),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	db, err := NewConnection(url, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestChargerRepository_Roundtrip(t *testing.T) {
	db := startPostgres(t)
	logger, _ := zap.NewDevelopment()
	repo := NewChargerRepository(db, logger)
	ctx := context.Background()

	charger := &domain.Charger{
		ChargePointID:      "CP-IT-01",
		Name:               "Integration 1",
		Vendor:             "ChargeNet",
		Model:              "AC22",
		Status:             domain.ChargerStatusOffline,
		Availability:       domain.AvailabilityUnknown,
		NumberOfConnectors: 2,
	}
	if err := repo.Create(ctx, charger); err != nil {
		t.Fatalf("create: %v", err)
	}

	// charge_point_id is unique.
	err := repo.Create(ctx, &domain.Charger{ChargePointID: "CP-IT-01"})
	if err == nil || !strings.Contains(err.Error(), "duplicate key") {
		t.Errorf("expected duplicate key error, got %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := repo.UpdateHeartbeat(ctx, "CP-IT-01", at); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := repo.UpdateAvailability(ctx, "CP-IT-01", domain.AvailabilityCharging); err != nil {
		t.Fatalf("availability: %v", err)
	}

	got, err := repo.GetByChargePointID(ctx, "CP-IT-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastHeartbeat == nil || !got.LastHeartbeat.Equal(at) {
		t.Errorf("heartbeat not persisted: %v", got.LastHeartbeat)
	}
	if got.Availability != domain.AvailabilityCharging {
		t.Errorf("availability not persisted: %s", got.Availability)
	}

	missing, err := repo.GetByChargePointID(ctx, "CP-NOPE")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for absent row, got (%v, %v)", missing, err)
	}
}

func TestSessionRepository_TransactionIDsAndOpenLookup(t *testing.T) {
	db := startPostgres(t)
	logger, _ := zap.NewDevelopment()
	repo := NewSessionRepository(db, logger)
	ctx := context.Background()

	first, err := repo.NextTransactionID(ctx)
	if err != nil {
		t.Fatalf("next txn id: %v", err)
	}
	second, err := repo.NextTransactionID(ctx)
	if err != nil {
		t.Fatalf("next txn id: %v", err)
	}
	if second <= first {
		t.Errorf("transaction ids not increasing: %d then %d", first, second)
	}

	old := &domain.ChargingSession{
		ChargePointID: "CP-IT-02",
		TransactionID: first,
		Status:        domain.SessionStatusCompleted,
		StartTime:     time.Now().Add(-2 * time.Hour),
	}
	open := &domain.ChargingSession{
		ChargePointID: "CP-IT-02",
		TransactionID: second,
		Status:        domain.SessionStatusActive,
		StartTime:     time.Now(),
	}
	for _, s := range []*domain.ChargingSession{old, open} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	got, err := repo.GetOpenByChargePoint(ctx, "CP-IT-02")
	if err != nil {
		t.Fatalf("open lookup: %v", err)
	}
	if got == nil || got.TransactionID != second {
		t.Errorf("expected the active session, got %+v", got)
	}
}

func TestWalletRepository_IdempotencyIndex(t *testing.T) {
	db := startPostgres(t)
	logger, _ := zap.NewDevelopment()
	repo := NewWalletRepository(db, logger)
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.Wallet{
		UserID:   1,
		Balance:  decimal.Zero,
		Currency: domain.WalletCurrency,
	}); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	key := "it-topup-1"
	txn := &domain.WalletTransaction{
		UserID:         1,
		Type:           domain.WalletTxnTopup,
		Status:         domain.WalletTxnCompleted,
		Amount:         decimal.NewFromInt(50),
		BalanceAfter:   decimal.NewFromInt(50),
		IdempotencyKey: &key,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	// The unique index turns a concurrent retry into a duplicate key error
	// that the wallet service resolves by re-reading the winner's row.
	dup := &domain.WalletTransaction{
		UserID:         1,
		Type:           domain.WalletTxnTopup,
		Status:         domain.WalletTxnCompleted,
		Amount:         decimal.NewFromInt(50),
		IdempotencyKey: &key,
	}
	err := repo.CreateTransaction(ctx, dup)
	if err == nil || !strings.Contains(err.Error(), "duplicate key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	winner, err := repo.GetTransactionByIdempotencyKey(ctx, key)
	if err != nil {
		t.Fatalf("lookup by key: %v", err)
	}
	if winner == nil || winner.ID != txn.ID {
		t.Errorf("expected the first transaction back, got %+v", winner)
	}

	// NULL keys do not collide with each other.
	for i := 0; i < 2; i++ {
		if err := repo.CreateTransaction(ctx, &domain.WalletTransaction{
			UserID: 1,
			Type:   domain.WalletTxnChargePayment,
			Status: domain.WalletTxnCompleted,
			Amount: decimal.NewFromInt(1),
		}); err != nil {
			t.Fatalf("create keyless transaction %d: %v", i, err)
		}
	}
}

func TestWalletRepository_InTxRollsBack(t *testing.T) {
	db := startPostgres(t)
	logger, _ := zap.NewDevelopment()
	repo := NewWalletRepository(db, logger)
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.Wallet{
		UserID:   2,
		Balance:  decimal.NewFromInt(10),
		Currency: domain.WalletCurrency,
	}); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	// A failing transaction leaves the wallet untouched.
	wantErr := domain.ValidationError("forced failure")
	err := repo.InTx(ctx, func(tx ports.WalletRepository) error {
		w, lockErr := tx.LockByUserID(ctx, 2)
		if lockErr != nil {
			return lockErr
		}
		w.Balance = decimal.NewFromInt(9999)
		if uErr := tx.Update(ctx, w); uErr != nil {
			return uErr
		}
		return wantErr
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected the inner error back, got %v", err)
	}

	w, err := repo.GetByUserID(ctx, 2)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !w.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("rollback failed, balance %s", w.Balance)
	}
}
