package postgres

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chargenet/csms/internal/domain"
)

// NewConnection initializes a PostgreSQL connection using GORM
func NewConnection(url string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// RunMigrations applies the schema via AutoMigrate over the domain models.
func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Charger{},
		&domain.ChargingSession{},
		&domain.MeterValue{},
		&domain.Fault{},
		&domain.User{},
		&domain.Wallet{},
		&domain.WalletTransaction{},
		&domain.Reward{},
		&domain.PaymentTransaction{},
		&domain.PaymentGatewayConfig{},
		&domain.SupportTicket{},
		&domain.TicketMessage{},
		&domain.SupportStaff{},
		&domain.AuditLog{},
		&domain.MaintenanceRecord{},
		&domain.Pricing{},
	)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
