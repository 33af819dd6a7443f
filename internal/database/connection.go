// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return DB, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

// RunMigrations works against postgres and the sqlite dialector used in tests.
func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
			return fmt.Errorf("failed to create UUID extension: %w", err)
		}
	}

	err := db.AutoMigrate(
		&models.Policyholder{},
		&models.PlatformProfile{},
		&models.Premium{},
		&models.PremiumCalculation{},
		&models.PaymentAttempt{},
		&models.Claim{},
		&models.EvidenceFile{},
		&models.ClaimStatusEntry{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	required := []string{
		// One live premium per policyholder; surrendered premiums are soft-deleted.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_premiums_holder_active ON premiums(policyholder_id) WHERE deleted_at IS NULL",
	}
	for _, index := range required {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index %q: %w", index, err)
		}
	}

	optional := []string{
		"CREATE INDEX IF NOT EXISTS idx_platform_profiles_holder_pos ON platform_profiles(policyholder_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_premiums_due ON premiums(payment_status, payment_due_date)",
		"CREATE INDEX IF NOT EXISTS idx_claims_holder_created ON claims(policyholder_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_claims_deadline ON claims(resolution_deadline)",
	}
	for _, index := range optional {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
