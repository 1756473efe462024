package database

import (
	"fmt"
	"time"

	"budgetPilot/domain"
	"budgetPilot/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	level := gormlogger.Warn
	if cfg.App.Environment != "production" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates the tables and the indexes gorm tags cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Variant{},
		&domain.BanditArmState{},
		&domain.PendingChange{},
		&domain.MetricBatch{},
		&domain.RevenueEvent{},
		&domain.AllocationDecision{},
		&domain.AccountTuning{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	stmts := []string{
		// at most one in-flight change per entity
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_pending_ad_changes_entity_inflight
			ON pending_ad_changes (entity_id)
			WHERE status IN ('pending', 'claimed', 'executing')`,
		`CREATE INDEX IF NOT EXISTS ix_pending_ad_changes_claimable
			ON pending_ad_changes (status, earliest_execute_at)`,
		`CREATE INDEX IF NOT EXISTS ix_metric_batches_unprocessed_id
			ON metric_batches (id) WHERE processed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS ix_metric_batches_variant_bucket
			ON metric_batches (variant_id, bucket_start)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
