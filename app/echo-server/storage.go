package main

import (
	"context"
	"fmt"

	"budgetPilot/business/bandit"
	"budgetPilot/business/changequeue"
	"budgetPilot/business/decisionloop"
	"budgetPilot/domain"
	"budgetPilot/internal/repository/influx"
	"budgetPilot/internal/repository/memory"
	psqlRepo "budgetPilot/internal/repository/postgres"
	"budgetPilot/pkg/config"
	"budgetPilot/pkg/database"
	"budgetPilot/pkg/logger"
)

type (
	variantStore interface {
		decisionloop.VariantStore
		UpsertVariant(ctx context.Context, v domain.Variant) error
	}

	metricsStore interface {
		decisionloop.MetricsSource
		decisionloop.SnapshotSource
		InsertBatch(ctx context.Context, b *domain.MetricBatch) error
		InsertRevenue(ctx context.Context, ev *domain.RevenueEvent) error
	}

	decisionStore interface {
		decisionloop.DecisionLog
		ListDecisions(ctx context.Context, parentID string, limit int) ([]domain.AllocationDecision, error)
	}
)

// storage is the set of repositories for one STORAGE_DRIVER.
type storage struct {
	arms      bandit.ArmRepository
	variants  variantStore
	metrics   metricsStore
	tuning    bandit.ConfigRepository
	decisions decisionStore
	changes   changequeue.Store
	// snapshots feeds the fatigue detector; InfluxDB when configured.
	snapshots decisionloop.SnapshotSource
	influx    *influx.SnapshotSource
	close     func()
}

func openStorage(cfg *config.Config) (*storage, error) {
	s := &storage{close: func() {}}

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage, state is lost on restart")
		s.arms = memory.NewArmRepository()
		s.variants = memory.NewVariantRepository()
		s.metrics = memory.NewMetricsRepository()
		s.tuning = memory.NewTuningRepository()
		s.decisions = memory.NewDecisionLog()
		s.changes = memory.NewChangeStore()
	default:
		db, err := database.InitPostgres(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		logger.Info("Database connected successfully")
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		s.arms = psqlRepo.NewArmRepository(db)
		s.variants = psqlRepo.NewVariantRepository(db)
		s.metrics = psqlRepo.NewMetricsRepository(db)
		s.tuning = psqlRepo.NewTuningRepository(db)
		s.decisions = psqlRepo.NewDecisionLog(db)
		s.changes = psqlRepo.NewChangeStore(db)
		s.close = func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	}

	s.snapshots = s.metrics
	if cfg.Influx.URL != "" {
		s.influx = influx.NewSnapshotSource(influx.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		s.snapshots = s.influx
		closeDB := s.close
		s.close = func() {
			s.influx.Close()
			closeDB()
		}
		logger.Info("Fatigue snapshots read from InfluxDB", "bucket", cfg.Influx.Bucket)
	}
	return s, nil
}
