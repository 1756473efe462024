package decisionloop

import "time"

type Config struct {
	LoopInterval time.Duration `yaml:"loop_interval"`
	// BatchLimit bounds how many metric batches and revenue events one cycle consumes.
	BatchLimit int `yaml:"batch_limit" validate:"gte=1"`
	// SnapshotLookback bounds the series handed to the fatigue detector.
	SnapshotLookback time.Duration `yaml:"snapshot_lookback"`

	ReduceBudgetFactor   float64 `yaml:"reduce_budget_factor" validate:"gt=0,lt=1"`
	MinBudgetChangeRatio float64 `yaml:"min_budget_change_ratio" validate:"gte=0"`
}

const (
	defaultLoopInterval         = 15 * time.Minute
	defaultBatchLimit           = 1000
	defaultSnapshotLookback     = 30 * 24 * time.Hour
	defaultReduceBudgetFactor   = 0.7
	defaultMinBudgetChangeRatio = 0.05
)

func DefaultConfig() Config {
	return Config{
		LoopInterval:         defaultLoopInterval,
		BatchLimit:           defaultBatchLimit,
		SnapshotLookback:     defaultSnapshotLookback,
		ReduceBudgetFactor:   defaultReduceBudgetFactor,
		MinBudgetChangeRatio: defaultMinBudgetChangeRatio,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.LoopInterval <= 0 {
		c.LoopInterval = d.LoopInterval
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.SnapshotLookback <= 0 {
		c.SnapshotLookback = d.SnapshotLookback
	}
	if c.ReduceBudgetFactor <= 0 || c.ReduceBudgetFactor >= 1 {
		c.ReduceBudgetFactor = d.ReduceBudgetFactor
	}
	if c.MinBudgetChangeRatio < 0 {
		c.MinBudgetChangeRatio = d.MinBudgetChangeRatio
	}
	return c
}
