package bandit

import (
	"context"

	"budgetPilot/domain"
)

type Mode string

const (
	// ModeDirect rewards conversions observed in the batch itself.
	ModeDirect Mode = "direct"
	// ModePipeline blends an early CTR proxy with delayed ROAS.
	ModePipeline Mode = "pipeline"
)

type DecayCurve string

const (
	CurveLinear      DecayCurve = "linear"
	CurveExponential DecayCurve = "exponential"
)

type Config struct {
	Mode Mode `yaml:"mode" validate:"oneof=direct pipeline"`

	PriorSuccesses float64 `yaml:"prior_successes" validate:"gt=0"`
	PriorFailures  float64 `yaml:"prior_failures" validate:"gt=0"`
	// counters never drop below Floor
	Floor      float64 `yaml:"floor" validate:"gt=0"`
	DailyDecay float64 `yaml:"daily_decay" validate:"gt=0,lte=1"`

	SuccessThreshold float64 `yaml:"success_threshold" validate:"gte=0,lt=1"`

	// attribution lag
	MaturityDays      float64    `yaml:"maturity_days" validate:"gt=0"`
	ProxyCurve        DecayCurve `yaml:"proxy_curve" validate:"oneof=linear exponential"`
	ProxyHalfLifeDays float64    `yaml:"proxy_half_life_days" validate:"gt=0"`
	CTRCeiling        float64    `yaml:"ctr_ceiling" validate:"gt=0"`
	ROASCeiling       float64    `yaml:"roas_ceiling" validate:"gt=0"`

	IgnoranceZoneDays float64 `yaml:"ignorance_zone_days" validate:"gte=0"`
	MinSamples        int64   `yaml:"min_samples" validate:"gte=0"`
	KillThreshold     float64 `yaml:"kill_threshold" validate:"gte=0,lte=1"`
	ScaleThreshold    float64 `yaml:"scale_threshold" validate:"gte=0,lte=1"`
	ScaleConfidence   float64 `yaml:"scale_confidence" validate:"gte=0,lte=1"`

	AllocationDraws     int     `yaml:"allocation_draws" validate:"gte=1"`
	MinExplorationShare float64 `yaml:"min_exploration_share" validate:"gte=0,lt=1"`

	ContextBoostPerMatch float64 `yaml:"context_boost_per_match" validate:"gte=0"`
	ContextBoostCap      float64 `yaml:"context_boost_cap" validate:"gte=0"`
	SimilarWinners       int     `yaml:"similar_winners" validate:"gte=0"`

	// cold start from look-alike winners
	ColdStartSimilarity float64 `yaml:"cold_start_similarity" validate:"gte=0,lte=1"`
	ColdStartPriorBonus float64 `yaml:"cold_start_prior_bonus" validate:"gte=0"`

	// per parent group arm cap
	MaxArmsPerGroup int `yaml:"max_arms_per_group" validate:"gte=1"`
}

const (
	defaultPriorSuccesses       = 1.0
	defaultPriorFailures        = 1.0
	defaultFloor                = 0.01
	defaultDailyDecay           = 0.99
	defaultSuccessThreshold     = 0.5
	defaultMaturityDays         = 14.0
	defaultProxyHalfLifeDays    = 3.0
	defaultCTRCeiling           = 0.05
	defaultROASCeiling          = 4.0
	defaultIgnoranceZoneDays    = 3.0
	defaultMinSamples           = 10
	defaultKillThreshold        = 0.25
	defaultScaleThreshold       = 0.6
	defaultScaleConfidence      = 0.8
	defaultAllocationDraws      = 1000
	defaultMinExplorationShare  = 0.1
	defaultContextBoostPerMatch = 0.15
	defaultContextBoostCap      = 0.5
	defaultSimilarWinners       = 5
	defaultColdStartSimilarity  = 0.9
	defaultColdStartPriorBonus  = 1.0
	defaultMaxArmsPerGroup      = 50
)

func DefaultConfig() Config {
	return Config{
		Mode:             ModePipeline,
		PriorSuccesses:   defaultPriorSuccesses,
		PriorFailures:    defaultPriorFailures,
		Floor:            defaultFloor,
		DailyDecay:       defaultDailyDecay,
		SuccessThreshold: defaultSuccessThreshold,

		MaturityDays:      defaultMaturityDays,
		ProxyCurve:        CurveLinear,
		ProxyHalfLifeDays: defaultProxyHalfLifeDays,
		CTRCeiling:        defaultCTRCeiling,
		ROASCeiling:       defaultROASCeiling,

		IgnoranceZoneDays: defaultIgnoranceZoneDays,
		MinSamples:        defaultMinSamples,
		KillThreshold:     defaultKillThreshold,
		ScaleThreshold:    defaultScaleThreshold,
		ScaleConfidence:   defaultScaleConfidence,

		AllocationDraws:     defaultAllocationDraws,
		MinExplorationShare: defaultMinExplorationShare,

		ContextBoostPerMatch: defaultContextBoostPerMatch,
		ContextBoostCap:      defaultContextBoostCap,
		SimilarWinners:       defaultSimilarWinners,

		ColdStartSimilarity: defaultColdStartSimilarity,
		ColdStartPriorBonus: defaultColdStartPriorBonus,

		MaxArmsPerGroup: defaultMaxArmsPerGroup,
	}
}

// read per-account tuning overrides from DB.
type ConfigRepository interface {
	GetTuning(ctx context.Context, accountID string) (domain.AccountTuning, bool, error)
	UpsertTuning(ctx context.Context, t domain.AccountTuning) error
}
