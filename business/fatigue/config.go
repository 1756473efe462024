package fatigue

type Config struct {
	// Mode picks the flatline outcome: "direct" (conversion rate) or
	// "pipeline" (ROAS). It is not configured here; it follows the
	// allocator's reward mode, see Detector.WithMode.
	Mode      string `yaml:"-" validate:"omitempty,oneof=direct pipeline"`
	MinPoints int    `yaml:"min_points" validate:"gte=1"`

	CTRWindow  int     `yaml:"ctr_window" validate:"gte=1"`
	CTRDropPct float64 `yaml:"ctr_drop_pct" validate:"gt=0,lt=1"`

	SaturationRatio float64 `yaml:"saturation_ratio" validate:"gt=0"`

	CPMWindow         int     `yaml:"cpm_window" validate:"gte=1"`
	CPMBaselineWindow int     `yaml:"cpm_baseline_window" validate:"gte=1"`
	CPMSpikeMultiple  float64 `yaml:"cpm_spike_multiple" validate:"gt=1"`

	FlatlineLookback       int     `yaml:"flatline_lookback" validate:"gte=2"`
	FlatlineMinImprovement float64 `yaml:"flatline_min_improvement" validate:"gte=0"`

	PauseRuleCount int     `yaml:"pause_rule_count" validate:"gte=1,lte=4"`
	PauseSeverity  float64 `yaml:"pause_severity" validate:"gt=0,lte=1"`
}

const (
	defaultMinPoints              = 3
	defaultCTRWindow              = 3
	defaultCTRDropPct             = 0.25
	defaultSaturationRatio        = 3.0
	defaultCPMWindow              = 3
	defaultCPMBaselineWindow      = 7
	defaultCPMSpikeMultiple       = 1.5
	defaultFlatlineLookback       = 8
	defaultFlatlineMinImprovement = 0.0
	defaultPauseRuleCount         = 3
	defaultPauseSeverity          = 1.0
)

func DefaultConfig() Config {
	return Config{
		Mode:                   "pipeline",
		MinPoints:              defaultMinPoints,
		CTRWindow:              defaultCTRWindow,
		CTRDropPct:             defaultCTRDropPct,
		SaturationRatio:        defaultSaturationRatio,
		CPMWindow:              defaultCPMWindow,
		CPMBaselineWindow:      defaultCPMBaselineWindow,
		CPMSpikeMultiple:       defaultCPMSpikeMultiple,
		FlatlineLookback:       defaultFlatlineLookback,
		FlatlineMinImprovement: defaultFlatlineMinImprovement,
		PauseRuleCount:         defaultPauseRuleCount,
		PauseSeverity:          defaultPauseSeverity,
	}
}
