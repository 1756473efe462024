// Package fatigue detects creative fatigue from a variant's metric series.
package fatigue

import (
	"sort"

	"budgetPilot/domain"
)

type Remediation string

const (
	RemediationNone            Remediation = "none"
	RemediationReduceBudget    Remediation = "reduce_budget"
	RemediationPause           Remediation = "pause"
	RemediationRefreshCreative Remediation = "refresh_creative"
)

type Verdict struct {
	Fatigued    bool         `json:"fatigued"`
	Triggered   []Rule       `json:"triggered"`
	Rules       []RuleResult `json:"rules"`
	MaxSeverity float64      `json:"max_severity"`
	Remediation Remediation  `json:"remediation"`
}

// Fired reports whether the given rule is among the triggered ones.
func (v Verdict) Fired(r Rule) bool {
	for _, t := range v.Triggered {
		if t == r {
			return true
		}
	}
	return false
}

type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) Config() Config {
	return d.cfg
}

// WithMode returns a detector judging the flatline outcome by mode. Unknown
// modes leave the detector unchanged.
func (d *Detector) WithMode(mode string) *Detector {
	if mode == d.cfg.Mode || (mode != "direct" && mode != "pipeline") {
		return d
	}
	cfg := d.cfg
	cfg.Mode = mode
	return &Detector{cfg: cfg}
}

// Evaluate runs all rules on the series. Short series never error; rules
// without enough points simply do not trigger.
func (d *Detector) Evaluate(series []domain.MetricSnapshot, audienceSize int64) Verdict {
	ordered := make([]domain.MetricSnapshot, len(series))
	copy(ordered, series)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].BucketStart.Before(ordered[j].BucketStart)
	})

	results := []RuleResult{
		d.ctrDecline(ordered),
		d.saturation(ordered, audienceSize),
		d.costSpike(ordered),
		d.flatline(ordered),
	}

	v := Verdict{Rules: results, Triggered: []Rule{}, Remediation: RemediationNone}
	for _, r := range results {
		if !r.Triggered {
			continue
		}
		v.Triggered = append(v.Triggered, r.Rule)
		if r.Severity > v.MaxSeverity {
			v.MaxSeverity = r.Severity
		}
		FatigueRulesTriggeredTotal.WithLabelValues(string(r.Rule)).Inc()
	}
	v.Fatigued = len(v.Triggered) > 0
	v.Remediation = d.remediation(v)

	FatigueVerdictsTotal.WithLabelValues(string(v.Remediation)).Inc()
	return v
}

func (d *Detector) remediation(v Verdict) Remediation {
	switch {
	case !v.Fatigued:
		return RemediationNone
	case len(v.Triggered) >= d.cfg.PauseRuleCount || v.MaxSeverity >= d.cfg.PauseSeverity:
		return RemediationPause
	case v.Fired(RuleSaturation) || v.Fired(RuleCTRDecline):
		return RemediationRefreshCreative
	default:
		return RemediationReduceBudget
	}
}
