package fatigue

import (
	"budgetPilot/domain"
)

type Rule string

const (
	RuleCTRDecline Rule = "ctr_decline"
	RuleSaturation Rule = "saturation"
	RuleCostSpike  Rule = "cost_spike"
	RuleFlatline   Rule = "flatline"
)

// RuleResult is one rule's finding. Severity is 0 unless the rule triggered;
// 0.5 means "just at the threshold", 1 means "twice past it" or worse.
type RuleResult struct {
	Rule      Rule    `json:"rule"`
	Triggered bool    `json:"triggered"`
	Severity  float64 `json:"severity"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

func safeRatio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// exceedSeverity maps value/threshold (>= 1 when triggered) into [0,1].
func exceedSeverity(value, threshold float64) float64 {
	return clamp01(safeRatio(value, threshold) / 2)
}

// windowCTR is clicks/impressions summed over series[from:to].
func windowCTR(series []domain.MetricSnapshot, from, to int) float64 {
	var clicks, imps int64
	for _, s := range series[from:to] {
		clicks += s.Clicks
		imps += s.Impressions
	}
	return safeRatio(float64(clicks), float64(imps))
}

func windowCPM(series []domain.MetricSnapshot, from, to int) float64 {
	var spend float64
	var imps int64
	for _, s := range series[from:to] {
		spend += s.Spend
		imps += s.Impressions
	}
	return safeRatio(spend*1000, float64(imps))
}

// ctrDecline compares the latest rolling CTR against the best rolling CTR seen so far.
func (d *Detector) ctrDecline(series []domain.MetricSnapshot) RuleResult {
	res := RuleResult{Rule: RuleCTRDecline, Threshold: d.cfg.CTRDropPct}
	w := d.cfg.CTRWindow
	if len(series) < d.cfg.MinPoints || len(series) < w+1 {
		return res
	}

	peak := 0.0
	var prev, latest float64
	for end := w; end <= len(series); end++ {
		avg := windowCTR(series, end-w, end)
		if avg > peak {
			peak = avg
		}
		prev, latest = latest, avg
	}
	if peak <= 0 {
		return res
	}

	drop := (peak - latest) / peak
	res.Value = drop
	if drop >= d.cfg.CTRDropPct && latest < prev {
		res.Triggered = true
		res.Severity = exceedSeverity(drop, d.cfg.CTRDropPct)
	}
	return res
}

// saturation is audience frequency: cumulative impressions per audience member.
func (d *Detector) saturation(series []domain.MetricSnapshot, audienceSize int64) RuleResult {
	res := RuleResult{Rule: RuleSaturation, Threshold: d.cfg.SaturationRatio}
	if audienceSize <= 0 || len(series) < d.cfg.MinPoints {
		return res
	}

	var imps int64
	for _, s := range series {
		imps += s.Impressions
	}
	freq := float64(imps) / float64(audienceSize)
	res.Value = freq
	if freq >= d.cfg.SaturationRatio {
		res.Triggered = true
		res.Severity = exceedSeverity(freq, d.cfg.SaturationRatio)
	}
	return res
}

// costSpike compares recent CPM against the CPM of the window right before it.
func (d *Detector) costSpike(series []domain.MetricSnapshot) RuleResult {
	res := RuleResult{Rule: RuleCostSpike, Threshold: d.cfg.CPMSpikeMultiple}
	recentW, baseW := d.cfg.CPMWindow, d.cfg.CPMBaselineWindow
	n := len(series)
	if n < d.cfg.MinPoints || n < recentW+baseW {
		return res
	}

	recent := windowCPM(series, n-recentW, n)
	baseline := windowCPM(series, n-recentW-baseW, n-recentW)
	if baseline <= 0 {
		return res
	}

	mult := recent / baseline
	res.Value = mult
	if mult >= d.cfg.CPMSpikeMultiple {
		res.Triggered = true
		res.Severity = exceedSeverity(mult, d.cfg.CPMSpikeMultiple)
	}
	return res
}

func (d *Detector) outcome(series []domain.MetricSnapshot) float64 {
	var clicks, conv int64
	var spend, revenue float64
	for _, s := range series {
		clicks += s.Clicks
		conv += s.Conversions
		spend += s.Spend
		revenue += s.Revenue
	}
	if d.cfg.Mode == "direct" {
		return safeRatio(float64(conv), float64(clicks))
	}
	return safeRatio(revenue, spend)
}

// flatline checks that the outcome of the later half of the lookback beats the
// earlier half by more than FlatlineMinImprovement. An unchanged outcome under
// continued spend counts as a flatline.
func (d *Detector) flatline(series []domain.MetricSnapshot) RuleResult {
	res := RuleResult{Rule: RuleFlatline, Threshold: d.cfg.FlatlineMinImprovement}

	spending := make([]domain.MetricSnapshot, 0, len(series))
	for _, s := range series {
		if s.Spend > 0 {
			spending = append(spending, s)
		}
	}
	look := d.cfg.FlatlineLookback
	if look < 2 || len(spending) < look || len(spending) < d.cfg.MinPoints {
		return res
	}

	window := spending[len(spending)-look:]
	half := look / 2
	first := d.outcome(window[:half])
	second := d.outcome(window[half:])

	var improvement float64
	improved := false
	if first <= 0 {
		improved = second > 0
		if improved {
			improvement = 1
		}
	} else {
		improvement = (second - first) / first
		improved = improvement > d.cfg.FlatlineMinImprovement
	}
	res.Value = improvement

	if !improved {
		res.Triggered = true
		res.Severity = clamp01(0.5 + 0.5*clamp01(d.cfg.FlatlineMinImprovement-improvement))
	}
	return res
}
