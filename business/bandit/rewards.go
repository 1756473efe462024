package bandit

import (
	"math"

	"budgetPilot/domain"
)

// ProxyWeight is the share of the score taken from the early CTR proxy at the given age.
// It is 1 at launch and 0 from MaturityDays on.
func (cfg Config) ProxyWeight(ageDays float64) float64 {
	if ageDays <= 0 {
		return 1
	}
	if ageDays >= cfg.MaturityDays {
		return 0
	}

	switch cfg.ProxyCurve {
	case CurveExponential:
		if cfg.ProxyHalfLifeDays <= 0 {
			return 0
		}
		return math.Pow(0.5, ageDays/cfg.ProxyHalfLifeDays)
	default:
		return clamp01(1 - ageDays/cfg.MaturityDays)
	}
}

// BlendedScore mixes normalized CTR and ROAS by attribution maturity. Result is in [0,1].
func (cfg Config) BlendedScore(ctr, roas, ageDays float64) float64 {
	w := cfg.ProxyWeight(ageDays)
	nCTR := clamp01(SafeRatio(ctr, cfg.CTRCeiling))
	nROAS := clamp01(SafeRatio(roas, cfg.ROASCeiling))
	return w*nCTR + (1-w)*nROAS
}

// Reward turns one metric batch into a [0,1] reward for the arm.
// In pipeline mode ROAS is cumulative so delayed revenue already credited to the arm counts.
func (cfg Config) Reward(batch domain.MetricBatch, arm domain.BanditArmState) float64 {
	if cfg.Mode == ModeDirect {
		if batch.Conversions > 0 {
			return 1
		}
		return 0
	}

	ctr := CTR(batch.Clicks, batch.Impressions)
	roas := ROAS(arm.TotalRevenue+batch.Revenue, arm.TotalSpend+batch.Spend)
	return cfg.BlendedScore(ctr, roas, arm.AgeDays)
}

// Score is what kill and scale decisions compare against their thresholds.
func (cfg Config) Score(arm domain.BanditArmState) float64 {
	if cfg.Mode == ModeDirect {
		return posteriorMean(arm.Successes, arm.Failures)
	}
	ctr := CTR(arm.TotalClicks, arm.TotalImpressions)
	roas := ROAS(arm.TotalRevenue, arm.TotalSpend)
	return cfg.BlendedScore(ctr, roas, arm.AgeDays)
}
