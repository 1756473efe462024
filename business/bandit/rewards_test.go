//go:build !integration

package bandit

import (
	"testing"

	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
)

func TestProxyWeight_Linear(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaturityDays = 10

	assert.Equal(t, 1.0, cfg.ProxyWeight(0))
	assert.InDelta(t, 0.5, cfg.ProxyWeight(5), 1e-12)
	assert.Equal(t, 0.0, cfg.ProxyWeight(10))
	assert.Equal(t, 0.0, cfg.ProxyWeight(25))
}

func TestProxyWeight_ExponentialForcedToZeroAtMaturity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProxyCurve = CurveExponential
	cfg.ProxyHalfLifeDays = 3
	cfg.MaturityDays = 14

	assert.Equal(t, 1.0, cfg.ProxyWeight(0))
	assert.InDelta(t, 0.5, cfg.ProxyWeight(3), 1e-12)
	assert.Greater(t, cfg.ProxyWeight(13.9), 0.0)
	assert.Equal(t, 0.0, cfg.ProxyWeight(14))
}

func TestBlendedScore_NewVariantIsProxyDriven(t *testing.T) {
	cfg := DefaultConfig()

	score := cfg.BlendedScore(0.03, 0, 0)
	assert.InDelta(t, 0.03/cfg.CTRCeiling, score, 1e-12)

	arm := domain.BanditArmState{AgeDays: 0, Observations: 50, TotalImpressions: 1000, TotalClicks: 30}
	a := NewAllocator(cfg, nil)
	assert.False(t, a.ShouldKill(arm))

	arm.TotalClicks = 0
	assert.False(t, a.ShouldKill(arm), "inside the ignorance zone regardless of score")
}

func TestBlendedScore_MatureVariantIsROASDriven(t *testing.T) {
	cfg := DefaultConfig()

	arm := domain.BanditArmState{
		AgeDays:          20,
		Observations:     40,
		TotalImpressions: 1000,
		TotalClicks:      50,
		TotalSpend:       100,
		TotalRevenue:     50,
	}
	assert.InDelta(t, 0.5/cfg.ROASCeiling, cfg.Score(arm), 1e-12)
	assert.True(t, NewAllocator(cfg, nil).ShouldKill(arm))
}

func TestShouldKill_NeedsMinSamples(t *testing.T) {
	cfg := DefaultConfig()
	arm := domain.BanditArmState{AgeDays: 20, Observations: cfg.MinSamples - 1, TotalSpend: 100}
	assert.False(t, NewAllocator(cfg, nil).ShouldKill(arm))
}

func TestReward_DirectMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeDirect

	assert.Equal(t, 1.0, cfg.Reward(domain.MetricBatch{Conversions: 1}, domain.BanditArmState{}))
	assert.Equal(t, 0.0, cfg.Reward(domain.MetricBatch{Clicks: 10, Impressions: 20}, domain.BanditArmState{}))
}

func TestReward_PipelineUsesCumulativeRevenue(t *testing.T) {
	cfg := DefaultConfig()
	arm := domain.BanditArmState{AgeDays: 30, TotalSpend: 100, TotalRevenue: 300}

	r := cfg.Reward(domain.MetricBatch{Spend: 100, Revenue: 100}, arm)
	assert.InDelta(t, 2.0/cfg.ROASCeiling, r, 1e-12)
}

func TestReward_ZeroImpressionsIsZero(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.0, cfg.Reward(domain.MetricBatch{}, domain.BanditArmState{}))
}
