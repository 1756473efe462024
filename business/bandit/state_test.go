//go:build !integration

package bandit

import (
	"testing"
	"time"

	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestNewArm_PriorsRespectFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Floor = 0.05
	cfg.PriorFailures = 0.01

	arm := NewArm(domain.Variant{ID: "v1", AccountID: "acc", ParentID: "p"}, t0, cfg, 0)
	assert.Equal(t, 1.0, arm.Successes)
	assert.Equal(t, 0.05, arm.Failures)
	assert.Equal(t, t0, arm.FirstSeenAt)
	assert.Equal(t, 0.0, arm.AgeDays)

	boosted := NewArm(domain.Variant{ID: "v2"}, t0, cfg, 2)
	assert.Equal(t, 3.0, boosted.Successes)
}

func TestApplyDecay_NeverBelowFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyDecay = 0.5

	arm := NewArm(domain.Variant{ID: "v1"}, t0, cfg, 0)
	arm.Successes, arm.Failures = 0.02, 3

	ApplyDecay(&arm, t0.Add(60*day), cfg)
	assert.Equal(t, cfg.Floor, arm.Successes)
	assert.Equal(t, cfg.Floor, arm.Failures)
	assert.InDelta(t, 60.0, arm.AgeDays, 1e-9)
}

func TestApplyDecay_ScalesByElapsedDays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyDecay = 0.9

	arm := NewArm(domain.Variant{ID: "v1"}, t0, cfg, 0)
	arm.Successes, arm.Failures = 10, 20

	ApplyDecay(&arm, t0.Add(2*day), cfg)
	assert.InDelta(t, 10*0.81, arm.Successes, 1e-9)
	assert.InDelta(t, 20*0.81, arm.Failures, 1e-9)
	assert.Equal(t, t0.Add(2*day), arm.LastDecayedAt)
}

func TestObserve_IncrementsByExactlyOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeDirect

	arm := NewArm(domain.Variant{ID: "v1"}, t0, cfg, 0)
	arm.Successes, arm.Failures = 4, 6

	reward, success := Observe(&arm, domain.MetricBatch{Impressions: 100, Conversions: 40}, t0, cfg)
	require.True(t, success)
	assert.Equal(t, 1.0, reward)
	assert.Equal(t, 5.0, arm.Successes)
	assert.Equal(t, 6.0, arm.Failures)

	reward, success = Observe(&arm, domain.MetricBatch{Impressions: 100}, t0, cfg)
	require.False(t, success)
	assert.Equal(t, 0.0, reward)
	assert.Equal(t, 5.0, arm.Successes)
	assert.Equal(t, 7.0, arm.Failures)
	assert.Equal(t, int64(2), arm.Observations)
	assert.Equal(t, int64(200), arm.TotalImpressions)
}

func TestObserve_PipelineRewardMagnitudeDoesNotLeak(t *testing.T) {
	cfg := DefaultConfig()

	arm := NewArm(domain.Variant{ID: "v1"}, t0, cfg, 0)
	// CTR far above the ceiling, reward clamps to 1 but the counter still moves by one
	reward, success := Observe(&arm, domain.MetricBatch{Impressions: 100, Clicks: 50, Spend: 10}, t0, cfg)
	require.True(t, success)
	assert.Equal(t, 1.0, reward)
	assert.Equal(t, 2.0, arm.Successes)
	assert.Equal(t, 1.0, arm.Failures)
}

func TestAddRevenue_OnlyTouchesTotals(t *testing.T) {
	cfg := DefaultConfig()
	arm := NewArm(domain.Variant{ID: "v1"}, t0, cfg, 0)

	AddRevenue(&arm, 42.5, t0.Add(day), cfg)
	AddRevenue(&arm, -10, t0.Add(day), cfg)
	assert.Equal(t, 42.5, arm.TotalRevenue)
	assert.Equal(t, 1.0, arm.Successes)
	assert.Equal(t, 1.0, arm.Failures)
	assert.InDelta(t, 1.0, arm.AgeDays, 1e-9)
}
