//go:build !integration

package bandit

import (
	"math/rand"
	"testing"

	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id string, s, f, budget float64) Candidate {
	return Candidate{
		Variant: domain.Variant{ID: id, CurrentBudget: budget},
		Arm:     domain.BanditArmState{VariantID: id, Successes: s, Failures: f},
	}
}

func sumWeights(ws []domain.VariantWeight) float64 {
	total := 0.0
	for _, w := range ws {
		total += w.Weight
	}
	return total
}

func TestAllocate_WeightsSumToOne(t *testing.T) {
	a := NewAllocator(DefaultConfig(), rand.New(rand.NewSource(42)))

	ws := a.Allocate([]Candidate{
		cand("a", 30, 10, 50),
		cand("b", 10, 30, 50),
		cand("c", 1, 1, 0),
	}, 300)

	require.Len(t, ws, 3)
	assert.InDelta(t, 1.0, sumWeights(ws), 1e-9)
	for _, w := range ws {
		assert.InDelta(t, w.Weight*300, w.TargetBudget, 1e-9)
	}
	assert.Greater(t, ws[0].Weight, ws[1].Weight)
}

func TestAllocate_NewVariantGetsExplorationShare(t *testing.T) {
	cfg := DefaultConfig()
	a := NewAllocator(cfg, rand.New(rand.NewSource(1)))

	ws := a.Allocate([]Candidate{
		cand("winner", 500, 5, 100),
		cand("fresh", cfg.PriorSuccesses, cfg.PriorFailures, 0),
	}, 100)

	assert.GreaterOrEqual(t, ws[1].Weight, cfg.MinExplorationShare/2)
	assert.InDelta(t, 1.0, sumWeights(ws), 1e-9)
}

func TestAllocate_FatiguedCappedAndExcessRedistributed(t *testing.T) {
	a := NewAllocator(DefaultConfig(), rand.New(rand.NewSource(5)))

	tired := cand("tired", 80, 20, 10)
	tired.Arm.Fatigued = true
	tired.MaxBudget, tired.HasCap = 10, true

	ws := a.Allocate([]Candidate{tired, cand("other", 20, 80, 90)}, 100)

	assert.LessOrEqual(t, ws[0].TargetBudget, 10.0+1e-9)
	assert.True(t, ws[0].Capped)
	assert.True(t, ws[0].Fatigued)
	assert.InDelta(t, 90.0, ws[1].TargetBudget, 1e-9)
	assert.InDelta(t, 1.0, sumWeights(ws), 1e-9)
}

func TestAllocate_AllCappedLeavesPoolUnspent(t *testing.T) {
	a := NewAllocator(DefaultConfig(), rand.New(rand.NewSource(5)))

	x := cand("x", 5, 5, 20)
	x.MaxBudget, x.HasCap = 10, true
	y := cand("y", 5, 5, 20)
	y.MaxBudget, y.HasCap = 10, true

	ws := a.Allocate([]Candidate{x, y}, 40)
	assert.InDelta(t, 10.0, ws[0].TargetBudget, 1e-9)
	assert.InDelta(t, 10.0, ws[1].TargetBudget, 1e-9)
	assert.InDelta(t, 0.5, sumWeights(ws), 1e-9)
}

func TestAllocate_ContextBoostShiftsShare(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllocationDraws = 4000
	a := NewAllocator(cfg, rand.New(rand.NewSource(9)))

	boosted := cand("boosted", 50, 50, 50)
	boosted.Boost = 0.5

	ws := a.Allocate([]Candidate{boosted, cand("plain", 50, 50, 50)}, 100)
	assert.Greater(t, ws[0].Weight, 0.8)
}

func TestAllocate_Empty(t *testing.T) {
	a := NewAllocator(DefaultConfig(), nil)
	assert.Empty(t, a.Allocate(nil, 100))
}

func TestShouldScaleAggressively(t *testing.T) {
	cfg := DefaultConfig()
	a := NewAllocator(cfg, rand.New(rand.NewSource(11)))

	strong := domain.BanditArmState{
		VariantID: "strong", Successes: 90, Failures: 10,
		TotalImpressions: 1000, TotalClicks: 50,
	}
	weak := domain.BanditArmState{
		VariantID: "weak", Successes: 10, Failures: 90,
		TotalImpressions: 1000, TotalClicks: 5,
	}
	peers := []domain.BanditArmState{strong, weak}

	assert.True(t, a.ShouldScaleAggressively(peers, 0))
	assert.False(t, a.ShouldScaleAggressively(peers, 1))

	peers[0].Fatigued = true
	assert.False(t, a.ShouldScaleAggressively(peers, 0))
	assert.False(t, a.ShouldScaleAggressively(peers, 5))
}

func TestContextBoost_CappedAndWinnersOnly(t *testing.T) {
	cfg := DefaultConfig()
	c := domain.ContextVector{TimeOfDay: "evening", DeviceClass: "mobile", AgeBucket: "25-34", Recency: "early"}

	full := domain.PatternMatch{
		Similarity: 0.9,
		Entry: domain.PatternEntry{
			OutcomeLabel: domain.PatternLabelWinner,
			Metadata:     c.Map(),
		},
	}
	assert.Equal(t, cfg.ContextBoostCap, cfg.ContextBoost(c, []domain.PatternMatch{full}))

	partial := full
	partial.Entry.Metadata = map[string]any{"time_of_day": "evening"}
	assert.InDelta(t, cfg.ContextBoostPerMatch, cfg.ContextBoost(c, []domain.PatternMatch{partial}), 1e-12)

	loser := full
	loser.Entry.OutcomeLabel = "loser"
	assert.Equal(t, 0.0, cfg.ContextBoost(c, []domain.PatternMatch{loser}))
	assert.Equal(t, 0.0, cfg.ContextBoost(c, nil))
}

func TestBuildContext(t *testing.T) {
	v := domain.Variant{DeviceClass: "Android Phone", AudienceAge: "25-34", FirstSeenAt: t0.Add(-2 * day)}
	c := BuildContext(t0, v)
	assert.Equal(t, "morning", c.TimeOfDay)
	assert.Equal(t, "mobile", c.DeviceClass)
	assert.Equal(t, "25-34", c.AgeBucket)
	assert.Equal(t, "early", c.Recency)
}
