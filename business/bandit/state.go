package bandit

import (
	"math"
	"time"

	"budgetPilot/domain"
)

const day = 24 * time.Hour

// NewArm creates the posterior of a variant seen for the first time.
// bonus is added to the success prior for look-alikes of past winners.
func NewArm(v domain.Variant, now time.Time, cfg Config, bonus float64) domain.BanditArmState {
	first := v.FirstSeenAt
	if first.IsZero() || first.After(now) {
		first = now
	}
	if bonus < 0 {
		bonus = 0
	}

	arm := domain.BanditArmState{
		VariantID:     v.ID,
		AccountID:     v.AccountID,
		ParentID:      v.ParentID,
		Successes:     cfg.PriorSuccesses + bonus,
		Failures:      cfg.PriorFailures,
		FirstSeenAt:   first,
		LastDecayedAt: now,
	}
	arm.AgeDays = ageDays(first, now)
	enforceFloor(&arm, cfg.Floor)
	return arm
}

// ApplyDecay forgets old evidence: both counters shrink by DailyDecay per elapsed day.
func ApplyDecay(arm *domain.BanditArmState, now time.Time, cfg Config) {
	if arm.LastDecayedAt.IsZero() {
		arm.LastDecayedAt = now
	}
	elapsed := now.Sub(arm.LastDecayedAt).Hours() / 24
	if elapsed > 0 && cfg.DailyDecay > 0 && cfg.DailyDecay < 1 {
		f := math.Pow(cfg.DailyDecay, elapsed)
		arm.Successes *= f
		arm.Failures *= f
		arm.LastDecayedAt = now
	}
	arm.AgeDays = ageDays(arm.FirstSeenAt, now)
	enforceFloor(arm, cfg.Floor)
}

// Observe folds one metric batch into the arm and returns the reward it produced.
// Exactly one of the counters moves, by exactly one.
func Observe(arm *domain.BanditArmState, batch domain.MetricBatch, now time.Time, cfg Config) (float64, bool) {
	ApplyDecay(arm, now, cfg)

	reward := cfg.Reward(batch, *arm)

	arm.TotalImpressions += batch.Impressions
	arm.TotalClicks += batch.Clicks
	arm.TotalConversions += batch.Conversions
	arm.TotalSpend += batch.Spend
	arm.TotalRevenue += batch.Revenue
	arm.Observations++

	success := reward > cfg.SuccessThreshold
	if success {
		arm.Successes++
	} else {
		arm.Failures++
	}
	enforceFloor(arm, cfg.Floor)

	return reward, success
}

// AddRevenue credits delayed revenue. The posterior is left alone; it moves on the next batch.
func AddRevenue(arm *domain.BanditArmState, amount float64, now time.Time, cfg Config) {
	if amount > 0 {
		arm.TotalRevenue += amount
	}
	arm.AgeDays = ageDays(arm.FirstSeenAt, now)
	enforceFloor(arm, cfg.Floor)
}

func enforceFloor(arm *domain.BanditArmState, floor float64) {
	if floor <= 0 {
		floor = defaultFloor
	}
	if !(arm.Successes >= floor) {
		arm.Successes = floor
	}
	if !(arm.Failures >= floor) {
		arm.Failures = floor
	}
}

func ageDays(firstSeen, now time.Time) float64 {
	if firstSeen.IsZero() || now.Before(firstSeen) {
		return 0
	}
	return float64(now.Sub(firstSeen)) / float64(day)
}
