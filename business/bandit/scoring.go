package bandit

import (
	"math"
	"math/rand"
	"time"

	"budgetPilot/domain"
)

// Candidate is one arm competing for a share of the pool.
type Candidate struct {
	Variant domain.Variant
	Arm     domain.BanditArmState
	Boost   float64
	// MaxBudget caps the target budget when HasCap is set.
	MaxBudget float64
	HasCap    bool
}

// Allocator holds the sampling logic for one config. Not safe for concurrent use.
type Allocator struct {
	cfg Config
	rng *rand.Rand
}

func NewAllocator(cfg Config, rng *rand.Rand) *Allocator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Allocator{cfg: cfg, rng: rng}
}

func (a *Allocator) thompsonScore(arm domain.BanditArmState, boost float64) float64 {
	return SampleBeta(a.rng, arm.Successes, arm.Failures, a.cfg.Floor) * (1 + boost)
}

// winShares runs AllocationDraws rounds of Thompson sampling and returns
// the fraction of rounds each candidate won.
func (a *Allocator) winShares(arms []domain.BanditArmState, boosts []float64) []float64 {
	n := len(arms)
	shares := make([]float64, n)
	if n == 0 {
		return shares
	}
	draws := a.cfg.AllocationDraws
	if draws <= 0 {
		draws = defaultAllocationDraws
	}

	wins := make([]int, n)
	for d := 0; d < draws; d++ {
		best, bestScore := 0, math.Inf(-1)
		for i, arm := range arms {
			b := 0.0
			if boosts != nil {
				b = boosts[i]
			}
			if s := a.thompsonScore(arm, b); s > bestScore {
				best, bestScore = i, s
			}
		}
		wins[best]++
	}

	for i := range wins {
		shares[i] = float64(wins[i]) / float64(draws)
	}
	return shares
}

// ProbabilityBest estimates P(arm idx has the highest success rate) by Monte-Carlo,
// without contextual boosts.
func (a *Allocator) ProbabilityBest(arms []domain.BanditArmState, idx int) float64 {
	if idx < 0 || idx >= len(arms) {
		return 0
	}
	if len(arms) == 1 {
		return 1
	}
	return a.winShares(arms, nil)[idx]
}

// Allocate splits pool across candidates. Weights sum to 1 unless every
// candidate hits its cap, in which case the rest of the pool stays unspent.
func (a *Allocator) Allocate(cands []Candidate, pool float64) []domain.VariantWeight {
	n := len(cands)
	out := make([]domain.VariantWeight, n)
	if n == 0 {
		return out
	}
	if pool < 0 {
		pool = 0
	}

	arms := make([]domain.BanditArmState, n)
	boosts := make([]float64, n)
	for i, c := range cands {
		arms[i] = c.Arm
		boosts[i] = c.Boost
	}
	shares := a.winShares(arms, boosts)

	explore := clamp01(a.cfg.MinExplorationShare)
	weights := make([]float64, n)
	for i := range shares {
		weights[i] = explore/float64(n) + (1-explore)*shares[i]
	}

	capped := a.applyCaps(cands, weights, pool)

	for i, c := range cands {
		out[i] = domain.VariantWeight{
			VariantID:     c.Variant.ID,
			Weight:        weights[i],
			TargetBudget:  weights[i] * pool,
			CurrentBudget: c.Variant.CurrentBudget,
			Boost:         c.Boost,
			Capped:        capped[i],
			Fatigued:      c.Arm.Fatigued,
		}
	}
	return out
}

// applyCaps pins capped candidates at their cap and hands the excess to the
// uncapped ones pro rata, repeating until nothing exceeds its cap.
func (a *Allocator) applyCaps(cands []Candidate, weights []float64, pool float64) []bool {
	n := len(cands)
	capped := make([]bool, n)
	if pool <= 0 {
		return capped
	}

	for {
		var excess, freeMass float64
		changed := false
		for i, c := range cands {
			if capped[i] || !c.HasCap {
				continue
			}
			maxW := math.Max(c.MaxBudget, 0) / pool
			if weights[i] > maxW {
				excess += weights[i] - maxW
				weights[i] = maxW
				capped[i] = true
				changed = true
			}
		}
		if !changed {
			return capped
		}
		for i := range cands {
			if !capped[i] {
				freeMass += weights[i]
			}
		}
		if freeMass <= 0 {
			return capped
		}
		for i := range cands {
			if !capped[i] {
				weights[i] += excess * weights[i] / freeMass
			}
		}
	}
}

// ShouldKill reports whether the arm has had a fair chance and still underperforms.
func (a *Allocator) ShouldKill(arm domain.BanditArmState) bool {
	if arm.AgeDays < a.cfg.IgnoranceZoneDays {
		return false
	}
	if arm.Observations < a.cfg.MinSamples {
		return false
	}
	return a.cfg.Score(arm) < a.cfg.KillThreshold
}

// ShouldScaleAggressively reports whether arm idx is a confident winner among peers.
func (a *Allocator) ShouldScaleAggressively(peers []domain.BanditArmState, idx int) bool {
	if idx < 0 || idx >= len(peers) {
		return false
	}
	arm := peers[idx]
	if arm.Fatigued {
		return false
	}
	if a.cfg.Score(arm) <= a.cfg.ScaleThreshold {
		return false
	}
	return a.ProbabilityBest(peers, idx) >= a.cfg.ScaleConfidence
}
