package bandit

import (
	"context"
	"fmt"
	"time"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"
)

// group is a parent's live candidates with arms decayed to now.
type group struct {
	cfg     Config
	now     time.Time
	context domain.ContextVector
	cands   []Candidate
}

func (g group) arms() []domain.BanditArmState {
	out := make([]domain.BanditArmState, len(g.cands))
	for i, c := range g.cands {
		out[i] = c.Arm
	}
	return out
}

// loadGroup loads eligible variants of a parent with their arms and boosts.
// Variants without an arm get an unsaved prior arm.
func (s *Service) loadGroup(
	ctx context.Context,
	parentID string,
	override *domain.ContextVector,
	caps map[string]float64,
) (group, error) {

	if err := ctx.Err(); err != nil {
		return group{}, fmt.Errorf("context error: %w", err)
	}

	variants, err := s.variants.ListByParent(ctx, parentID)
	if err != nil {
		return group{}, fmt.Errorf("load variants of %s: %w", parentID, err)
	}

	eligible := make([]domain.Variant, 0, len(variants))
	for _, v := range variants {
		ok, err := s.eligChecker.IsEligible(ctx, v)
		if err != nil {
			return group{}, fmt.Errorf("eligibility of %s: %w", v.ID, err)
		}
		if ok {
			eligible = append(eligible, v)
		}
	}

	now := s.now()
	g := group{now: now}
	if len(eligible) == 0 {
		g.cfg = s.defaultCfg
		if override != nil {
			g.context = *override
		}
		return g, nil
	}

	g.cfg = s.loadConfig(ctx, eligible[0].AccountID)
	if override != nil {
		g.context = *override
	} else {
		g.context = groupContext(now, eligible)
	}

	ids := make([]string, len(eligible))
	for i, v := range eligible {
		ids[i] = v.ID
	}
	stored, err := s.arms.ListArms(ctx, ids)
	if err != nil {
		return group{}, fmt.Errorf("load arms of %s: %w", parentID, err)
	}

	eligible = capCandidates(eligible, stored, g.cfg.MaxArmsPerGroup)

	g.cands = make([]Candidate, 0, len(eligible))
	for _, v := range eligible {
		winners := s.similarWinners(v, g.cfg)
		arm, ok := stored[v.ID]
		if !ok {
			arm = NewArm(v, now, g.cfg, g.cfg.coldStartBonus(winners))
		}
		ApplyDecay(&arm, now, g.cfg)

		vc := g.context
		if vc.Recency == "" {
			vc.Recency = recencyBucket(arm.AgeDays)
		}

		c := Candidate{
			Variant: v,
			Arm:     arm,
			Boost:   g.cfg.ContextBoost(vc, winners),
		}
		if arm.Fatigued {
			// fatigued variants may not grow
			c.MaxBudget, c.HasCap = v.CurrentBudget, true
		}
		if limit, ok := caps[v.ID]; ok && (!c.HasCap || limit < c.MaxBudget) {
			c.MaxBudget, c.HasCap = limit, true
		}
		g.cands = append(g.cands, c)
	}

	logger.Debug("bandit_candidates_loaded",
		"trace_id", pkgotel.TraceIDFromContext(ctx),
		"parent_id", parentID,
		"variants", len(variants),
		"candidates", len(g.cands),
	)
	return g, nil
}

// groupContext is the shared part of the context: time of day plus the
// targeting of the first variant that declares one. Recency is per variant.
func groupContext(now time.Time, variants []domain.Variant) domain.ContextVector {
	c := domain.ContextVector{
		TimeOfDay:   computeTimeBucket(now),
		DeviceClass: "unknown",
		AgeBucket:   "unknown",
	}
	for _, v := range variants {
		if v.DeviceClass != "" && c.DeviceClass == "unknown" {
			c.DeviceClass = normalizeDevice(v.DeviceClass)
		}
		if v.AudienceAge != "" && c.AgeBucket == "unknown" {
			c.AgeBucket = normalizeAgeBucket(v.AudienceAge)
		}
	}
	return c
}
