package bandit

import (
	"context"
	"fmt"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"
)

// DebugAllocate returns the score components behind an allocation, without
// changing anything.
func (s *Service) DebugAllocate(
	ctx context.Context,
	parentID string,
	pool float64,
	override *domain.ContextVector,
) ([]domain.DebugAllocation, error) {

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	g, err := s.loadGroup(ctx, parentID, override, nil)
	if err != nil {
		return nil, err
	}
	if len(g.cands) == 0 {
		return []domain.DebugAllocation{}, nil
	}

	tid := pkgotel.TraceIDFromContext(ctx)
	logger.Debug("bandit_debug_allocate",
		"trace_id", tid,
		"parent_id", parentID,
		"pool", pool,
		"candidates", len(g.cands),
	)

	a := s.allocator(g.cfg)
	weights := a.Allocate(g.cands, pool)
	peers := g.arms()

	out := make([]domain.DebugAllocation, 0, len(g.cands))
	for i, c := range g.cands {
		arm := c.Arm
		ctr := CTR(arm.TotalClicks, arm.TotalImpressions)
		roas := ROAS(arm.TotalRevenue, arm.TotalSpend)

		out = append(out, domain.DebugAllocation{
			VariantID:       c.Variant.ID,
			Successes:       arm.Successes,
			Failures:        arm.Failures,
			PosteriorMean:   posteriorMean(arm.Successes, arm.Failures),
			AgeDays:         arm.AgeDays,
			CTR:             ctr,
			ROAS:            roas,
			ProxyWeight:     g.cfg.ProxyWeight(arm.AgeDays),
			Score:           g.cfg.Score(arm),
			Boost:           c.Boost,
			ProbBest:        a.ProbabilityBest(peers, i),
			Weight:          weights[i].Weight,
			TargetBudget:    weights[i].TargetBudget,
			Fatigued:        arm.Fatigued,
			ShouldKill:      a.ShouldKill(arm),
			ShouldScaleUp:   a.ShouldScaleAggressively(peers, i),
			InIgnoranceZone: arm.AgeDays < g.cfg.IgnoranceZoneDays,
		})
	}

	return out, nil
}
