package bandit

import (
	"sort"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
)

// capCandidates keeps at most max variants of a group: the most observed first,
// newest first among equals.
func capCandidates(variants []domain.Variant, arms map[string]domain.BanditArmState, max int) []domain.Variant {
	if max <= 0 || len(variants) <= max {
		return variants
	}

	out := make([]domain.Variant, len(variants))
	copy(out, variants)

	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := arms[out[i].ID].Observations, arms[out[j].ID].Observations
		if oi != oj {
			return oi > oj
		}
		return out[i].FirstSeenAt.After(out[j].FirstSeenAt)
	})

	logger.Warn("bandit_group_capped",
		"parent_id", variants[0].ParentID,
		"variants", len(variants),
		"kept", max,
	)
	return out[:max]
}
