package bandit

import (
	"strings"
	"time"

	"budgetPilot/domain"
)

func computeTimeBucket(t time.Time) string {
	h := t.Hour()
	switch {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// normalizeDevice folds platform device labels into mobile / desktop / tablet / unknown.
func normalizeDevice(device string) string {
	d := strings.ToLower(strings.TrimSpace(device))
	switch {
	case d == "":
		return "unknown"
	case strings.Contains(d, "tablet"), strings.Contains(d, "ipad"):
		return "tablet"
	case strings.Contains(d, "mobile"), strings.Contains(d, "phone"),
		strings.Contains(d, "android"), strings.Contains(d, "ios"):
		return "mobile"
	case strings.Contains(d, "desktop"), strings.Contains(d, "web"):
		return "desktop"
	default:
		return "unknown"
	}
}

func normalizeAgeBucket(age string) string {
	a := strings.TrimSpace(age)
	if a == "" {
		return "unknown"
	}
	return a
}

// recencyBucket labels how long a variant has been live.
func recencyBucket(ageDays float64) string {
	switch {
	case ageDays < 1:
		return "launch"
	case ageDays < 3:
		return "early"
	case ageDays < 14:
		return "established"
	default:
		return "mature"
	}
}

// BuildContext derives the decision context for a variant at now.
func BuildContext(now time.Time, v domain.Variant) domain.ContextVector {
	return domain.ContextVector{
		TimeOfDay:   computeTimeBucket(now),
		DeviceClass: normalizeDevice(v.DeviceClass),
		AgeBucket:   normalizeAgeBucket(v.AudienceAge),
		Recency:     recencyBucket(ageDays(v.FirstSeenAt, now)),
	}
}

// matchedFields counts context fields equal to the ones stored with a pattern.
func matchedFields(c domain.ContextVector, meta map[string]any) int {
	if meta == nil {
		return 0
	}
	n := 0
	for k, v := range c.Map() {
		s, _ := v.(string)
		if s == "" {
			continue
		}
		if m, ok := meta[k].(string); ok && m == s {
			n++
		}
	}
	return n
}

// ContextBoost scores how well the context matches past winners, weighted by
// their similarity to the variant. Capped at ContextBoostCap.
func (cfg Config) ContextBoost(c domain.ContextVector, winners []domain.PatternMatch) float64 {
	var weighted, totalSim float64
	for _, w := range winners {
		if w.Similarity <= 0 || w.Entry.OutcomeLabel != domain.PatternLabelWinner {
			continue
		}
		weighted += w.Similarity * float64(matchedFields(c, w.Entry.Metadata))
		totalSim += w.Similarity
	}
	if totalSim == 0 {
		return 0
	}

	boost := cfg.ContextBoostPerMatch * weighted / totalSim
	if boost > cfg.ContextBoostCap {
		boost = cfg.ContextBoostCap
	}
	if boost < 0 {
		return 0
	}
	return boost
}

// coldStartBonus returns the prior bonus for a brand-new variant that looks
// like a past winner.
func (cfg Config) coldStartBonus(winners []domain.PatternMatch) float64 {
	for _, w := range winners {
		if w.Entry.OutcomeLabel == domain.PatternLabelWinner && w.Similarity >= cfg.ColdStartSimilarity {
			return cfg.ColdStartPriorBonus
		}
	}
	return 0
}
