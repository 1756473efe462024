package bandit

import (
	"context"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"
)

// loadConfig returns the defaults with the account's overrides applied.
// Repository errors fall back to the defaults.
func (s *Service) loadConfig(ctx context.Context, accountID string) Config {
	if s.cfgRepo == nil || accountID == "" {
		return s.defaultCfg
	}

	t, ok, err := s.cfgRepo.GetTuning(ctx, accountID)
	if err != nil {
		logger.Warn("bandit_tuning_load_failed",
			"trace_id", pkgotel.TraceIDFromContext(ctx),
			"account_id", accountID,
			"error", err,
		)
		return s.defaultCfg
	}
	if !ok {
		return s.defaultCfg
	}

	return s.defaultCfg.WithTuning(t)
}

// WithTuning copies cfg and overwrites every field the tuning row sets.
func (cfg Config) WithTuning(t domain.AccountTuning) Config {
	out := cfg

	if t.Mode != nil && (*t.Mode == string(ModeDirect) || *t.Mode == string(ModePipeline)) {
		out.Mode = Mode(*t.Mode)
	}
	if t.IgnoranceZoneDays != nil && *t.IgnoranceZoneDays >= 0 {
		out.IgnoranceZoneDays = *t.IgnoranceZoneDays
	}
	if t.KillThreshold != nil {
		out.KillThreshold = clamp01(*t.KillThreshold)
	}
	if t.ScaleThreshold != nil {
		out.ScaleThreshold = clamp01(*t.ScaleThreshold)
	}
	if t.MaturityDays != nil && *t.MaturityDays > 0 {
		out.MaturityDays = *t.MaturityDays
	}
	if t.ProxyHalfLifeDays != nil && *t.ProxyHalfLifeDays > 0 {
		out.ProxyHalfLifeDays = *t.ProxyHalfLifeDays
	}
	if t.ContextBoostCap != nil && *t.ContextBoostCap >= 0 {
		out.ContextBoostCap = *t.ContextBoostCap
	}

	return out
}
