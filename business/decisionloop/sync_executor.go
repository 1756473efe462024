package decisionloop

import (
	"context"
	"strconv"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
)

// VariantSyncExecutor mirrors successfully applied changes back onto the
// variant rows so the next cycle allocates from the platform's actual state.
type VariantSyncExecutor struct {
	next     changequeue.Executor
	variants VariantStore
}

func NewVariantSyncExecutor(next changequeue.Executor, variants VariantStore) *VariantSyncExecutor {
	return &VariantSyncExecutor{next: next, variants: variants}
}

func (e *VariantSyncExecutor) Execute(ctx context.Context, c domain.PendingChange) changequeue.ExecResult {
	res := e.next.Execute(ctx, c)
	if res.Class != changequeue.ResultOK {
		return res
	}

	var err error
	switch c.ChangeKind {
	case domain.ChangeKindBudget:
		budget, perr := strconv.ParseFloat(c.RequestedValue, 64)
		if perr != nil {
			logger.Warn("variant_sync_bad_budget", "change_id", c.ID, "value", c.RequestedValue)
			return res
		}
		err = e.variants.SetBudget(ctx, c.EntityID, budget)
	case domain.ChangeKindStatus:
		if c.RequestedValue == domain.StatusValuePaused {
			err = e.pause(ctx, c.EntityID)
		}
	}
	// the platform already holds the value; a failed local write heals on the next metrics sync
	if err != nil {
		logger.Error("variant_sync_failed", "change_id", c.ID, "entity_id", c.EntityID, "error", err)
	}
	return res
}

// pause marks a paused entity, leaving archived ones archived.
func (e *VariantSyncExecutor) pause(ctx context.Context, id string) error {
	v, err := e.variants.GetVariant(ctx, id)
	if err != nil || v == nil || v.Status == domain.VariantArchived {
		return err
	}
	return e.variants.SetStatus(ctx, id, domain.VariantPaused)
}
