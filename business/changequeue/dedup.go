package changequeue

import (
	"context"
	"time"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
)

// AppliedStore remembers the last value applied to each (entity, kind).
type AppliedStore interface {
	LastApplied(ctx context.Context, entityType, entityID, kind string) (string, bool, error)
	RecordApplied(ctx context.Context, entityType, entityID, kind, value string, ttl time.Duration) error
}

// DedupExecutor skips platform calls whose value is already in place. A
// worker that crashed after the platform accepted a change replays it as
// a no-op instead of a second write.
type DedupExecutor struct {
	next  Executor
	store AppliedStore
	ttl   time.Duration
}

func NewDedupExecutor(next Executor, store AppliedStore, ttl time.Duration) *DedupExecutor {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupExecutor{next: next, store: store, ttl: ttl}
}

func (e *DedupExecutor) Execute(ctx context.Context, c domain.PendingChange) ExecResult {
	last, ok, err := e.store.LastApplied(ctx, c.EntityType, c.EntityID, c.ChangeKind)
	if err != nil {
		// the guard is advisory; the platform call is still a "set to value"
		logger.Warn("applied_lookup_failed", "change_id", c.ID, "error", err)
	} else if ok && last == c.RequestedValue && c.AttemptCount > 0 {
		return OK(map[string]any{"deduplicated": true, "value": last})
	}

	res := e.next.Execute(ctx, c)
	if res.Class == ResultOK {
		if err := e.store.RecordApplied(ctx, c.EntityType, c.EntityID, c.ChangeKind, c.RequestedValue, e.ttl); err != nil {
			logger.Warn("applied_record_failed", "change_id", c.ID, "error", err)
		}
	}
	return res
}
