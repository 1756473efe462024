package changequeue

import (
	"context"
	"errors"
	"time"

	"budgetPilot/domain"
)

var (
	ErrEntityBusy        = errors.New("entity already has a change in flight")
	ErrNotFound          = errors.New("pending change not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrLeaseLost         = errors.New("change lease lost")
	ErrNotCancellable    = errors.New("change is no longer pending")
)

// ListFilter selects changes for reporting. Zero values mean "any".
type ListFilter struct {
	Status   domain.ChangeStatus
	EntityID string
	Limit    int
}

// Store is the single source of truth for pending changes. Every mutation
// is one atomic, guarded statement or transaction.
type Store interface {
	// InsertIfIdle stores c unless c.EntityID has a non-terminal change (ErrEntityBusy).
	InsertIfIdle(ctx context.Context, c domain.PendingChange) error

	// Claim locks one eligible row for workerID: a due pending row, or a
	// claimed/executing row whose lease expired. Reclaiming an abandoned row
	// counts as a failed attempt; abandoned rows out of attempts become failed.
	// Returns (nil, nil) when nothing is eligible.
	Claim(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*domain.PendingChange, error)

	// claimed -> executing, only while the claim lease is still live; the
	// lease is renewed to now+lease for the execution
	MarkExecuting(ctx context.Context, id, workerID string, now time.Time, lease time.Duration) error
	// executing -> completed
	Complete(ctx context.Context, id, workerID string, response map[string]any, now time.Time) error
	// claimed|executing -> pending, attempt_count+1
	Reschedule(ctx context.Context, id, workerID string, next time.Time, lastErr string, now time.Time) error
	// claimed|executing -> failed, attempt_count+1
	MarkFailed(ctx context.Context, id, workerID string, lastErr string, now time.Time) error

	// pending -> cancelled
	Cancel(ctx context.Context, id string, now time.Time) error
	// failed -> pending with attempts reset, refused while the entity is busy
	Requeue(ctx context.Context, id string, next time.Time, now time.Time) error

	Get(ctx context.Context, id string) (*domain.PendingChange, error)
	List(ctx context.Context, f ListFilter) ([]domain.PendingChange, error)
	CountByStatus(ctx context.Context) (map[domain.ChangeStatus]int64, error)
}
