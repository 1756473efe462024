// Package changequeue is the durable, paced queue that applies budget and
// status decisions to the ad platform.
package changequeue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Service struct {
	store    Store
	cfg      Config
	validate *validator.Validate

	now   func() time.Time
	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(store Store, cfg Config) *Service {
	return &Service{
		store:    store,
		cfg:      cfg.Normalize(),
		validate: validator.New(),
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithSeed(seed int64) *Service {
	s.rngMu.Lock()
	s.rng = rand.New(rand.NewSource(seed))
	s.rngMu.Unlock()
	return s
}

func (s *Service) Config() Config {
	return s.cfg
}

// jitter draws uniformly from [JitterMin, JitterMax].
func (s *Service) jitter() time.Duration {
	span := s.cfg.JitterMax - s.cfg.JitterMin
	if span <= 0 {
		return s.cfg.JitterMin
	}
	s.rngMu.Lock()
	d := time.Duration(s.rng.Int63n(int64(span) + 1))
	s.rngMu.Unlock()
	return s.cfg.JitterMin + d
}

// backoff is exponential in the attempt number, capped at BackoffMax.
func (s *Service) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := s.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}

// Enqueue validates and stores a new pending change with a jittered start.
// Returns ErrEntityBusy when the entity already has a change in flight.
func (s *Service) Enqueue(ctx context.Context, req domain.ChangeRequest) (domain.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return domain.PendingChange{}, fmt.Errorf("context error: %w", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return domain.PendingChange{}, fmt.Errorf("invalid change request: %w", err)
	}

	now := s.now().UTC()
	c := domain.PendingChange{
		ID:                uuid.NewString(),
		EntityID:          req.EntityID,
		EntityType:        req.EntityType,
		ChangeKind:        req.ChangeKind,
		CurrentValue:      req.CurrentValue,
		RequestedValue:    req.RequestedValue,
		Reason:            req.Reason,
		EarliestExecuteAt: now.Add(s.jitter()),
		Status:            domain.ChangePending,
		MaxAttempts:       s.cfg.MaxAttempts,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.InsertIfIdle(ctx, c); err != nil {
		if errors.Is(err, ErrEntityBusy) {
			ChangesEnqueuedTotal.WithLabelValues(c.ChangeKind, "busy").Inc()
			return domain.PendingChange{}, err
		}
		return domain.PendingChange{}, fmt.Errorf("enqueue change for %s: %w", c.EntityID, err)
	}
	ChangesEnqueuedTotal.WithLabelValues(c.ChangeKind, "queued").Inc()

	logger.Info("change_enqueued",
		"trace_id", pkgotel.TraceIDFromContext(ctx),
		"change_id", c.ID,
		"entity_id", c.EntityID,
		"kind", c.ChangeKind,
		"value", c.RequestedValue,
		"earliest_execute_at", c.EarliestExecuteAt,
	)
	return c, nil
}

// Claim hands the next eligible change to workerID under a lease.
func (s *Service) Claim(ctx context.Context, workerID string) (*domain.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if workerID == "" {
		return nil, errors.New("worker id is required")
	}

	c, err := s.store.Claim(ctx, workerID, s.now().UTC(), s.cfg.ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("claim change: %w", err)
	}
	if c == nil {
		ClaimsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}
	ClaimsTotal.WithLabelValues("claimed").Inc()
	return c, nil
}

// MarkExecuting moves a claimed change to executing. A claim whose lease ran
// out returns ErrLeaseLost, even if no other worker has taken it yet.
func (s *Service) MarkExecuting(ctx context.Context, c domain.PendingChange, workerID string) error {
	return s.store.MarkExecuting(ctx, c.ID, workerID, s.now().UTC(), s.cfg.ClaimLease)
}

// Finish records the executor's verdict: completed, rescheduled with backoff
// or terminally failed.
func (s *Service) Finish(ctx context.Context, c domain.PendingChange, workerID string, res ExecResult) error {
	now := s.now().UTC()

	switch res.Class {
	case ResultOK:
		if err := s.store.Complete(ctx, c.ID, workerID, res.Response, now); err != nil {
			return fmt.Errorf("complete change %s: %w", c.ID, err)
		}
		ChangesFinishedTotal.WithLabelValues("completed").Inc()
		logger.Info("change_completed", "change_id", c.ID, "entity_id", c.EntityID, "worker_id", workerID)
		return nil

	case ResultTransient:
		attempt := c.AttemptCount + 1
		if attempt < c.MaxAttempts {
			next := now.Add(s.backoff(attempt) + s.jitter())
			if err := s.store.Reschedule(ctx, c.ID, workerID, next, res.errString(), now); err != nil {
				return fmt.Errorf("reschedule change %s: %w", c.ID, err)
			}
			ChangesFinishedTotal.WithLabelValues("rescheduled").Inc()
			logger.Warn("change_rescheduled",
				"change_id", c.ID,
				"entity_id", c.EntityID,
				"attempt", attempt,
				"next_attempt_at", next,
				"error", res.errString(),
			)
			return nil
		}
		fallthrough

	default:
		if err := s.store.MarkFailed(ctx, c.ID, workerID, res.errString(), now); err != nil {
			return fmt.Errorf("fail change %s: %w", c.ID, err)
		}
		ChangesFinishedTotal.WithLabelValues("failed").Inc()
		logger.Error("change_failed",
			"change_id", c.ID,
			"entity_id", c.EntityID,
			"class", res.Class,
			"attempt", c.AttemptCount+1,
			"error", res.errString(),
		)
		return nil
	}
}

// Cancel withdraws a change that no worker has claimed yet.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := s.store.Cancel(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("cancel change %s: %w", id, err)
	}
	ChangesFinishedTotal.WithLabelValues("cancelled").Inc()
	logger.Info("change_cancelled", "trace_id", pkgotel.TraceIDFromContext(ctx), "change_id", id)
	return nil
}

// Requeue puts a failed change back in the queue with a fresh attempt budget.
func (s *Service) Requeue(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	now := s.now().UTC()
	if err := s.store.Requeue(ctx, id, now.Add(s.jitter()), now); err != nil {
		return fmt.Errorf("requeue change %s: %w", id, err)
	}
	logger.Info("change_requeued", "trace_id", pkgotel.TraceIDFromContext(ctx), "change_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.List(ctx, f)
}

// Stats returns counts per status, including zero counts.
func (s *Service) Stats(ctx context.Context) (map[domain.ChangeStatus]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count changes: %w", err)
	}
	out := map[domain.ChangeStatus]int64{}
	for _, st := range []domain.ChangeStatus{
		domain.ChangePending, domain.ChangeClaimed, domain.ChangeExecuting,
		domain.ChangeCompleted, domain.ChangeFailed, domain.ChangeCancelled,
	} {
		out[st] = counts[st]
	}
	return out, nil
}
