package changequeue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WorkerPool runs Workers claim/execute loops sharing one platform rate limiter.
type WorkerPool struct {
	svc      *Service
	exec     Executor
	limiter  *rate.Limiter
	cfg      Config
	instance string
}

func NewWorkerPool(svc *Service, exec Executor) *WorkerPool {
	cfg := svc.Config()
	return &WorkerPool{
		svc:      svc,
		exec:     exec,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		cfg:      cfg,
		instance: uuid.NewString()[:8],
	}
}

// WorkerID is unique per process and worker slot.
func (p *WorkerPool) WorkerID(slot int) string {
	return fmt.Sprintf("%s-%s-%d", p.cfg.WorkerIDPrefix, p.instance, slot)
}

// Run blocks until ctx is cancelled or a worker hits an unrecoverable error.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		workerID := p.WorkerID(i)
		g.Go(func() error {
			return p.loop(ctx, workerID)
		})
	}

	logger.Info("worker_pool_started", "workers", p.cfg.Workers, "rate_per_sec", p.cfg.RatePerSecond)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("worker_pool_stopped")
	return err
}

func (p *WorkerPool) loop(ctx context.Context, workerID string) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		worked, err := p.RunOnce(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			logger.Error("worker_iteration_failed", "worker_id", workerID, "error", err)
		}

		// drain the queue without sleeping while there is work
		if worked {
			timer.Reset(0)
		} else {
			timer.Reset(p.cfg.PollInterval)
		}
	}
}

// RunOnce claims and processes at most one change. It reports whether a change was claimed.
func (p *WorkerPool) RunOnce(ctx context.Context, workerID string) (bool, error) {
	c, err := p.svc.Claim(ctx, workerID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	return true, p.process(ctx, *c, workerID)
}

func (p *WorkerPool) process(ctx context.Context, c domain.PendingChange, workerID string) error {
	ctx, span := pkgotel.StartSpan(ctx, "changequeue.execute",
		pkgotel.AttrChangeID.String(c.ID),
		pkgotel.AttrChangeKind.String(c.ChangeKind),
		pkgotel.AttrEntityID.String(c.EntityID),
		pkgotel.AttrWorkerID.String(workerID),
	)
	defer span.End()

	// an unused claim is left to expire and be reclaimed
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if err := p.svc.MarkExecuting(ctx, c, workerID); err != nil {
		pkgotel.RecordError(span, err)
		return fmt.Errorf("mark executing %s: %w", c.ID, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, p.cfg.ExecTimeout)
	start := time.Now()
	res := p.safeExecute(execCtx, c)
	cancel()
	ExecDuration.WithLabelValues(string(res.Class)).Observe(time.Since(start).Seconds())

	if res.Err != nil {
		pkgotel.RecordError(span, res.Err)
	}

	if err := p.svc.Finish(ctx, c, workerID, res); err != nil {
		// the platform may already reflect the change; lease expiry makes the
		// row reclaimable and the idempotent set converges on replay
		logger.Error("change_state_write_failed",
			"change_id", c.ID,
			"entity_id", c.EntityID,
			"class", res.Class,
			"error", err,
		)
		return err
	}
	return nil
}

// safeExecute turns executor panics and unclassified results into transient failures.
func (p *WorkerPool) safeExecute(ctx context.Context, c domain.PendingChange) (res ExecResult) {
	defer func() {
		if r := recover(); r != nil {
			res = Transient(fmt.Errorf("executor panic: %v", r))
		}
	}()

	res = p.exec.Execute(ctx, c)
	switch res.Class {
	case ResultOK, ResultTransient, ResultTerminal:
	default:
		res = Transient(fmt.Errorf("unclassified executor result: %v", res.Err))
	}
	return res
}
