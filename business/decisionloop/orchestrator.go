// Package decisionloop ties metrics ingestion, fatigue detection, allocation
// and the change queue into one periodic cycle.
package decisionloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budgetPilot/business/bandit"
	"budgetPilot/business/fatigue"
	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"

	"github.com/google/uuid"
)

var ErrCycleRunning = errors.New("decision cycle already running")

// ---- Dependencies ----

type MetricsSource interface {
	UnprocessedBatches(ctx context.Context, limit int) ([]domain.MetricBatch, error)
	MarkBatchProcessed(ctx context.Context, id uint, at time.Time) error
	UnprocessedRevenue(ctx context.Context, limit int) ([]domain.RevenueEvent, error)
	MarkRevenueProcessed(ctx context.Context, id uint, at time.Time) error
}

// SnapshotSource returns a variant's per-bucket series since a point in time, oldest first.
type SnapshotSource interface {
	Snapshots(ctx context.Context, variantID string, since time.Time) ([]domain.MetricSnapshot, error)
}

type VariantStore interface {
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
	ListByParent(ctx context.Context, parentID string) ([]domain.Variant, error)
	ListActiveParentIDs(ctx context.Context) ([]string, error)
	ApplyBatch(ctx context.Context, b domain.MetricBatch) error
	ApplyRevenue(ctx context.Context, ev domain.RevenueEvent) error
	SetStatus(ctx context.Context, id, status string) error
	SetBudget(ctx context.Context, id string, budget float64) error
}

type Allocator interface {
	ConfigFor(ctx context.Context, accountID string) bandit.Config
	RecordObservation(ctx context.Context, batch domain.MetricBatch) (domain.ObservationOutcome, error)
	RecordRevenue(ctx context.Context, ev domain.RevenueEvent) error
	SetFatigued(ctx context.Context, v domain.Variant, fatigued bool) error
	MarkPatternRecorded(ctx context.Context, variantID string, at time.Time) error
	Arm(ctx context.Context, variantID string) (*domain.BanditArmState, error)
	Allocate(ctx context.Context, req bandit.AllocateRequest) (domain.Allocation, error)
	ShouldKill(ctx context.Context, variantID string) (bool, error)
	ShouldScaleAggressively(ctx context.Context, variantID string) (bool, error)
}

type PatternRecorder interface {
	Add(ctx context.Context, vector []float64, label string, metadata map[string]any) (domain.PatternEntry, error)
	Persist(ctx context.Context) error
}

type ChangeEnqueuer interface {
	Enqueue(ctx context.Context, req domain.ChangeRequest) (domain.PendingChange, error)
}

type DecisionLog interface {
	SaveDecision(ctx context.Context, d *domain.AllocationDecision) error
}

// RefreshNotifier tells the creative team a variant needs new creative.
type RefreshNotifier interface {
	NotifyRefresh(ctx context.Context, v domain.Variant, verdict fatigue.Verdict) error
}

type Deps struct {
	Metrics   MetricsSource
	Snapshots SnapshotSource
	Variants  VariantStore
	Allocator Allocator
	Detector  *fatigue.Detector
	Patterns  PatternRecorder
	Queue     ChangeEnqueuer
	Decisions DecisionLog
	Notifier  RefreshNotifier
}

// CycleReport counts what one cycle did.
type CycleReport struct {
	TraceID       string        `json:"trace_id"`
	Observations  int           `json:"observations"`
	Revenue       int           `json:"revenue"`
	Groups        int           `json:"groups"`
	Fatigued      int           `json:"fatigued"`
	Paused        int           `json:"paused"`
	Killed        int           `json:"killed"`
	KillsDeferred int           `json:"kills_deferred"`
	Refreshes     int           `json:"refreshes"`
	BudgetMoves   int           `json:"budget_moves"`
	SkippedBusy   int           `json:"skipped_busy"`
	Patterns      int           `json:"patterns"`
	Errors        int           `json:"errors"`
	Duration      time.Duration `json:"duration"`
}

type Orchestrator struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	// running guards against overlapping cycles
	running sync.Mutex
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if deps.Detector == nil {
		deps.Detector = fatigue.NewDetector(fatigue.DefaultConfig())
	}
	return &Orchestrator{deps: deps, cfg: cfg.normalize(), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Run executes a cycle every LoopInterval until ctx is cancelled. A cycle
// that outlasts the interval delays the next tick instead of overlapping it.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.LoopInterval)
	defer ticker.Stop()

	logger.Info("decision_loop_started", "interval", o.cfg.LoopInterval)
	for {
		if _, err := o.RunCycle(ctx); err != nil && ctx.Err() == nil {
			logger.Error("decision_cycle_failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info("decision_loop_stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one full pass. It refuses to start while another cycle
// is in progress.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	if err := ctx.Err(); err != nil {
		return CycleReport{}, fmt.Errorf("context error: %w", err)
	}
	if !o.running.TryLock() {
		CyclesTotal.WithLabelValues("overlap").Inc()
		return CycleReport{}, ErrCycleRunning
	}
	defer o.running.Unlock()

	traceID := pkgotel.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = pkgotel.WithTraceID(ctx, traceID)
	}
	ctx, span := pkgotel.StartSpan(ctx, "decisionloop.cycle")
	defer span.End()

	start := time.Now()
	rep := CycleReport{TraceID: traceID}

	if err := o.ingestBatches(ctx, &rep); err != nil {
		pkgotel.RecordError(span, err)
		CyclesTotal.WithLabelValues("error").Inc()
		return rep, err
	}
	if err := o.ingestRevenue(ctx, &rep); err != nil {
		pkgotel.RecordError(span, err)
		CyclesTotal.WithLabelValues("error").Inc()
		return rep, err
	}

	parents, err := o.deps.Variants.ListActiveParentIDs(ctx)
	if err != nil {
		pkgotel.RecordError(span, err)
		CyclesTotal.WithLabelValues("error").Inc()
		return rep, fmt.Errorf("list parent groups: %w", err)
	}

	for _, parentID := range parents {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("context error: %w", err)
		}
		if err := o.processGroup(ctx, parentID, &rep); err != nil {
			rep.Errors++
			logger.Error("decision_group_failed",
				"trace_id", traceID,
				"parent_id", parentID,
				"error", err,
			)
			continue
		}
		rep.Groups++
	}

	if rep.Patterns > 0 && o.deps.Patterns != nil {
		if err := o.deps.Patterns.Persist(ctx); err != nil {
			rep.Errors++
			logger.Error("pattern_persist_failed", "trace_id", traceID, "error", err)
		}
	}

	rep.Duration = time.Since(start)
	CycleDuration.Observe(rep.Duration.Seconds())
	CyclesTotal.WithLabelValues("ok").Inc()

	logger.Info("decision_cycle_done",
		"trace_id", traceID,
		"observations", rep.Observations,
		"revenue_events", rep.Revenue,
		"groups", rep.Groups,
		"fatigued", rep.Fatigued,
		"killed", rep.Killed,
		"kills_deferred", rep.KillsDeferred,
		"budget_moves", rep.BudgetMoves,
		"skipped_busy", rep.SkippedBusy,
		"patterns", rep.Patterns,
		"errors", rep.Errors,
		"duration", rep.Duration,
	)
	return rep, nil
}
