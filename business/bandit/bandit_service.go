package bandit

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
)

var (
	ErrUnknownVariant = errors.New("unknown variant")
	ErrArmNotFound    = errors.New("bandit arm not found")
)

// ---- Repository interfaces ----

type ArmRepository interface {
	// GetArm returns (nil, nil) when the variant has no arm yet.
	GetArm(ctx context.Context, variantID string) (*domain.BanditArmState, error)
	ListArms(ctx context.Context, variantIDs []string) (map[string]domain.BanditArmState, error)
	// Mutate runs fn against the row-locked arm and persists the result.
	// init builds the row when it does not exist; a nil init yields ErrArmNotFound.
	Mutate(
		ctx context.Context,
		variantID string,
		init func() (domain.BanditArmState, error),
		fn func(arm *domain.BanditArmState) error,
	) (domain.BanditArmState, error)
}

type VariantRepository interface {
	// GetVariant returns (nil, nil) when absent.
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
	ListByParent(ctx context.Context, parentID string) ([]domain.Variant, error)
}

// PatternFinder looks up past winners similar to a feature vector.
type PatternFinder interface {
	FindSimilarInAccount(accountID string, query []float64, k int) ([]domain.PatternMatch, error)
}

// ---- Usecase / Service ----

type Service struct {
	arms        ArmRepository
	variants    VariantRepository
	cfgRepo     ConfigRepository
	patterns    PatternFinder
	eligChecker EligibilityChecker
	defaultCfg  Config

	now   func() time.Time
	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(
	arms ArmRepository,
	variants VariantRepository,
	cfgRepo ConfigRepository,
	patterns PatternFinder,
	eligChecker EligibilityChecker,
	defaultCfg Config,
) *Service {
	if eligChecker == nil {
		eligChecker = ActiveEligibilityChecker{}
	}
	return &Service{
		arms:        arms,
		variants:    variants,
		cfgRepo:     cfgRepo,
		patterns:    patterns,
		eligChecker: eligChecker,
		defaultCfg:  defaultCfg,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithSeed makes sampling deterministic.
func (s *Service) WithSeed(seed int64) *Service {
	s.rngMu.Lock()
	s.rng = rand.New(rand.NewSource(seed))
	s.rngMu.Unlock()
	return s
}

func (s *Service) DefaultConfig() Config {
	return s.defaultCfg
}

// ConfigFor returns the effective config of an account.
func (s *Service) ConfigFor(ctx context.Context, accountID string) Config {
	return s.loadConfig(ctx, accountID)
}

// allocator hands out an Allocator with its own rng derived from the service seed.
func (s *Service) allocator(cfg Config) *Allocator {
	s.rngMu.Lock()
	seed := s.rng.Int63()
	s.rngMu.Unlock()
	return NewAllocator(cfg, rand.New(rand.NewSource(seed)))
}

func (s *Service) getVariant(ctx context.Context, id string) (domain.Variant, error) {
	v, err := s.variants.GetVariant(ctx, id)
	if err != nil {
		return domain.Variant{}, fmt.Errorf("load variant %s: %w", id, err)
	}
	if v == nil {
		return domain.Variant{}, fmt.Errorf("variant %s: %w", id, ErrUnknownVariant)
	}
	return *v, nil
}

// initArm builds a fresh arm, with a cold-start bonus for look-alikes of past winners.
func (s *Service) initArm(v domain.Variant, now time.Time, cfg Config) func() (domain.BanditArmState, error) {
	return func() (domain.BanditArmState, error) {
		bonus := cfg.coldStartBonus(s.similarWinners(v, cfg))
		if bonus > 0 {
			logger.Info("bandit_cold_start_prior",
				"variant_id", v.ID,
				"account_id", v.AccountID,
				"bonus", bonus,
			)
		}
		return NewArm(v, now, cfg, bonus), nil
	}
}

func (s *Service) similarWinners(v domain.Variant, cfg Config) []domain.PatternMatch {
	if s.patterns == nil || len(v.Features) == 0 || cfg.SimilarWinners <= 0 {
		return nil
	}
	matches, err := s.patterns.FindSimilarInAccount(v.AccountID, v.Features, cfg.SimilarWinners)
	if err != nil {
		logger.Warn("bandit_pattern_lookup_failed", "variant_id", v.ID, "error", err)
		return nil
	}
	return matches
}

//  Feedback / learning

// RecordObservation folds one metric batch into the variant's arm.
func (s *Service) RecordObservation(ctx context.Context, batch domain.MetricBatch) (domain.ObservationOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.ObservationOutcome{}, fmt.Errorf("context error: %w", err)
	}

	v, err := s.getVariant(ctx, batch.VariantID)
	if err != nil {
		return domain.ObservationOutcome{}, err
	}
	cfg := s.loadConfig(ctx, v.AccountID)
	now := s.now()

	var reward float64
	var success, duplicate bool
	_, err = s.arms.Mutate(ctx, v.ID, s.initArm(v, now, cfg), func(arm *domain.BanditArmState) error {
		if batch.ID != 0 && batch.ID <= arm.LastBatchID {
			duplicate = true
			return nil
		}
		reward, success = Observe(arm, batch, now, cfg)
		if batch.ID != 0 {
			arm.LastBatchID = batch.ID
		}
		return nil
	})
	if err != nil {
		return domain.ObservationOutcome{}, fmt.Errorf("update arm %s: %w", v.ID, err)
	}
	if duplicate {
		logger.Debug("bandit_observation_replayed", "variant_id", v.ID, "batch_id", batch.ID)
		return domain.ObservationOutcome{VariantID: v.ID, Duplicate: true}, nil
	}

	outcome := "failure"
	if success {
		outcome = "success"
	}
	BanditObservationsTotal.WithLabelValues(string(cfg.Mode), outcome).Inc()

	logger.Debug("bandit_observation",
		"trace_id", pkgotel.TraceIDFromContext(ctx),
		"variant_id", v.ID,
		"parent_id", v.ParentID,
		"mode", cfg.Mode,
		"reward", reward,
		"outcome", outcome,
	)

	return domain.ObservationOutcome{VariantID: v.ID, Reward: reward, Success: success}, nil
}

// RecordRevenue credits delayed revenue to the variant's cumulative ROAS.
// An event at or below the arm's revenue watermark was already credited.
func (s *Service) RecordRevenue(ctx context.Context, ev domain.RevenueEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	v, err := s.getVariant(ctx, ev.VariantID)
	if err != nil {
		return err
	}
	cfg := s.loadConfig(ctx, v.AccountID)
	now := s.now()

	_, err = s.arms.Mutate(ctx, v.ID, s.initArm(v, now, cfg), func(arm *domain.BanditArmState) error {
		if ev.ID != 0 && ev.ID <= arm.LastRevenueID {
			return nil
		}
		AddRevenue(arm, ev.RealizedRevenue, now, cfg)
		if ev.ID != 0 {
			arm.LastRevenueID = ev.ID
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("credit revenue to %s: %w", v.ID, err)
	}

	logger.Debug("bandit_revenue",
		"trace_id", pkgotel.TraceIDFromContext(ctx),
		"variant_id", v.ID,
		"amount", ev.RealizedRevenue,
	)
	return nil
}

// SetFatigued stores the latest fatigue verdict on the arm.
func (s *Service) SetFatigued(ctx context.Context, v domain.Variant, fatigued bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	cfg := s.loadConfig(ctx, v.AccountID)
	now := s.now()

	_, err := s.arms.Mutate(ctx, v.ID, s.initArm(v, now, cfg), func(arm *domain.BanditArmState) error {
		arm.Fatigued = fatigued
		return nil
	})
	if err != nil {
		return fmt.Errorf("set fatigued on %s: %w", v.ID, err)
	}
	return nil
}

// MarkPatternRecorded notes that the variant has been added to the pattern index.
func (s *Service) MarkPatternRecorded(ctx context.Context, variantID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	_, err := s.arms.Mutate(ctx, variantID, nil, func(arm *domain.BanditArmState) error {
		arm.PatternRecordedAt = &at
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark pattern recorded on %s: %w", variantID, err)
	}
	return nil
}

// Arm returns the stored arm of a variant, or (nil, nil).
func (s *Service) Arm(ctx context.Context, variantID string) (*domain.BanditArmState, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	return s.arms.GetArm(ctx, variantID)
}

//  Decisions

// AllocateRequest describes one parent group allocation.
type AllocateRequest struct {
	ParentID string
	Pool     float64
	// Context overrides the derived group context when set.
	Context *domain.ContextVector
	// Caps limits individual target budgets, e.g. for budget reduction remediation.
	Caps map[string]float64
}

// Allocate splits the pool of a parent group across its live variants.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (domain.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Allocation{}, fmt.Errorf("context error: %w", err)
	}

	g, err := s.loadGroup(ctx, req.ParentID, req.Context, req.Caps)
	if err != nil {
		return domain.Allocation{}, err
	}

	alloc := domain.Allocation{ParentID: req.ParentID, Pool: req.Pool, Context: g.context}
	if len(g.cands) == 0 {
		return alloc, nil
	}

	alloc.Weights = s.allocator(g.cfg).Allocate(g.cands, req.Pool)
	BanditAllocationsTotal.WithLabelValues(string(g.cfg.Mode)).Inc()

	logger.Debug("bandit_allocate",
		"trace_id", pkgotel.TraceIDFromContext(ctx),
		"parent_id", req.ParentID,
		"pool", req.Pool,
		"candidates", len(g.cands),
	)
	return alloc, nil
}

// ShouldKill reports whether the variant should be paused permanently.
func (s *Service) ShouldKill(ctx context.Context, variantID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	arm, err := s.arms.GetArm(ctx, variantID)
	if err != nil {
		return false, fmt.Errorf("load arm %s: %w", variantID, err)
	}
	if arm == nil {
		return false, nil
	}

	cfg := s.loadConfig(ctx, arm.AccountID)
	view := *arm
	ApplyDecay(&view, s.now(), cfg)

	kill := s.allocator(cfg).ShouldKill(view)
	if kill {
		BanditKillDecisionsTotal.Inc()
	}
	return kill, nil
}

// ShouldScaleAggressively reports whether the variant is a confident winner in its group.
func (s *Service) ShouldScaleAggressively(ctx context.Context, variantID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	v, err := s.getVariant(ctx, variantID)
	if err != nil {
		return false, err
	}

	g, err := s.loadGroup(ctx, v.ParentID, nil, nil)
	if err != nil {
		return false, err
	}

	peers := g.arms()
	for i, c := range g.cands {
		if c.Variant.ID == variantID {
			return s.allocator(g.cfg).ShouldScaleAggressively(peers, i), nil
		}
	}
	return false, nil
}
