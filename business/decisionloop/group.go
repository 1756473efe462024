package decisionloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"budgetPilot/business/bandit"
	"budgetPilot/business/changequeue"
	"budgetPilot/business/fatigue"
	"budgetPilot/domain"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"

	"gorm.io/datatypes"
)

// groupPlan is what fatigue and kill checks decided before allocation.
type groupPlan struct {
	caps     map[string]float64
	halted   map[string]bool
	fatigued []string
	killed   []string
	// reserved is budget still spending on variants whose pause could not be queued
	reserved float64
}

// hold keeps a variant at its current budget and out of the allocation.
func (p *groupPlan) hold(v domain.Variant) {
	p.halted[v.ID] = true
	p.caps[v.ID] = 0
	p.reserved += v.CurrentBudget
}

func formatAmount(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

// budgetMoved reports whether target differs enough from current to be worth a platform call.
func (o *Orchestrator) budgetMoved(current, target float64) bool {
	if current <= 0 {
		return target > 0
	}
	return math.Abs(target-current)/current >= o.cfg.MinBudgetChangeRatio
}

// enqueue submits a change; an entity with a change in flight is skipped, not an error.
func (o *Orchestrator) enqueue(ctx context.Context, req domain.ChangeRequest, rep *CycleReport) (bool, error) {
	c, err := o.deps.Queue.Enqueue(ctx, req)
	if errors.Is(err, changequeue.ErrEntityBusy) {
		rep.SkippedBusy++
		logger.Debug("decision_skipped_busy_entity", "entity_id", req.EntityID, "kind", req.ChangeKind)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	DecisionsTotal.WithLabelValues(req.ChangeKind).Inc()
	logger.Info("decision_enqueued",
		"trace_id", pkgotel.TraceIDFromContext(ctx),
		"change_id", c.ID,
		"entity_id", c.EntityID,
		"kind", c.ChangeKind,
		"value", c.RequestedValue,
		"reason", c.Reason,
	)
	return true, nil
}

func pauseRequest(v domain.Variant, reason string) domain.ChangeRequest {
	return domain.ChangeRequest{
		EntityID:       v.ID,
		EntityType:     v.EntityType,
		ChangeKind:     domain.ChangeKindStatus,
		CurrentValue:   domain.StatusValueActive,
		RequestedValue: domain.StatusValuePaused,
		Reason:         reason,
	}
}

func rulesReason(v fatigue.Verdict) string {
	names := make([]string, len(v.Triggered))
	for i, r := range v.Triggered {
		names[i] = string(r)
	}
	return "fatigue: " + strings.Join(names, ",")
}

func (o *Orchestrator) processGroup(ctx context.Context, parentID string, rep *CycleReport) error {
	ctx, span := pkgotel.StartSpan(ctx, "decisionloop.group", pkgotel.AttrParentID.String(parentID))
	defer span.End()

	variants, err := o.deps.Variants.ListByParent(ctx, parentID)
	if err != nil {
		return fmt.Errorf("load variants of %s: %w", parentID, err)
	}

	live := make([]domain.Variant, 0, len(variants))
	var pool float64
	for _, v := range variants {
		if v.IsActive() {
			live = append(live, v)
			pool += v.CurrentBudget
		}
	}
	if len(live) == 0 {
		return nil
	}

	now := o.now().UTC()
	plan := groupPlan{caps: map[string]float64{}, halted: map[string]bool{}}

	for _, v := range live {
		if err := o.checkFatigue(ctx, v, now, &plan, rep); err != nil {
			return err
		}
		if plan.halted[v.ID] {
			continue
		}
		if err := o.checkKill(ctx, v, &plan, rep); err != nil {
			return err
		}
	}

	alloc, err := o.deps.Allocator.Allocate(ctx, bandit.AllocateRequest{
		ParentID: parentID,
		Pool:     math.Max(pool-plan.reserved, 0),
		Caps:     plan.caps,
	})
	if err != nil {
		pkgotel.RecordError(span, err)
		return fmt.Errorf("allocate %s: %w", parentID, err)
	}

	for _, w := range alloc.Weights {
		if plan.halted[w.VariantID] || !o.budgetMoved(w.CurrentBudget, w.TargetBudget) {
			continue
		}
		v := findVariant(live, w.VariantID)
		ok, err := o.enqueue(ctx, domain.ChangeRequest{
			EntityID:       w.VariantID,
			EntityType:     v.EntityType,
			ChangeKind:     domain.ChangeKindBudget,
			CurrentValue:   formatAmount(w.CurrentBudget),
			RequestedValue: formatAmount(w.TargetBudget),
			Reason:         fmt.Sprintf("allocation weight %.3f", w.Weight),
		}, rep)
		if err != nil {
			return fmt.Errorf("enqueue budget for %s: %w", w.VariantID, err)
		}
		if ok {
			rep.BudgetMoves++
		}
	}

	if err := o.recordWinners(ctx, live, alloc, plan, now, rep); err != nil {
		return err
	}

	return o.logDecision(ctx, live, alloc, plan)
}

func findVariant(vs []domain.Variant, id string) domain.Variant {
	for _, v := range vs {
		if v.ID == id {
			return v
		}
	}
	return domain.Variant{ID: id, EntityType: domain.EntityAd}
}

func (o *Orchestrator) checkFatigue(ctx context.Context, v domain.Variant, now time.Time, plan *groupPlan, rep *CycleReport) error {
	since := now.Add(-o.cfg.SnapshotLookback)
	if !v.FirstSeenAt.IsZero() && v.FirstSeenAt.After(since) {
		since = v.FirstSeenAt
	}
	series, err := o.deps.Snapshots.Snapshots(ctx, v.ID, since)
	if err != nil {
		return fmt.Errorf("load snapshots of %s: %w", v.ID, err)
	}

	// the account's reward mode also decides what flatline measures
	mode := o.deps.Allocator.ConfigFor(ctx, v.AccountID).Mode
	verdict := o.deps.Detector.WithMode(string(mode)).Evaluate(series, v.AudienceSize)

	arm, err := o.deps.Allocator.Arm(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("load arm of %s: %w", v.ID, err)
	}
	wasFatigued := arm != nil && arm.Fatigued
	if wasFatigued != verdict.Fatigued {
		if err := o.deps.Allocator.SetFatigued(ctx, v, verdict.Fatigued); err != nil {
			return err
		}
	}
	if !verdict.Fatigued {
		return nil
	}

	rep.Fatigued++
	plan.fatigued = append(plan.fatigued, v.ID)
	logger.Info("variant_fatigued",
		"trace_id", pkgotel.TraceIDFromContext(ctx),
		"variant_id", v.ID,
		"rules", verdict.Triggered,
		"max_severity", verdict.MaxSeverity,
		"remediation", verdict.Remediation,
	)

	switch verdict.Remediation {
	case fatigue.RemediationPause:
		plan.halted[v.ID] = true
		plan.caps[v.ID] = 0
		ok, err := o.enqueue(ctx, pauseRequest(v, rulesReason(verdict)), rep)
		if err != nil {
			return fmt.Errorf("enqueue pause for %s: %w", v.ID, err)
		}
		if ok {
			rep.Paused++
		} else {
			plan.hold(v)
		}

	case fatigue.RemediationRefreshCreative:
		if o.deps.Notifier == nil {
			return nil
		}
		if err := o.deps.Notifier.NotifyRefresh(ctx, v, verdict); err != nil {
			rep.Errors++
			logger.Error("creative_refresh_notify_failed", "variant_id", v.ID, "error", err)
			return nil
		}
		rep.Refreshes++

	case fatigue.RemediationReduceBudget:
		plan.caps[v.ID] = v.CurrentBudget * o.cfg.ReduceBudgetFactor
	}
	return nil
}

func (o *Orchestrator) checkKill(ctx context.Context, v domain.Variant, plan *groupPlan, rep *CycleReport) error {
	kill, err := o.deps.Allocator.ShouldKill(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("kill check of %s: %w", v.ID, err)
	}
	if !kill {
		return nil
	}

	queued, err := o.enqueue(ctx, pauseRequest(v, "kill: score below threshold"), rep)
	if err != nil {
		return fmt.Errorf("enqueue kill for %s: %w", v.ID, err)
	}
	if !queued {
		// no pause in the queue: the variant stays active so the next cycle
		// retries the kill, and its budget is held out of the pool
		plan.hold(v)
		rep.KillsDeferred++
		logger.Info("variant_kill_deferred", "trace_id", pkgotel.TraceIDFromContext(ctx), "variant_id", v.ID, "parent_id", v.ParentID)
		return nil
	}
	if err := o.deps.Variants.SetStatus(ctx, v.ID, domain.VariantArchived); err != nil {
		return fmt.Errorf("archive %s: %w", v.ID, err)
	}

	plan.halted[v.ID] = true
	plan.caps[v.ID] = 0
	plan.killed = append(plan.killed, v.ID)
	rep.Killed++
	DecisionsTotal.WithLabelValues("kill").Inc()
	logger.Info("variant_killed", "trace_id", pkgotel.TraceIDFromContext(ctx), "variant_id", v.ID, "parent_id", v.ParentID)
	return nil
}

// recordWinners adds confident winners to the pattern index once per variant.
func (o *Orchestrator) recordWinners(
	ctx context.Context,
	live []domain.Variant,
	alloc domain.Allocation,
	plan groupPlan,
	now time.Time,
	rep *CycleReport,
) error {
	if o.deps.Patterns == nil {
		return nil
	}

	for _, w := range alloc.Weights {
		if w.Fatigued || plan.halted[w.VariantID] {
			continue
		}
		v := findVariant(live, w.VariantID)
		if len(v.Features) == 0 {
			continue
		}
		arm, err := o.deps.Allocator.Arm(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("load arm of %s: %w", v.ID, err)
		}
		if arm == nil || arm.PatternRecordedAt != nil {
			continue
		}
		scale, err := o.deps.Allocator.ShouldScaleAggressively(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("scale check of %s: %w", v.ID, err)
		}
		if !scale {
			continue
		}

		meta := bandit.BuildContext(now, v).Map()
		meta["account_id"] = v.AccountID
		meta["parent_id"] = v.ParentID
		meta["variant_id"] = v.ID
		entry, err := o.deps.Patterns.Add(ctx, v.Features, domain.PatternLabelWinner, meta)
		if err != nil {
			rep.Errors++
			logger.Warn("winner_pattern_rejected", "variant_id", v.ID, "error", err)
			continue
		}
		if err := o.deps.Allocator.MarkPatternRecorded(ctx, v.ID, now); err != nil {
			return err
		}
		rep.Patterns++
		logger.Info("winner_pattern_recorded", "variant_id", v.ID, "pattern_id", entry.ID)
	}
	return nil
}

func (o *Orchestrator) logDecision(ctx context.Context, live []domain.Variant, alloc domain.Allocation, plan groupPlan) error {
	if o.deps.Decisions == nil {
		return nil
	}

	weights, err := json.Marshal(alloc.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	killed, _ := json.Marshal(nonNil(plan.killed))
	fatigued, _ := json.Marshal(nonNil(plan.fatigued))

	d := &domain.AllocationDecision{
		AccountID: live[0].AccountID,
		ParentID:  alloc.ParentID,
		Pool:      alloc.Pool,
		Context:   datatypes.JSONMap(alloc.Context.Map()),
		Weights:   datatypes.JSON(weights),
		Killed:    datatypes.JSON(killed),
		Fatigued:  datatypes.JSON(fatigued),
	}
	if err := o.deps.Decisions.SaveDecision(ctx, d); err != nil {
		return fmt.Errorf("save decision for %s: %w", alloc.ParentID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
