package decisionloop

import (
	"context"
	"errors"
	"fmt"

	"budgetPilot/business/bandit"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"
)

// ingestBatches feeds unprocessed metric batches to the allocator, one
// observation per batch. Arms and variants keep a batch watermark, so a batch
// replayed after a failed mark is not counted twice. A batch that fails for a
// transient reason stays unprocessed, and later batches of the same variant
// wait for it until the next cycle.
func (o *Orchestrator) ingestBatches(ctx context.Context, rep *CycleReport) error {
	batches, err := o.deps.Metrics.UnprocessedBatches(ctx, o.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("load metric batches: %w", err)
	}

	blocked := map[string]bool{}
	for _, b := range batches {
		if blocked[b.VariantID] {
			continue
		}

		out, err := o.deps.Allocator.RecordObservation(ctx, b)
		switch {
		case errors.Is(err, bandit.ErrUnknownVariant):
			logger.Warn("observation_dropped_unknown_variant", "batch_id", b.ID, "variant_id", b.VariantID)

		case err != nil:
			rep.Errors++
			blocked[b.VariantID] = true
			logger.Error("observation_failed",
				"trace_id", pkgotel.TraceIDFromContext(ctx),
				"batch_id", b.ID,
				"variant_id", b.VariantID,
				"error", err,
			)
			continue

		default:
			if err := o.deps.Variants.ApplyBatch(ctx, b); err != nil {
				rep.Errors++
				blocked[b.VariantID] = true
				logger.Error("variant_stats_update_failed", "batch_id", b.ID, "variant_id", b.VariantID, "error", err)
				continue
			}
			if !out.Duplicate {
				rep.Observations++
			}
		}

		if err := o.deps.Metrics.MarkBatchProcessed(ctx, b.ID, o.now().UTC()); err != nil {
			return fmt.Errorf("mark batch %d processed: %w", b.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) ingestRevenue(ctx context.Context, rep *CycleReport) error {
	events, err := o.deps.Metrics.UnprocessedRevenue(ctx, o.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("load revenue events: %w", err)
	}

	blocked := map[string]bool{}
	for _, ev := range events {
		if blocked[ev.VariantID] {
			continue
		}

		err := o.deps.Allocator.RecordRevenue(ctx, ev)
		switch {
		case errors.Is(err, bandit.ErrUnknownVariant):
			logger.Warn("revenue_dropped_unknown_variant", "event_id", ev.ID, "variant_id", ev.VariantID)

		case err != nil:
			rep.Errors++
			blocked[ev.VariantID] = true
			logger.Error("revenue_failed", "event_id", ev.ID, "variant_id", ev.VariantID, "error", err)
			continue

		default:
			if err := o.deps.Variants.ApplyRevenue(ctx, ev); err != nil {
				rep.Errors++
				blocked[ev.VariantID] = true
				logger.Error("variant_revenue_update_failed", "event_id", ev.ID, "variant_id", ev.VariantID, "error", err)
				continue
			}
			rep.Revenue++
		}

		if err := o.deps.Metrics.MarkRevenueProcessed(ctx, ev.ID, o.now().UTC()); err != nil {
			return fmt.Errorf("mark revenue %d processed: %w", ev.ID, err)
		}
	}
	return nil
}
