//go:build !integration

package decisionloop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgetPilot/business/decisionloop"
	"budgetPilot/business/fatigue"
	"budgetPilot/domain"
	"budgetPilot/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnReset = errors.New("connection reset")

// flakyMetrics fails the first failMarks MarkBatchProcessed calls and the
// first failRevenueMarks MarkRevenueProcessed calls.
type flakyMetrics struct {
	*memory.MetricsRepository
	failMarks        int
	failRevenueMarks int
}

func (m *flakyMetrics) MarkRevenueProcessed(ctx context.Context, id uint, at time.Time) error {
	if m.failRevenueMarks > 0 {
		m.failRevenueMarks--
		return errConnReset
	}
	return m.MetricsRepository.MarkRevenueProcessed(ctx, id, at)
}

func (m *flakyMetrics) MarkBatchProcessed(ctx context.Context, id uint, at time.Time) error {
	if m.failMarks > 0 {
		m.failMarks--
		return errConnReset
	}
	return m.MetricsRepository.MarkBatchProcessed(ctx, id, at)
}

// flakyVariants fails the first n ApplyBatch calls.
type flakyVariants struct {
	*memory.VariantRepository
	failApply int
}

func (v *flakyVariants) ApplyBatch(ctx context.Context, b domain.MetricBatch) error {
	if v.failApply > 0 {
		v.failApply--
		return errConnReset
	}
	return v.VariantRepository.ApplyBatch(ctx, b)
}

func TestRunCycle_FailedMarkDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t, quietConfig(), fatigue.DefaultConfig(), func(d *decisionloop.Deps) {
		d.Metrics = &flakyMetrics{MetricsRepository: d.Metrics.(*memory.MetricsRepository), failMarks: 1}
	})
	ctx := context.Background()

	h.addVariant(t, "ad-a", 50, t0.Add(-24*time.Hour), nil)
	h.addBatch(t, "ad-a", t0.Add(-3*time.Hour), 1000, 2, 10, 0, 0)

	_, err := h.orch.RunCycle(ctx)
	require.ErrorIs(t, err, errConnReset)

	before, err := h.arms.GetArm(ctx, "ad-a")
	require.NoError(t, err)
	require.NotNil(t, before)

	rep, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Observations, "replayed batch is not a new observation")

	arm, err := h.arms.GetArm(ctx, "ad-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), arm.Observations)
	assert.Equal(t, int64(1000), arm.TotalImpressions)
	assert.Equal(t, before.Successes, arm.Successes)
	assert.Equal(t, before.Failures, arm.Failures)

	v, err := h.variants.GetVariant(ctx, "ad-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Impressions)

	left, err := h.metrics.UnprocessedBatches(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRunCycle_FailedStatsUpdateKeepsBatchPending(t *testing.T) {
	h := newHarness(t, quietConfig(), fatigue.DefaultConfig(), func(d *decisionloop.Deps) {
		d.Variants = &flakyVariants{VariantRepository: d.Variants.(*memory.VariantRepository), failApply: 1}
	})
	ctx := context.Background()

	h.addVariant(t, "ad-a", 50, t0.Add(-24*time.Hour), nil)
	h.addBatch(t, "ad-a", t0.Add(-3*time.Hour), 1000, 2, 10, 0, 0)
	h.addBatch(t, "ad-a", t0.Add(-2*time.Hour), 500, 1, 5, 0, 0)

	rep, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 0, rep.Observations)

	left, err := h.metrics.UnprocessedBatches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, left, 2, "the failed batch and the one queued behind it stay pending")

	rep, err = h.orch.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Observations)

	arm, err := h.arms.GetArm(ctx, "ad-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), arm.Observations)
	assert.Equal(t, int64(1500), arm.TotalImpressions)

	v, err := h.variants.GetVariant(ctx, "ad-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), v.Impressions)
	assert.Equal(t, arm.LastBatchID, v.LastBatchID)

	left, err = h.metrics.UnprocessedBatches(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRunCycle_FailedRevenueMarkCreditsOnce(t *testing.T) {
	h := newHarness(t, quietConfig(), fatigue.DefaultConfig(), func(d *decisionloop.Deps) {
		d.Metrics = &flakyMetrics{MetricsRepository: d.Metrics.(*memory.MetricsRepository), failRevenueMarks: 1}
	})
	ctx := context.Background()

	h.addVariant(t, "ad-a", 50, t0.Add(-24*time.Hour), nil)
	h.addBatch(t, "ad-a", t0.Add(-3*time.Hour), 1000, 20, 10, 0, 0)
	require.NoError(t, h.metrics.InsertRevenue(ctx, &domain.RevenueEvent{VariantID: "ad-a", RealizedRevenue: 40}))

	_, err := h.orch.RunCycle(ctx)
	require.ErrorIs(t, err, errConnReset)

	_, err = h.orch.RunCycle(ctx)
	require.NoError(t, err)

	arm, err := h.arms.GetArm(ctx, "ad-a")
	require.NoError(t, err)
	assert.Equal(t, 40.0, arm.TotalRevenue)

	v, err := h.variants.GetVariant(ctx, "ad-a")
	require.NoError(t, err)
	assert.Equal(t, 40.0, v.Revenue)

	left, err := h.metrics.UnprocessedRevenue(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}
