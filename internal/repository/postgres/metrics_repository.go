package postgres

import (
	"context"
	"fmt"
	"time"

	"budgetPilot/domain"

	"gorm.io/gorm"
)

type MetricsRepository struct {
	DB *gorm.DB
}

func NewMetricsRepository(db *gorm.DB) *MetricsRepository {
	return &MetricsRepository{DB: db}
}

func (r *MetricsRepository) InsertBatch(ctx context.Context, b *domain.MetricBatch) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := r.DB.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to save metric batch: %w", err)
	}
	return nil
}

func (r *MetricsRepository) InsertRevenue(ctx context.Context, ev *domain.RevenueEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = time.Now().UTC()
	}
	if err := r.DB.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to save revenue event: %w", err)
	}
	return nil
}

func (r *MetricsRepository) UnprocessedBatches(ctx context.Context, limit int) ([]domain.MetricBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	// arrival order; the per-arm batch watermark depends on it
	q := r.DB.WithContext(ctx).Where("processed_at IS NULL").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.MetricBatch
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list metric batches: %w", err)
	}
	return out, nil
}

func (r *MetricsRepository) MarkBatchProcessed(ctx context.Context, id uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&domain.MetricBatch{}).
		Where("id = ?", id).
		Update("processed_at", at).Error
}

func (r *MetricsRepository) UnprocessedRevenue(ctx context.Context, limit int) ([]domain.RevenueEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Where("processed_at IS NULL").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.RevenueEvent
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list revenue events: %w", err)
	}
	return out, nil
}

func (r *MetricsRepository) MarkRevenueProcessed(ctx context.Context, id uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&domain.RevenueEvent{}).
		Where("id = ?", id).
		Update("processed_at", at).Error
}

// Snapshots aggregates the variant's batches per bucket, oldest first.
func (r *MetricsRepository) Snapshots(ctx context.Context, variantID string, since time.Time) ([]domain.MetricSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var out []domain.MetricSnapshot
	err := r.DB.WithContext(ctx).Model(&domain.MetricBatch{}).
		Select(`bucket_start,
			SUM(impressions) AS impressions,
			SUM(clicks) AS clicks,
			SUM(spend) AS spend,
			SUM(conversions) AS conversions,
			SUM(revenue) AS revenue`).
		Where("variant_id = ? AND bucket_start >= ?", variantID, since).
		Group("bucket_start").
		Order("bucket_start").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate snapshots of %s: %w", variantID, err)
	}
	return out, nil
}
