package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"budgetPilot/domain"
)

// MetricsRepository stores raw batches and revenue events, and serves the
// per-bucket series the fatigue detector reads.
type MetricsRepository struct {
	mu      sync.Mutex
	batches []domain.MetricBatch
	revenue []domain.RevenueEvent
	nextID  uint
}

func NewMetricsRepository() *MetricsRepository {
	return &MetricsRepository{}
}

func (r *MetricsRepository) InsertBatch(ctx context.Context, b *domain.MetricBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	b.ID = r.nextID
	b.CreatedAt = time.Now().UTC()
	r.batches = append(r.batches, *b)
	return nil
}

func (r *MetricsRepository) InsertRevenue(ctx context.Context, ev *domain.RevenueEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	ev.ID = r.nextID
	ev.CreatedAt = time.Now().UTC()
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = ev.CreatedAt
	}
	r.revenue = append(r.revenue, *ev)
	return nil
}

func (r *MetricsRepository) UnprocessedBatches(ctx context.Context, limit int) ([]domain.MetricBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.MetricBatch, 0)
	for _, b := range r.batches {
		if b.ProcessedAt == nil {
			out = append(out, b)
		}
	}
	// arrival order; the per-arm batch watermark depends on it
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MetricsRepository) MarkBatchProcessed(ctx context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.batches {
		if r.batches[i].ID == id {
			r.batches[i].ProcessedAt = &at
		}
	}
	return nil
}

func (r *MetricsRepository) UnprocessedRevenue(ctx context.Context, limit int) ([]domain.RevenueEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.RevenueEvent, 0)
	for _, ev := range r.revenue {
		if ev.ProcessedAt == nil {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MetricsRepository) MarkRevenueProcessed(ctx context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.revenue {
		if r.revenue[i].ID == id {
			r.revenue[i].ProcessedAt = &at
		}
	}
	return nil
}

// Snapshots sums the variant's batches per bucket start, oldest first.
func (r *MetricsRepository) Snapshots(ctx context.Context, variantID string, since time.Time) ([]domain.MetricSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byBucket := map[time.Time]*domain.MetricSnapshot{}
	for _, b := range r.batches {
		if b.VariantID != variantID || b.BucketStart.Before(since) {
			continue
		}
		key := b.BucketStart.UTC()
		s, ok := byBucket[key]
		if !ok {
			s = &domain.MetricSnapshot{BucketStart: key}
			byBucket[key] = s
		}
		s.Impressions += b.Impressions
		s.Clicks += b.Clicks
		s.Spend += b.Spend
		s.Conversions += b.Conversions
		s.Revenue += b.Revenue
	}

	out := make([]domain.MetricSnapshot, 0, len(byBucket))
	for _, s := range byBucket {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out, nil
}
