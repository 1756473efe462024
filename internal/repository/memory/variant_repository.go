package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"budgetPilot/domain"
)

type VariantRepository struct {
	mu       sync.RWMutex
	variants map[string]domain.Variant
	now      func() time.Time
}

func NewVariantRepository() *VariantRepository {
	return &VariantRepository{variants: map[string]domain.Variant{}, now: time.Now}
}

func (r *VariantRepository) UpsertVariant(ctx context.Context, v domain.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if old, ok := r.variants[v.ID]; ok {
		// cumulative stats belong to the ingestion path
		v.Impressions, v.Clicks, v.Spend = old.Impressions, old.Clicks, old.Spend
		v.Conversions, v.Revenue = old.Conversions, old.Revenue
		v.LastBatchID, v.LastRevenueID = old.LastBatchID, old.LastRevenueID
		v.FirstSeenAt = old.FirstSeenAt
	}
	if v.FirstSeenAt.IsZero() {
		v.FirstSeenAt = now
	}
	if v.EntityType == "" {
		v.EntityType = domain.EntityAd
	}
	if v.Status == "" {
		v.Status = domain.VariantActive
	}
	v.LastUpdatedAt = now
	r.variants[v.ID] = v
	return nil
}

func (r *VariantRepository) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.variants[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *VariantRepository) ListByParent(ctx context.Context, parentID string) ([]domain.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Variant, 0)
	for _, v := range r.variants {
		if v.ParentID == parentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *VariantRepository) ListActiveParentIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, v := range r.variants {
		if v.IsActive() {
			seen[v.ParentID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *VariantRepository) update(id string, fn func(v *domain.Variant)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.variants[id]
	if !ok {
		return fmt.Errorf("variant %s not found", id)
	}
	fn(&v)
	v.LastUpdatedAt = r.now().UTC()
	r.variants[id] = v
	return nil
}

// ApplyBatch adds a batch to the cumulative stats. A batch at or below the
// variant's watermark was already applied and is ignored.
func (r *VariantRepository) ApplyBatch(ctx context.Context, b domain.MetricBatch) error {
	return r.update(b.VariantID, func(v *domain.Variant) {
		if b.ID != 0 && b.ID <= v.LastBatchID {
			return
		}
		if b.ID != 0 {
			v.LastBatchID = b.ID
		}
		v.Impressions += b.Impressions
		v.Clicks += b.Clicks
		v.Spend += b.Spend
		v.Conversions += b.Conversions
		v.Revenue += b.Revenue
	})
}

// ApplyRevenue credits a revenue event once; replays are ignored.
func (r *VariantRepository) ApplyRevenue(ctx context.Context, ev domain.RevenueEvent) error {
	return r.update(ev.VariantID, func(v *domain.Variant) {
		if ev.ID != 0 && ev.ID <= v.LastRevenueID {
			return
		}
		if ev.ID != 0 {
			v.LastRevenueID = ev.ID
		}
		v.Revenue += ev.RealizedRevenue
	})
}

func (r *VariantRepository) SetStatus(ctx context.Context, id, status string) error {
	return r.update(id, func(v *domain.Variant) { v.Status = status })
}

func (r *VariantRepository) SetBudget(ctx context.Context, id string, budget float64) error {
	return r.update(id, func(v *domain.Variant) { v.CurrentBudget = budget })
}
