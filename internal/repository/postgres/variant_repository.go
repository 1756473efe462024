package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetPilot/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VariantRepository struct {
	DB *gorm.DB
}

func NewVariantRepository(db *gorm.DB) *VariantRepository {
	return &VariantRepository{DB: db}
}

// UpsertVariant registers a variant or updates its descriptive fields.
// Cumulative stats are only moved by ApplyBatch and ApplyRevenue.
func (r *VariantRepository) UpsertVariant(ctx context.Context, v domain.Variant) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if v.FirstSeenAt.IsZero() {
		v.FirstSeenAt = time.Now().UTC()
	}
	if v.EntityType == "" {
		v.EntityType = domain.EntityAd
	}
	if v.Status == "" {
		v.Status = domain.VariantActive
	}

	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"account_id",
				"parent_id",
				"entity_type",
				"features",
				"current_budget",
				"audience_size",
				"device_class",
				"audience_age",
				"status",
				"last_updated_at",
			}),
		}).
		Create(&v).Error
	if err != nil {
		return fmt.Errorf("failed to upsert variant %s: %w", v.ID, err)
	}
	return nil
}

func (r *VariantRepository) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var v domain.Variant
	err := r.DB.WithContext(ctx).First(&v, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variant %s: %w", id, err)
	}
	return &v, nil
}

func (r *VariantRepository) ListByParent(ctx context.Context, parentID string) ([]domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var out []domain.Variant
	if err := r.DB.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("id").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list variants of %s: %w", parentID, err)
	}
	return out, nil
}

func (r *VariantRepository) ListActiveParentIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var ids []string
	if err := r.DB.WithContext(ctx).Model(&domain.Variant{}).
		Where("status = ?", domain.VariantActive).
		Distinct().
		Order("parent_id").
		Pluck("parent_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list parent groups: %w", err)
	}
	return ids, nil
}

func (r *VariantRepository) update(ctx context.Context, id string, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	updates["last_updated_at"] = time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&domain.Variant{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update variant %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("variant %s not found", id)
	}
	return nil
}

// ApplyBatch adds a batch to the cumulative stats. The last_batch_id guard
// makes a replayed batch a no-op.
func (r *VariantRepository) ApplyBatch(ctx context.Context, b domain.MetricBatch) error {
	return r.applyOnce(ctx, b.VariantID, "last_batch_id", b.ID, map[string]any{
		"impressions": gorm.Expr("impressions + ?", b.Impressions),
		"clicks":      gorm.Expr("clicks + ?", b.Clicks),
		"spend":       gorm.Expr("spend + ?", b.Spend),
		"conversions": gorm.Expr("conversions + ?", b.Conversions),
		"revenue":     gorm.Expr("revenue + ?", b.Revenue),
	})
}

// ApplyRevenue credits a revenue event once, guarded by last_revenue_id.
func (r *VariantRepository) ApplyRevenue(ctx context.Context, ev domain.RevenueEvent) error {
	return r.applyOnce(ctx, ev.VariantID, "last_revenue_id", ev.ID, map[string]any{
		"revenue": gorm.Expr("revenue + ?", ev.RealizedRevenue),
	})
}

// applyOnce runs updates only while the watermark column is below seq, and
// moves the watermark to seq in the same statement.
func (r *VariantRepository) applyOnce(ctx context.Context, id, watermark string, seq uint, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	updates[watermark] = seq
	updates["last_updated_at"] = time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&domain.Variant{}).
		Where("id = ? AND "+watermark+" < ?", id, seq).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update variant %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := r.DB.WithContext(ctx).Model(&domain.Variant{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to look up variant %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("variant %s not found", id)
	}
	return nil
}

func (r *VariantRepository) SetStatus(ctx context.Context, id, status string) error {
	return r.update(ctx, id, map[string]any{"status": status})
}

func (r *VariantRepository) SetBudget(ctx context.Context, id string, budget float64) error {
	return r.update(ctx, id, map[string]any{"current_budget": budget})
}
