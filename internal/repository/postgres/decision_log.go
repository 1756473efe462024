package postgres

import (
	"context"
	"fmt"

	"budgetPilot/domain"

	"gorm.io/gorm"
)

type DecisionLog struct {
	DB *gorm.DB
}

func NewDecisionLog(db *gorm.DB) *DecisionLog {
	return &DecisionLog{DB: db}
}

func (l *DecisionLog) SaveDecision(ctx context.Context, d *domain.AllocationDecision) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := l.DB.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to save allocation decision: %w", err)
	}
	return nil
}

func (l *DecisionLog) ListDecisions(ctx context.Context, parentID string, limit int) ([]domain.AllocationDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := l.DB.WithContext(ctx).Order("created_at DESC, id DESC")
	if parentID != "" {
		q = q.Where("parent_id = ?", parentID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []domain.AllocationDecision
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list allocation decisions: %w", err)
	}
	return out, nil
}
