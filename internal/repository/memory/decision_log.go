package memory

import (
	"context"
	"sync"
	"time"

	"budgetPilot/domain"
)

type DecisionLog struct {
	mu     sync.Mutex
	rows   []domain.AllocationDecision
	nextID uint
}

func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

func (l *DecisionLog) SaveDecision(ctx context.Context, d *domain.AllocationDecision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	d.ID = l.nextID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	l.rows = append(l.rows, *d)
	return nil
}

// ListDecisions returns the newest decisions of a parent first.
func (l *DecisionLog) ListDecisions(ctx context.Context, parentID string, limit int) ([]domain.AllocationDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AllocationDecision, 0)
	for i := len(l.rows) - 1; i >= 0; i-- {
		if parentID != "" && l.rows[i].ParentID != parentID {
			continue
		}
		out = append(out, l.rows[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
