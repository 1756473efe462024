package memory

import (
	"context"
	"sync"
	"time"

	"budgetPilot/business/bandit"
	"budgetPilot/domain"
)

type TuningRepository struct {
	mu   sync.RWMutex
	rows map[string]domain.AccountTuning
}

var _ bandit.ConfigRepository = (*TuningRepository)(nil)

func NewTuningRepository() *TuningRepository {
	return &TuningRepository{rows: map[string]domain.AccountTuning{}}
}

func (r *TuningRepository) GetTuning(ctx context.Context, accountID string) (domain.AccountTuning, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.rows[accountID]
	return t, ok, nil
}

func (r *TuningRepository) UpsertTuning(ctx context.Context, t domain.AccountTuning) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.UpdatedAt = time.Now().UTC()
	r.rows[t.AccountID] = t
	return nil
}
