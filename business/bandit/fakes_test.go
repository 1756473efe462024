//go:build !integration

package bandit

import (
	"context"
	"sync"

	"budgetPilot/domain"
)

type fakeArmRepo struct {
	mu   sync.Mutex
	rows map[string]domain.BanditArmState
}

func newFakeArmRepo() *fakeArmRepo {
	return &fakeArmRepo{rows: map[string]domain.BanditArmState{}}
}

func (f *fakeArmRepo) GetArm(ctx context.Context, variantID string) (*domain.BanditArmState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[variantID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeArmRepo) ListArms(ctx context.Context, ids []string) (map[string]domain.BanditArmState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]domain.BanditArmState{}
	for _, id := range ids {
		if a, ok := f.rows[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (f *fakeArmRepo) Mutate(
	ctx context.Context,
	variantID string,
	init func() (domain.BanditArmState, error),
	fn func(arm *domain.BanditArmState) error,
) (domain.BanditArmState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[variantID]
	if !ok {
		if init == nil {
			return domain.BanditArmState{}, ErrArmNotFound
		}
		var err error
		if a, err = init(); err != nil {
			return domain.BanditArmState{}, err
		}
	}
	if err := fn(&a); err != nil {
		return domain.BanditArmState{}, err
	}
	f.rows[variantID] = a
	return a, nil
}

type fakeVariantRepo struct {
	rows []domain.Variant
}

func (f *fakeVariantRepo) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	for _, v := range f.rows {
		if v.ID == id {
			v := v
			return &v, nil
		}
	}
	return nil, nil
}

func (f *fakeVariantRepo) ListByParent(ctx context.Context, parentID string) ([]domain.Variant, error) {
	var out []domain.Variant
	for _, v := range f.rows {
		if v.ParentID == parentID {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakePatterns struct {
	matches []domain.PatternMatch
}

func (f fakePatterns) FindSimilarInAccount(accountID string, query []float64, k int) ([]domain.PatternMatch, error) {
	return f.matches, nil
}

type fakeTuningRepo struct {
	rows map[string]domain.AccountTuning
}

func (f *fakeTuningRepo) GetTuning(ctx context.Context, accountID string) (domain.AccountTuning, bool, error) {
	t, ok := f.rows[accountID]
	return t, ok, nil
}

func (f *fakeTuningRepo) UpsertTuning(ctx context.Context, t domain.AccountTuning) error {
	f.rows[t.AccountID] = t
	return nil
}
