package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetPilot/business/bandit"
	"budgetPilot/domain"
)

type ArmRepository struct {
	mu   sync.Mutex
	arms map[string]domain.BanditArmState
}

var _ bandit.ArmRepository = (*ArmRepository)(nil)

func NewArmRepository() *ArmRepository {
	return &ArmRepository{arms: map[string]domain.BanditArmState{}}
}

func (r *ArmRepository) GetArm(ctx context.Context, variantID string) (*domain.BanditArmState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	arm, ok := r.arms[variantID]
	if !ok {
		return nil, nil
	}
	return &arm, nil
}

func (r *ArmRepository) ListArms(ctx context.Context, variantIDs []string) (map[string]domain.BanditArmState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]domain.BanditArmState, len(variantIDs))
	for _, id := range variantIDs {
		if arm, ok := r.arms[id]; ok {
			out[id] = arm
		}
	}
	return out, nil
}

// Mutate holds the repository lock for the whole read-modify-write.
func (r *ArmRepository) Mutate(
	ctx context.Context,
	variantID string,
	init func() (domain.BanditArmState, error),
	fn func(arm *domain.BanditArmState) error,
) (domain.BanditArmState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	arm, ok := r.arms[variantID]
	if !ok {
		if init == nil {
			return domain.BanditArmState{}, fmt.Errorf("%w: %s", bandit.ErrArmNotFound, variantID)
		}
		var err error
		if arm, err = init(); err != nil {
			return domain.BanditArmState{}, err
		}
	}
	if err := fn(&arm); err != nil {
		return domain.BanditArmState{}, err
	}
	r.arms[variantID] = arm
	return arm, nil
}
