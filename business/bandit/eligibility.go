package bandit

import (
	"context"

	"budgetPilot/domain"
)

// EligibilityChecker decides if a variant may receive budget (status, policy holds).
type EligibilityChecker interface {
	IsEligible(ctx context.Context, v domain.Variant) (bool, error)
}

// ActiveEligibilityChecker is the default implementation: every active variant is eligible.
type ActiveEligibilityChecker struct{}

func (ActiveEligibilityChecker) IsEligible(ctx context.Context, v domain.Variant) (bool, error) {
	return v.IsActive(), nil
}
