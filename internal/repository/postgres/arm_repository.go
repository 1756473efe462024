package postgres

import (
	"context"
	"errors"
	"fmt"

	"budgetPilot/business/bandit"
	"budgetPilot/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ArmRepository struct {
	DB *gorm.DB
}

var _ bandit.ArmRepository = (*ArmRepository)(nil)

func NewArmRepository(db *gorm.DB) *ArmRepository {
	return &ArmRepository{DB: db}
}

func (r *ArmRepository) GetArm(ctx context.Context, variantID string) (*domain.BanditArmState, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var arm domain.BanditArmState
	err := r.DB.WithContext(ctx).First(&arm, "variant_id = ?", variantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bandit_arm_state: %w", err)
	}
	return &arm, nil
}

func (r *ArmRepository) ListArms(ctx context.Context, variantIDs []string) (map[string]domain.BanditArmState, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	out := make(map[string]domain.BanditArmState, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}

	var arms []domain.BanditArmState
	if err := r.DB.WithContext(ctx).Where("variant_id IN ?", variantIDs).Find(&arms).Error; err != nil {
		return nil, fmt.Errorf("failed to list bandit arms: %w", err)
	}
	for _, a := range arms {
		out[a.VariantID] = a
	}
	return out, nil
}

// Mutate locks the arm row for the duration of fn. A missing row is created
// from init first; a concurrent creator wins and its row is locked instead.
func (r *ArmRepository) Mutate(
	ctx context.Context,
	variantID string,
	init func() (domain.BanditArmState, error),
	fn func(arm *domain.BanditArmState) error,
) (domain.BanditArmState, error) {
	if err := ctx.Err(); err != nil {
		return domain.BanditArmState{}, fmt.Errorf("context error: %w", err)
	}

	var arm domain.BanditArmState
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})

		err := locked.First(&arm, "variant_id = ?", variantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if init == nil {
				return fmt.Errorf("%w: %s", bandit.ErrArmNotFound, variantID)
			}
			fresh, ierr := init()
			if ierr != nil {
				return ierr
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
				return fmt.Errorf("failed to insert bandit arm: %w", err)
			}
			err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&arm, "variant_id = ?", variantID).Error
		}
		if err != nil {
			return fmt.Errorf("failed to lock bandit arm: %w", err)
		}

		if err := fn(&arm); err != nil {
			return err
		}
		if err := tx.Save(&arm).Error; err != nil {
			return fmt.Errorf("failed to save bandit arm: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.BanditArmState{}, err
	}
	return arm, nil
}
