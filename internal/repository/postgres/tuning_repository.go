package postgres

import (
	"context"
	"errors"

	"budgetPilot/business/bandit"
	"budgetPilot/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TuningRepository struct {
	DB *gorm.DB
}

var _ bandit.ConfigRepository = (*TuningRepository)(nil)

func NewTuningRepository(db *gorm.DB) *TuningRepository {
	return &TuningRepository{DB: db}
}

func (r *TuningRepository) GetTuning(ctx context.Context, accountID string) (domain.AccountTuning, bool, error) {
	var t domain.AccountTuning

	err := r.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.AccountTuning{}, false, nil
	}
	if err != nil {
		return domain.AccountTuning{}, false, err
	}
	return t, true, nil
}

func (r *TuningRepository) UpsertTuning(ctx context.Context, t domain.AccountTuning) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mode",
				"ignorance_zone_days",
				"kill_threshold",
				"scale_threshold",
				"maturity_days",
				"proxy_half_life_days",
				"context_boost_cap",
				"updated_at",
			}),
		}).
		Create(&t).Error
}
