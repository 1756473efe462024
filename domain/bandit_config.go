package domain

import "time"

// AccountTuning holds per-account overrides of allocator settings.
// Nil fields fall back to the process defaults.
type AccountTuning struct {
	AccountID         string    `json:"account_id" gorm:"column:account_id;primaryKey"`
	Mode              *string   `json:"mode,omitempty" gorm:"column:mode" validate:"omitempty,oneof=direct pipeline"`
	IgnoranceZoneDays *float64  `json:"ignorance_zone_days,omitempty" gorm:"column:ignorance_zone_days" validate:"omitempty,gte=0"`
	KillThreshold     *float64  `json:"kill_threshold,omitempty" gorm:"column:kill_threshold" validate:"omitempty,gte=0,lte=1"`
	ScaleThreshold    *float64  `json:"scale_threshold,omitempty" gorm:"column:scale_threshold" validate:"omitempty,gte=0,lte=1"`
	MaturityDays      *float64  `json:"maturity_days,omitempty" gorm:"column:maturity_days" validate:"omitempty,gt=0"`
	ProxyHalfLifeDays *float64  `json:"proxy_half_life_days,omitempty" gorm:"column:proxy_half_life_days" validate:"omitempty,gt=0"`
	ContextBoostCap   *float64  `json:"context_boost_cap,omitempty" gorm:"column:context_boost_cap" validate:"omitempty,gte=0"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (AccountTuning) TableName() string {
	return "account_tuning"
}
