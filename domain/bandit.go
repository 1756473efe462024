package domain

import (
	"time"

	"gorm.io/datatypes"
)

// BanditArmState is the Beta posterior of one variant plus running stats.
// Successes and Failures are only ever incremented by one or decayed, never overwritten.
type BanditArmState struct {
	VariantID         string     `gorm:"column:variant_id;primaryKey" json:"variant_id"`
	AccountID         string     `gorm:"column:account_id;index" json:"account_id"`
	ParentID          string     `gorm:"column:parent_id;index" json:"parent_id"`
	Successes         float64    `gorm:"column:successes;not null" json:"successes"`
	Failures          float64    `gorm:"column:failures;not null" json:"failures"`
	Observations      int64      `gorm:"column:observations;not null;default:0" json:"observations"`
	LastBatchID       uint       `gorm:"column:last_batch_id;not null;default:0" json:"last_batch_id"`
	LastRevenueID     uint       `gorm:"column:last_revenue_id;not null;default:0" json:"last_revenue_id"`
	TotalImpressions  int64      `gorm:"column:total_impressions;not null;default:0" json:"total_impressions"`
	TotalClicks       int64      `gorm:"column:total_clicks;not null;default:0" json:"total_clicks"`
	TotalConversions  int64      `gorm:"column:total_conversions;not null;default:0" json:"total_conversions"`
	TotalSpend        float64    `gorm:"column:total_spend;not null;default:0" json:"total_spend"`
	TotalRevenue      float64    `gorm:"column:total_revenue;not null;default:0" json:"total_revenue"`
	AgeDays           float64    `gorm:"column:age_days;not null;default:0" json:"age_days"`
	Fatigued          bool       `gorm:"column:fatigued;not null;default:false" json:"fatigued"`
	FirstSeenAt       time.Time  `gorm:"column:first_seen_at;not null" json:"first_seen_at"`
	LastDecayedAt     time.Time  `gorm:"column:last_decayed_at;not null" json:"last_decayed_at"`
	PatternRecordedAt *time.Time `gorm:"column:pattern_recorded_at" json:"pattern_recorded_at,omitempty"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (BanditArmState) TableName() string {
	return "bandit_arm_state"
}

// ObservationOutcome is what one metric batch did to an arm.
type ObservationOutcome struct {
	VariantID string  `json:"variant_id"`
	Reward    float64 `json:"reward"`
	Success   bool    `json:"success"`
	// Duplicate is set when the batch was already folded into the arm.
	Duplicate bool `json:"duplicate,omitempty"`
}

// VariantWeight is one line of an allocation.
type VariantWeight struct {
	VariantID     string  `json:"variant_id"`
	Weight        float64 `json:"weight"`
	TargetBudget  float64 `json:"target_budget"`
	CurrentBudget float64 `json:"current_budget"`
	Boost         float64 `json:"boost"`
	Capped        bool    `json:"capped"`
	Fatigued      bool    `json:"fatigued"`
}

type Allocation struct {
	ParentID string          `json:"parent_id"`
	Pool     float64         `json:"pool"`
	Context  ContextVector   `json:"context"`
	Weights  []VariantWeight `json:"weights"`
}

// AllocationDecision is the decision log row written once per parent per cycle.
type AllocationDecision struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	AccountID string            `gorm:"column:account_id;index" json:"account_id"`
	ParentID  string            `gorm:"column:parent_id;index;not null" json:"parent_id"`
	Pool      float64           `gorm:"column:pool" json:"pool"`
	Context   datatypes.JSONMap `gorm:"column:context;type:jsonb" json:"context"`
	Weights   datatypes.JSON    `gorm:"column:weights;type:jsonb" json:"weights"`
	Killed    datatypes.JSON    `gorm:"column:killed;type:jsonb" json:"killed"`
	Fatigued  datatypes.JSON    `gorm:"column:fatigued;type:jsonb" json:"fatigued"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (AllocationDecision) TableName() string {
	return "allocation_decisions"
}
