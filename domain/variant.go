package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EntityAd       = "ad"
	EntityAdSet    = "adset"
	EntityCampaign = "campaign"

	VariantActive   = "active"
	VariantPaused   = "paused"
	VariantArchived = "archived"
)

// Variant is one competing ad entity under a parent (ad set or campaign).
type Variant struct {
	ID            string                       `json:"id" gorm:"primaryKey;column:id"`
	AccountID     string                       `json:"account_id" gorm:"column:account_id;index;not null"`
	ParentID      string                       `json:"parent_id" gorm:"column:parent_id;index;not null"`
	EntityType    string                       `json:"entity_type" gorm:"column:entity_type;not null;default:ad" validate:"omitempty,oneof=ad adset campaign"`
	Features      datatypes.JSONSlice[float64] `json:"features" gorm:"column:features;type:jsonb"`
	CurrentBudget float64                      `json:"current_budget" gorm:"column:current_budget;not null;default:0"`
	Impressions   int64                        `json:"impressions" gorm:"column:impressions;not null;default:0"`
	Clicks        int64                        `json:"clicks" gorm:"column:clicks;not null;default:0"`
	Spend         float64                      `json:"spend" gorm:"column:spend;not null;default:0"`
	Conversions   int64                        `json:"conversions" gorm:"column:conversions;not null;default:0"`
	Revenue       float64                      `json:"revenue" gorm:"column:revenue;not null;default:0"`
	LastBatchID   uint                         `json:"last_batch_id" gorm:"column:last_batch_id;not null;default:0"`
	LastRevenueID uint                         `json:"last_revenue_id" gorm:"column:last_revenue_id;not null;default:0"`
	AudienceSize  int64                        `json:"audience_size" gorm:"column:audience_size;not null;default:0"`
	DeviceClass   string                       `json:"device_class" gorm:"column:device_class"`
	AudienceAge   string                       `json:"audience_age" gorm:"column:audience_age"`
	Status        string                       `json:"status" gorm:"column:status;not null;default:active;index"`
	FirstSeenAt   time.Time                    `json:"first_seen_at" gorm:"column:first_seen_at;not null"`
	LastUpdatedAt time.Time                    `json:"last_updated_at" gorm:"column:last_updated_at;autoUpdateTime"`
}

func (Variant) TableName() string {
	return "variants"
}

// IsActive reports whether the variant still takes part in allocation.
func (v Variant) IsActive() bool {
	return v.Status == "" || v.Status == VariantActive
}
