package domain

import "time"

// MetricBatch is one reporting bucket for a variant as delivered by the platform.
type MetricBatch struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	VariantID   string     `json:"variant_id" gorm:"column:variant_id;index;not null" validate:"required"`
	BucketStart time.Time  `json:"bucket_start" gorm:"column:bucket_start;not null" validate:"required"`
	Impressions int64      `json:"impressions" gorm:"column:impressions;not null" validate:"gte=0"`
	Clicks      int64      `json:"clicks" gorm:"column:clicks;not null" validate:"gte=0"`
	Spend       float64    `json:"spend" gorm:"column:spend;not null" validate:"gte=0"`
	Conversions int64      `json:"conversions" gorm:"column:conversions;not null" validate:"gte=0"`
	Revenue     float64    `json:"revenue" gorm:"column:revenue;not null;default:0" validate:"gte=0"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at;index"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (MetricBatch) TableName() string {
	return "metric_batches"
}

// RevenueEvent is revenue attributed to a variant after the fact.
type RevenueEvent struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	VariantID       string     `json:"variant_id" gorm:"column:variant_id;index;not null" validate:"required"`
	RealizedRevenue float64    `json:"realized_revenue" gorm:"column:realized_revenue;not null" validate:"gte=0"`
	ObservedAt      time.Time  `json:"observed_at" gorm:"column:observed_at;not null"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at;index"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (RevenueEvent) TableName() string {
	return "revenue_events"
}

// MetricSnapshot is one time bucket of the series the fatigue rules look at.
type MetricSnapshot struct {
	BucketStart time.Time `json:"bucket_start"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Spend       float64   `json:"spend"`
	Conversions int64     `json:"conversions"`
	Revenue     float64   `json:"revenue"`
}
