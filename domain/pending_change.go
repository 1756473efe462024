package domain

import (
	"time"

	"gorm.io/datatypes"
)

type ChangeStatus string

const (
	ChangePending   ChangeStatus = "pending"
	ChangeClaimed   ChangeStatus = "claimed"
	ChangeExecuting ChangeStatus = "executing"
	ChangeCompleted ChangeStatus = "completed"
	ChangeFailed    ChangeStatus = "failed"
	ChangeCancelled ChangeStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible without manual requeue.
func (s ChangeStatus) IsTerminal() bool {
	switch s {
	case ChangeCompleted, ChangeFailed, ChangeCancelled:
		return true
	}
	return false
}

// NonTerminalChangeStatuses are the statuses that make an entity busy.
var NonTerminalChangeStatuses = []ChangeStatus{ChangePending, ChangeClaimed, ChangeExecuting}

const (
	ChangeKindBudget = "budget"
	ChangeKindStatus = "status"
	ChangeKindBid    = "bid"

	StatusValuePaused = "PAUSED"
	StatusValueActive = "ACTIVE"
)

// PendingChange is a durable request to mutate one platform entity.
type PendingChange struct {
	ID                string            `json:"id" gorm:"primaryKey;column:id;type:uuid"`
	EntityID          string            `json:"entity_id" gorm:"column:entity_id;not null;index"`
	EntityType        string            `json:"entity_type" gorm:"column:entity_type;not null"`
	ChangeKind        string            `json:"change_kind" gorm:"column:change_kind;not null"`
	CurrentValue      string            `json:"current_value" gorm:"column:current_value"`
	RequestedValue    string            `json:"requested_value" gorm:"column:requested_value;not null"`
	Reason            string            `json:"reason" gorm:"column:reason"`
	EarliestExecuteAt time.Time         `json:"earliest_execute_at" gorm:"column:earliest_execute_at;not null;index"`
	Status            ChangeStatus      `json:"status" gorm:"column:status;not null;index"`
	ClaimedBy         string            `json:"claimed_by,omitempty" gorm:"column:claimed_by"`
	ClaimedAt         *time.Time        `json:"claimed_at,omitempty" gorm:"column:claimed_at"`
	LeaseExpiresAt    *time.Time        `json:"lease_expires_at,omitempty" gorm:"column:lease_expires_at"`
	AttemptCount      int               `json:"attempt_count" gorm:"column:attempt_count;not null;default:0"`
	MaxAttempts       int               `json:"max_attempts" gorm:"column:max_attempts;not null"`
	LastError         string            `json:"last_error,omitempty" gorm:"column:last_error"`
	PlatformResponse  datatypes.JSONMap `json:"platform_response,omitempty" gorm:"column:platform_response;type:jsonb"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt         time.Time         `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingChange) TableName() string {
	return "pending_ad_changes"
}

// ChangeRequest is the caller-supplied part of a PendingChange.
type ChangeRequest struct {
	EntityID       string `json:"entity_id" validate:"required"`
	EntityType     string `json:"entity_type" validate:"required,oneof=ad adset campaign"`
	ChangeKind     string `json:"change_kind" validate:"required,oneof=budget status bid"`
	CurrentValue   string `json:"current_value"`
	RequestedValue string `json:"requested_value" validate:"required"`
	Reason         string `json:"reason"`
}
