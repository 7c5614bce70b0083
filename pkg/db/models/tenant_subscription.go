package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/policyforge/policyforge-backend/pkg/enums"
)

// TenantSubscription persists the billing plan state for a tenant. The plan
// id column is a plain string on purpose: legacy rows may carry values
// outside the current catalog and the engine degrades those to free instead
// of rejecting them.
type TenantSubscription struct {
	TenantID    uuid.UUID    `gorm:"column:tenant_id;type:uuid;primaryKey"`
	PlanID      enums.PlanID `gorm:"column:plan_id;not null;default:'free'"`
	TrialEndsAt *time.Time   `gorm:"column:trial_ends_at"`
	CreatedAt   time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (TenantSubscription) TableName() string {
	return "tenant_subscriptions"
}
