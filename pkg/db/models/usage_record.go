package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/policyforge/policyforge-backend/pkg/enums"
)

// UsageRecord counts consumption of a metered feature for a tenant within a
// billing period. Period is the UTC calendar month formatted as "2006-01";
// a new period starts with a fresh row, so counters reset by key rollover
// rather than by an explicit reset job.
type UsageRecord struct {
	ID         uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID   uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_usage_tenant_feature_period"`
	FeatureKey enums.FeatureKey `gorm:"column:feature_key;not null;uniqueIndex:idx_usage_tenant_feature_period"`
	Period     string           `gorm:"column:period;not null;uniqueIndex:idx_usage_tenant_feature_period"`
	Count      int64            `gorm:"column:count;not null;default:0"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// CurrentPeriod returns the usage period key for the given instant.
func CurrentPeriod(now time.Time) string {
	return now.UTC().Format("2006-01")
}
