package usage

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/policyforge/policyforge-backend/pkg/db/models"
	"github.com/policyforge/policyforge-backend/pkg/enums"
)

// Repository handles usage counter persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetCount(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey, period string) (int64, error)
	GetCounts(ctx context.Context, tenantID uuid.UUID, period string) (map[enums.FeatureKey]int64, error)
	Increment(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey, period string, amount int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetCount(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey, period string) (int64, error) {
	var record models.UsageRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND feature_key = ? AND period = ?", tenantID, feature, period).
		First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return record.Count, nil
}

func (r *repository) GetCounts(ctx context.Context, tenantID uuid.UUID, period string) (map[enums.FeatureKey]int64, error) {
	var records []models.UsageRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, period).
		Find(&records).Error; err != nil {
		return nil, err
	}
	counts := make(map[enums.FeatureKey]int64, len(records))
	for _, record := range records {
		counts[record.FeatureKey] = record.Count
	}
	return counts, nil
}

// Increment performs an atomic increment-or-create on the counter row. The
// conflict target is the (tenant, feature, period) unique index, so
// concurrent callers add up rather than clobber.
func (r *repository) Increment(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey, period string, amount int64) error {
	record := models.UsageRecord{
		ID:         uuid.New(),
		TenantID:   tenantID,
		FeatureKey: feature,
		Period:     period,
		Count:      amount,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"},
				{Name: "feature_key"},
				{Name: "period"},
			},
			DoUpdates: clause.Assignments(map[string]any{
				"count": gorm.Expr("usage_records.count + ?", amount),
			}),
		}).
		Create(&record).Error
}
