package plans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/policyforge/policyforge-backend/pkg/db/models"
	"github.com/policyforge/policyforge-backend/pkg/enums"
)

// Repository handles tenant subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, sub *models.TenantSubscription) error
	FindSubscription(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
	FindSubscriptionsByTenantIDs(ctx context.Context, tenantIDs []uuid.UUID) ([]models.TenantSubscription, error)
	UpdatePlan(ctx context.Context, tenantID uuid.UUID, plan enums.PlanID) error
	FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]models.TenantSubscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, sub *models.TenantSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindSubscription(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	var sub models.TenantSubscription
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionsByTenantIDs(ctx context.Context, tenantIDs []uuid.UUID) ([]models.TenantSubscription, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}
	var subs []models.TenantSubscription
	if err := r.db.WithContext(ctx).
		Where("tenant_id IN (?)", tenantIDs).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// UpdatePlan writes the plan column only. Writing the same plan twice is
// harmless, which keeps the trial-expiry downgrade idempotent.
func (r *repository) UpdatePlan(ctx context.Context, tenantID uuid.UUID, plan enums.PlanID) error {
	return r.db.WithContext(ctx).
		Model(&models.TenantSubscription{}).
		Where("tenant_id = ?", tenantID).
		Update("plan_id", plan).Error
}

func (r *repository) FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]models.TenantSubscription, error) {
	if limit <= 0 {
		limit = 500
	}
	var subs []models.TenantSubscription
	if err := r.db.WithContext(ctx).
		Where("plan_id = ?", enums.PlanTrial).
		Where("trial_ends_at IS NOT NULL AND trial_ends_at < ?", asOf).
		Order("trial_ends_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
