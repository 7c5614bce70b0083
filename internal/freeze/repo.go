package freeze

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/policyforge/policyforge-backend/pkg/db/models"
)

// PolicyRef is the slim projection the freeze engine reads: identity and
// recency, nothing else.
type PolicyRef struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	UpdatedAt time.Time
}

// Repository reads policy ownership for freeze computations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	ListRefsByOwner(ctx context.Context, ownerID uuid.UUID) ([]PolicyRef, error)
	ListTopRefsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]PolicyRef, error)
	ListRefsByOwners(ctx context.Context, ownerIDs []uuid.UUID) ([]PolicyRef, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a freeze repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Policy{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListRefsByOwner returns every policy ref for the owner, most recently
// updated first. The id tie-break keeps the order deterministic within a
// single call when timestamps collide.
func (r *repository) ListRefsByOwner(ctx context.Context, ownerID uuid.UUID) ([]PolicyRef, error) {
	var refs []PolicyRef
	if err := r.db.WithContext(ctx).
		Model(&models.Policy{}).
		Select("id", "owner_id", "updated_at").
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC, id DESC").
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *repository) ListTopRefsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]PolicyRef, error) {
	if limit <= 0 {
		return nil, nil
	}
	var refs []PolicyRef
	if err := r.db.WithContext(ctx).
		Model(&models.Policy{}).
		Select("id", "owner_id", "updated_at").
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// ListRefsByOwners fetches refs for many owners in one query; grouping and
// per-owner ordering happen in memory on the caller side.
func (r *repository) ListRefsByOwners(ctx context.Context, ownerIDs []uuid.UUID) ([]PolicyRef, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var refs []PolicyRef
	if err := r.db.WithContext(ctx).
		Model(&models.Policy{}).
		Select("id", "owner_id", "updated_at").
		Where("owner_id IN (?)", ownerIDs).
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}
