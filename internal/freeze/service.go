package freeze

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/policyforge/policyforge-backend/internal/plans"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	pkgerrors "github.com/policyforge/policyforge-backend/pkg/errors"
	"github.com/policyforge/policyforge-backend/pkg/metrics"
)

// Freeze lookup kinds for metrics.
const (
	lookupKindSingle = "single"
	lookupKindCheck  = "check"
	lookupKindBatch  = "batch"
)

// planResolver is the slice of the plan service the freeze engine consumes.
type planResolver interface {
	ResolveEffectivePlan(ctx context.Context, tenantID uuid.UUID) (enums.PlanID, error)
	ResolveEffectivePlans(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]enums.PlanID, error)
}

// FreezeStatus is the computed active/frozen partition for one owner. It is
// never persisted; every call recomputes it from current plan limits and
// current ownership.
type FreezeStatus struct {
	Limit           int         `json:"limit"`
	TotalPolicies   int         `json:"totalPolicies"`
	FrozenCount     int         `json:"frozenCount"`
	FrozenPolicyIDs []uuid.UUID `json:"frozenPolicyIds"`
}

// FrozenCheck answers whether one specific policy is frozen.
type FrozenCheck struct {
	IsFrozen      bool   `json:"isFrozen"`
	Reason        string `json:"reason,omitempty"`
	ActiveLimit   int    `json:"activeLimit"`
	TotalPolicies int    `json:"totalPolicies"`
	FrozenCount   int    `json:"frozenCount"`
}

// ServiceParams groups dependencies for the freeze engine.
type ServiceParams struct {
	Repo     Repository
	Resolver planResolver
	Metrics  *metrics.EntitlementMetrics
	Cache    *Cache
}

// Service computes which of an owner's policies are usable versus frozen
// under the owner's effective plan.
type Service struct {
	repo     Repository
	resolver planResolver
	metrics  *metrics.EntitlementMetrics
	cache    *Cache
}

// NewService builds a freeze engine service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("plan resolver is required")
	}
	return &Service{
		repo:     params.Repo,
		resolver: params.Resolver,
		metrics:  params.Metrics,
		cache:    params.Cache,
	}, nil
}

// GetFreezeStatus computes the full active/frozen partition for an owner.
// Unknown owners return the zero-valued status. Unlimited owners never pay
// for a full resource fetch, only a count.
func (s *Service) GetFreezeStatus(ctx context.Context, ownerID uuid.UUID) (FreezeStatus, error) {
	if cached, ok := s.cache.Get(ctx, ownerID); ok {
		return cached, nil
	}

	s.metrics.IncFreezeLookup(lookupKindSingle)

	plan, err := s.resolver.ResolveEffectivePlan(ctx, ownerID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return FreezeStatus{FrozenPolicyIDs: []uuid.UUID{}}, nil
		}
		return FreezeStatus{}, err
	}

	limit := plans.LimitOf(plan, enums.FeaturePolicies)
	var status FreezeStatus
	if plans.IsUnlimited(limit) {
		total, err := s.repo.CountByOwner(ctx, ownerID)
		if err != nil {
			return FreezeStatus{}, err
		}
		status = FreezeStatus{
			Limit:           plans.Unlimited,
			TotalPolicies:   int(total),
			FrozenPolicyIDs: []uuid.UUID{},
		}
	} else {
		refs, err := s.repo.ListRefsByOwner(ctx, ownerID)
		if err != nil {
			return FreezeStatus{}, err
		}
		status = partition(limit, refs)
	}

	s.cache.Set(ctx, ownerID, status)
	return status, nil
}

// IsPolicyFrozen is the optimized single-policy variant. It never fetches a
// full policy list: unlimited plans short-circuit outright, owners at or
// under their limit short-circuit after a count, and only genuinely
// over-limit owners pay for a top-N id fetch. A policy id that does not
// exist is reported as not frozen while the owner is under limit, and as
// frozen once the owner is over limit.
func (s *Service) IsPolicyFrozen(ctx context.Context, ownerID, policyID uuid.UUID) (FrozenCheck, error) {
	s.metrics.IncFreezeLookup(lookupKindCheck)

	plan, err := s.resolver.ResolveEffectivePlan(ctx, ownerID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return FrozenCheck{}, nil
		}
		return FrozenCheck{}, err
	}

	limit := plans.LimitOf(plan, enums.FeaturePolicies)
	if plans.IsUnlimited(limit) {
		return FrozenCheck{ActiveLimit: plans.Unlimited}, nil
	}

	total, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return FrozenCheck{}, err
	}
	check := FrozenCheck{
		ActiveLimit:   limit,
		TotalPolicies: int(total),
	}
	if int(total) <= limit {
		return check, nil
	}

	check.FrozenCount = int(total) - limit
	active, err := s.repo.ListTopRefsByOwner(ctx, ownerID, limit)
	if err != nil {
		return FrozenCheck{}, err
	}
	check.IsFrozen = true
	for _, ref := range active {
		if ref.ID == policyID {
			check.IsFrozen = false
			break
		}
	}
	if check.IsFrozen {
		check.Reason = "policy count exceeds the current plan limit"
	}
	return check, nil
}

// GetBatchFreezeStatus computes frozen policy ids for many owners at once.
// Owner ids are deduplicated before any query; empty input returns an empty
// map without touching the store. Subscription state is fetched in one
// batch, resources for all limited owners in a second batch; unlimited and
// unknown owners never trigger a resource query. Every deduplicated owner
// gets an entry, even when nothing is frozen.
func (s *Service) GetBatchFreezeStatus(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	deduped := dedupe(ownerIDs)
	result := make(map[uuid.UUID][]uuid.UUID, len(deduped))
	if len(deduped) == 0 {
		return result, nil
	}

	s.metrics.IncFreezeLookup(lookupKindBatch)

	resolved, err := s.resolver.ResolveEffectivePlans(ctx, deduped)
	if err != nil {
		return nil, err
	}

	limits := make(map[uuid.UUID]int)
	var limited []uuid.UUID
	for _, ownerID := range deduped {
		result[ownerID] = []uuid.UUID{}
		plan, ok := resolved[ownerID]
		if !ok {
			continue
		}
		limit := plans.LimitOf(plan, enums.FeaturePolicies)
		if plans.IsUnlimited(limit) {
			continue
		}
		limits[ownerID] = limit
		limited = append(limited, ownerID)
	}
	if len(limited) == 0 {
		return result, nil
	}

	refs, err := s.repo.ListRefsByOwners(ctx, limited)
	if err != nil {
		return nil, err
	}
	grouped := make(map[uuid.UUID][]PolicyRef, len(limited))
	for _, ref := range refs {
		grouped[ref.OwnerID] = append(grouped[ref.OwnerID], ref)
	}
	for ownerID, ownerRefs := range grouped {
		sortRefs(ownerRefs)
		status := partition(limits[ownerID], ownerRefs)
		result[ownerID] = status.FrozenPolicyIDs
	}
	return result, nil
}

// partition applies the "beyond the limit" rule to refs already ordered
// most-recent first.
func partition(limit int, refs []PolicyRef) FreezeStatus {
	total := len(refs)
	active := limit
	if total < active {
		active = total
	}
	frozen := make([]uuid.UUID, 0, total-active)
	for _, ref := range refs[active:] {
		frozen = append(frozen, ref.ID)
	}
	return FreezeStatus{
		Limit:           limit,
		TotalPolicies:   total,
		FrozenCount:     total - active,
		FrozenPolicyIDs: frozen,
	}
}

func sortRefs(refs []PolicyRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].UpdatedAt.Equal(refs[j].UpdatedAt) {
			return refs[i].ID.String() > refs[j].ID.String()
		}
		return refs[i].UpdatedAt.After(refs[j].UpdatedAt)
	})
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
