package plans

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/policyforge/policyforge-backend/pkg/db/models"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	pkgerrors "github.com/policyforge/policyforge-backend/pkg/errors"
	"github.com/policyforge/policyforge-backend/pkg/metrics"
)

// ServiceParams groups dependencies for the plan resolver.
type ServiceParams struct {
	Repo    Repository
	Metrics *metrics.EntitlementMetrics
	Now     func() time.Time
}

// Service resolves the effective plan for a tenant, persisting the one-time
// downgrade when a trial has lapsed.
type Service struct {
	repo    Repository
	metrics *metrics.EntitlementMetrics
	now     func() time.Time
}

// NewService builds a plan resolver service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, metrics: params.Metrics, now: now}, nil
}

// ResolveEffectivePlan reads the tenant's stored subscription and returns the
// plan actually in force. A missing tenant surfaces as a NOT_FOUND coded
// error; callers decide how to degrade.
func (s *Service) ResolveEffectivePlan(ctx context.Context, tenantID uuid.UUID) (enums.PlanID, error) {
	sub, err := s.repo.FindSubscription(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "tenant subscription not found")
	}
	return s.ResolveSubscription(ctx, sub)
}

// ResolveSubscription applies the effective-plan rules to an already-fetched
// subscription row. The expired-trial downgrade is persisted here; repeated
// calls after the first write read free and take the no-write branch.
func (s *Service) ResolveSubscription(ctx context.Context, sub *models.TenantSubscription) (enums.PlanID, error) {
	if sub == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "tenant subscription not found")
	}
	if sub.PlanID == enums.PlanTrial && trialExpired(sub, s.now()) {
		if err := s.repo.UpdatePlan(ctx, sub.TenantID, enums.PlanFree); err != nil {
			return "", err
		}
		sub.PlanID = enums.PlanFree
		s.metrics.IncTrialDowngrade()
		return enums.PlanFree, nil
	}
	// Unrecognized stored plans degrade to free without a write.
	return sub.PlanID.OrFree(), nil
}

// ResolveEffectivePlans batch-resolves the effective plan for many tenants
// with a single subscription fetch. Tenants without a subscription row are
// absent from the result. Downgrades are applied per tenant, same as the
// single-tenant path.
func (s *Service) ResolveEffectivePlans(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]enums.PlanID, error) {
	resolved := make(map[uuid.UUID]enums.PlanID, len(tenantIDs))
	if len(tenantIDs) == 0 {
		return resolved, nil
	}
	subs, err := s.repo.FindSubscriptionsByTenantIDs(ctx, tenantIDs)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		plan, err := s.ResolveSubscription(ctx, &subs[i])
		if err != nil {
			return nil, err
		}
		resolved[subs[i].TenantID] = plan
	}
	return resolved, nil
}

// FindSubscription exposes the raw subscription row for callers that need
// trial metadata alongside the plan (usage stats).
func (s *Service) FindSubscription(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	return s.repo.FindSubscription(ctx, tenantID)
}

// TrialDaysLeft returns the whole days remaining on a live trial, clamped to
// zero, or nil when the subscription is not an unexpired trial.
func (s *Service) TrialDaysLeft(sub *models.TenantSubscription) *int {
	if sub == nil || sub.PlanID != enums.PlanTrial || sub.TrialEndsAt == nil {
		return nil
	}
	now := s.now()
	if !sub.TrialEndsAt.After(now) {
		return nil
	}
	days := int(math.Ceil(sub.TrialEndsAt.Sub(now).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}

func trialExpired(sub *models.TenantSubscription, now time.Time) bool {
	return sub.TrialEndsAt != nil && sub.TrialEndsAt.Before(now)
}
