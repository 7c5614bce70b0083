package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/policyforge/policyforge-backend/internal/plans"
	"github.com/policyforge/policyforge-backend/pkg/db/models"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	pkgerrors "github.com/policyforge/policyforge-backend/pkg/errors"
	"github.com/policyforge/policyforge-backend/pkg/metrics"
)

// Callers branch on Message content, so the markers below must stay
// distinguishable by substring.
const (
	notFoundMarker = "tenant not found"
	limitMarker    = "usage limit reached"
)

// planResolver is the slice of the plan service the meter consumes.
type planResolver interface {
	ResolveEffectivePlan(ctx context.Context, tenantID uuid.UUID) (enums.PlanID, error)
	ResolveSubscription(ctx context.Context, sub *models.TenantSubscription) (enums.PlanID, error)
	FindSubscription(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
	TrialDaysLeft(sub *models.TenantSubscription) *int
}

// CheckResult reports whether one more unit of a metered feature is allowed.
type CheckResult struct {
	Allowed   bool   `json:"allowed"`
	Remaining *int64 `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

// Stats summarizes a tenant's plan, trial runway, and per-feature usage.
type Stats struct {
	Plan          enums.PlanID                `json:"plan"`
	TrialDaysLeft *int                        `json:"trialDaysLeft"`
	Usage         map[enums.FeatureKey]int64  `json:"usage"`
	Features      map[enums.CapabilityKey]any `json:"features"`
}

// ServiceParams groups dependencies for the usage meter.
type ServiceParams struct {
	Repo     Repository
	Resolver planResolver
	Metrics  *metrics.EntitlementMetrics
	Now      func() time.Time
}

// Service meters per-tenant feature consumption against plan limits.
type Service struct {
	repo     Repository
	resolver planResolver
	metrics  *metrics.EntitlementMetrics
	now      func() time.Time
}

// NewService builds a usage meter service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("plan resolver is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     params.Repo,
		resolver: params.Resolver,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// CheckUsageLimit answers "is one more unit allowed" for the tenant/feature
// pair. Unknown tenants are reported as a structured denial, not an error.
func (s *Service) CheckUsageLimit(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey) (CheckResult, error) {
	plan, err := s.resolver.ResolveEffectivePlan(ctx, tenantID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			s.metrics.IncUsageCheck(feature.String(), metrics.CheckOutcomeNotFound)
			return CheckResult{Allowed: false, Message: notFoundMarker}, nil
		}
		return CheckResult{}, err
	}

	limit := plans.LimitOf(plan, feature)
	if plans.IsUnlimited(limit) {
		s.metrics.IncUsageCheck(feature.String(), metrics.CheckOutcomeAllowed)
		return CheckResult{Allowed: true}, nil
	}

	count, err := s.repo.GetCount(ctx, tenantID, feature, models.CurrentPeriod(s.now()))
	if err != nil {
		return CheckResult{}, err
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	result := CheckResult{
		Allowed:   count < int64(limit),
		Remaining: &remaining,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("%s for %s on the %s plan", limitMarker, feature, plan)
		s.metrics.IncUsageCheck(feature.String(), metrics.CheckOutcomeDenied)
		return result, nil
	}
	s.metrics.IncUsageCheck(feature.String(), metrics.CheckOutcomeAllowed)
	return result, nil
}

// RecordUsage upserts the tenant's counter for the current period. No limit
// check happens here; enforcement is the caller's responsibility via
// CheckUsageLimit first. The window between the two calls is an accepted
// race.
func (s *Service) RecordUsage(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey, amount int64) error {
	if amount <= 0 {
		amount = 1
	}
	return s.repo.Increment(ctx, tenantID, feature, models.CurrentPeriod(s.now()), amount)
}

// GetUsageStats reports the tenant's plan, trial runway, usage counters, and
// capability map. Unknown tenants degrade to free with all-zero usage
// instead of erroring.
func (s *Service) GetUsageStats(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	sub, err := s.resolver.FindSubscription(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	if sub == nil {
		return Stats{
			Plan:     enums.PlanFree,
			Usage:    zeroUsage(),
			Features: plans.Capabilities(enums.PlanFree),
		}, nil
	}

	plan, err := s.resolver.ResolveSubscription(ctx, sub)
	if err != nil {
		return Stats{}, err
	}

	counts, err := s.repo.GetCounts(ctx, tenantID, models.CurrentPeriod(s.now()))
	if err != nil {
		return Stats{}, err
	}
	used := zeroUsage()
	for feature, count := range counts {
		used[feature] = count
	}

	return Stats{
		Plan:          plan,
		TrialDaysLeft: s.resolver.TrialDaysLeft(sub),
		Usage:         used,
		Features:      plans.Capabilities(plan),
	}, nil
}

// HasFeatureAccess reports whether the tenant's plan grants a capability.
// Boolean capabilities pass through; string-valued ones grant access when
// non-empty.
func (s *Service) HasFeatureAccess(ctx context.Context, tenantID uuid.UUID, key enums.CapabilityKey) (bool, error) {
	plan, err := s.resolver.ResolveEffectivePlan(ctx, tenantID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	switch value := plans.CapabilityOf(plan, key).(type) {
	case bool:
		return value, nil
	case string:
		return value != "", nil
	default:
		return false, nil
	}
}

func zeroUsage() map[enums.FeatureKey]int64 {
	usage := make(map[enums.FeatureKey]int64, len(enums.FeatureKeys()))
	for _, feature := range enums.FeatureKeys() {
		usage[feature] = 0
	}
	return usage
}
