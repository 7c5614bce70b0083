package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/policyforge/policyforge-backend/pkg/db/models"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	pkgerrors "github.com/policyforge/policyforge-backend/pkg/errors"
)

type stubRepo struct {
	subs      map[uuid.UUID]*models.TenantSubscription
	findErr   error
	updateErr error

	planWrites map[uuid.UUID]enums.PlanID
	batchCalls int
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) CreateSubscription(ctx context.Context, sub *models.TenantSubscription) error {
	return nil
}

func (s *stubRepo) FindSubscription(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.subs[tenantID], nil
}

func (s *stubRepo) FindSubscriptionsByTenantIDs(ctx context.Context, tenantIDs []uuid.UUID) ([]models.TenantSubscription, error) {
	s.batchCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []models.TenantSubscription
	for _, id := range tenantIDs {
		if sub, ok := s.subs[id]; ok {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *stubRepo) UpdatePlan(ctx context.Context, tenantID uuid.UUID, plan enums.PlanID) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.planWrites == nil {
		s.planWrites = make(map[uuid.UUID]enums.PlanID)
	}
	s.planWrites[tenantID] = plan
	if sub, ok := s.subs[tenantID]; ok {
		sub.PlanID = plan
	}
	return nil
}

func (s *stubRepo) FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]models.TenantSubscription, error) {
	return nil, nil
}

func newPlanService(t *testing.T, repo Repository, now time.Time) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo: repo,
		Now:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestResolveEffectivePlanMissingTenant(t *testing.T) {
	svc := newPlanService(t, &stubRepo{}, time.Now())

	_, err := svc.ResolveEffectivePlan(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected not-found error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND code, got %v", err)
	}
}

func TestResolveEffectivePlanReturnsStoredPlan(t *testing.T) {
	tenantID := uuid.New()
	repo := &stubRepo{subs: map[uuid.UUID]*models.TenantSubscription{
		tenantID: {TenantID: tenantID, PlanID: enums.PlanPro},
	}}
	svc := newPlanService(t, repo, time.Now())

	plan, err := svc.ResolveEffectivePlan(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("ResolveEffectivePlan: %v", err)
	}
	if plan != enums.PlanPro {
		t.Fatalf("expected pro, got %s", plan)
	}
	if len(repo.planWrites) != 0 {
		t.Fatal("stored plan resolution must not write")
	}
}

func TestResolveEffectivePlanUnrecognizedPlanDegradesWithoutWrite(t *testing.T) {
	tenantID := uuid.New()
	repo := &stubRepo{subs: map[uuid.UUID]*models.TenantSubscription{
		tenantID: {TenantID: tenantID, PlanID: enums.PlanID("platinum")},
	}}
	svc := newPlanService(t, repo, time.Now())

	plan, err := svc.ResolveEffectivePlan(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("ResolveEffectivePlan: %v", err)
	}
	if plan != enums.PlanFree {
		t.Fatalf("expected free fallback, got %s", plan)
	}
	if len(repo.planWrites) != 0 {
		t.Fatal("fallback must not persist anything")
	}
}

func TestResolveEffectivePlanExpiredTrialDowngradesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := now.Add(-48 * time.Hour)
	tenantID := uuid.New()
	repo := &stubRepo{subs: map[uuid.UUID]*models.TenantSubscription{
		tenantID: {TenantID: tenantID, PlanID: enums.PlanTrial, TrialEndsAt: &ended},
	}}
	svc := newPlanService(t, repo, now)

	plan, err := svc.ResolveEffectivePlan(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("ResolveEffectivePlan: %v", err)
	}
	if plan != enums.PlanFree {
		t.Fatalf("expected downgrade to free, got %s", plan)
	}
	if repo.planWrites[tenantID] != enums.PlanFree {
		t.Fatal("expected the downgrade to be persisted")
	}

	// Second resolution reads the stored free plan and takes the no-write path.
	repo.planWrites = nil
	plan, err = svc.ResolveEffectivePlan(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if plan != enums.PlanFree {
		t.Fatalf("expected free on re-resolve, got %s", plan)
	}
	if len(repo.planWrites) != 0 {
		t.Fatal("re-resolving a downgraded tenant must not write again")
	}
}

func TestResolveEffectivePlanLiveTrial(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ends := now.Add(72 * time.Hour)
	tenantID := uuid.New()
	repo := &stubRepo{subs: map[uuid.UUID]*models.TenantSubscription{
		tenantID: {TenantID: tenantID, PlanID: enums.PlanTrial, TrialEndsAt: &ends},
	}}
	svc := newPlanService(t, repo, now)

	plan, err := svc.ResolveEffectivePlan(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("ResolveEffectivePlan: %v", err)
	}
	if plan != enums.PlanTrial {
		t.Fatalf("expected trial, got %s", plan)
	}
	if len(repo.planWrites) != 0 {
		t.Fatal("live trial must not write")
	}
}

func TestResolveEffectivePlanTrialWithoutEndDateStaysTrial(t *testing.T) {
	tenantID := uuid.New()
	repo := &stubRepo{subs: map[uuid.UUID]*models.TenantSubscription{
		tenantID: {TenantID: tenantID, PlanID: enums.PlanTrial},
	}}
	svc := newPlanService(t, repo, time.Now())

	plan, err := svc.ResolveEffectivePlan(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("ResolveEffectivePlan: %v", err)
	}
	if plan != enums.PlanTrial {
		t.Fatalf("open-ended trial should stay trial, got %s", plan)
	}
}

func TestResolveEffectivePlansBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := now.Add(-time.Hour)
	proTenant := uuid.New()
	lapsedTenant := uuid.New()
	missingTenant := uuid.New()
	repo := &stubRepo{subs: map[uuid.UUID]*models.TenantSubscription{
		proTenant:    {TenantID: proTenant, PlanID: enums.PlanPro},
		lapsedTenant: {TenantID: lapsedTenant, PlanID: enums.PlanTrial, TrialEndsAt: &ended},
	}}
	svc := newPlanService(t, repo, now)

	resolved, err := svc.ResolveEffectivePlans(context.Background(), []uuid.UUID{proTenant, lapsedTenant, missingTenant})
	if err != nil {
		t.Fatalf("ResolveEffectivePlans: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resolved))
	}
	if resolved[proTenant] != enums.PlanPro {
		t.Fatalf("expected pro, got %s", resolved[proTenant])
	}
	if resolved[lapsedTenant] != enums.PlanFree {
		t.Fatalf("expected lapsed trial downgraded to free, got %s", resolved[lapsedTenant])
	}
	if _, ok := resolved[missingTenant]; ok {
		t.Fatal("missing tenant should be absent from the result")
	}
	if repo.planWrites[lapsedTenant] != enums.PlanFree {
		t.Fatal("batch path must persist the downgrade too")
	}
	if repo.batchCalls != 1 {
		t.Fatalf("expected one subscription fetch, got %d", repo.batchCalls)
	}
}

func TestResolveEffectivePlansEmptyInput(t *testing.T) {
	repo := &stubRepo{}
	svc := newPlanService(t, repo, time.Now())

	resolved, err := svc.ResolveEffectivePlans(context.Background(), nil)
	if err != nil {
		t.Fatalf("ResolveEffectivePlans: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(resolved))
	}
	if repo.batchCalls != 0 {
		t.Fatal("empty input must not query")
	}
}

func TestResolveEffectivePlanPropagatesWriteFailure(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Hour)
	tenantID := uuid.New()
	repo := &stubRepo{
		subs: map[uuid.UUID]*models.TenantSubscription{
			tenantID: {TenantID: tenantID, PlanID: enums.PlanTrial, TrialEndsAt: &ended},
		},
		updateErr: errors.New("write failed"),
	}
	svc := newPlanService(t, repo, now)

	if _, err := svc.ResolveEffectivePlan(context.Background(), tenantID); err == nil {
		t.Fatal("expected the downgrade failure to propagate")
	}
}

func TestTrialDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newPlanService(t, &stubRepo{}, now)

	if days := svc.TrialDaysLeft(nil); days != nil {
		t.Fatal("nil subscription should have no trial days")
	}
	if days := svc.TrialDaysLeft(&models.TenantSubscription{PlanID: enums.PlanPro}); days != nil {
		t.Fatal("non-trial plan should have no trial days")
	}
	if days := svc.TrialDaysLeft(&models.TenantSubscription{PlanID: enums.PlanTrial}); days != nil {
		t.Fatal("trial without end date should have no trial days")
	}

	past := now.Add(-time.Hour)
	if days := svc.TrialDaysLeft(&models.TenantSubscription{PlanID: enums.PlanTrial, TrialEndsAt: &past}); days != nil {
		t.Fatal("expired trial should have no trial days")
	}

	// Partial days round up.
	in36h := now.Add(36 * time.Hour)
	days := svc.TrialDaysLeft(&models.TenantSubscription{PlanID: enums.PlanTrial, TrialEndsAt: &in36h})
	if days == nil || *days != 2 {
		t.Fatalf("expected 2 days for a 36h runway, got %v", days)
	}
}
