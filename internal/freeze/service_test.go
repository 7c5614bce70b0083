package freeze

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/policyforge/policyforge-backend/internal/plans"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	pkgerrors "github.com/policyforge/policyforge-backend/pkg/errors"
)

type stubPlanResolver struct {
	plans        map[uuid.UUID]enums.PlanID
	singleCalls  int
	batchCalls   int
	batchQueried [][]uuid.UUID
}

func (s *stubPlanResolver) ResolveEffectivePlan(ctx context.Context, tenantID uuid.UUID) (enums.PlanID, error) {
	s.singleCalls++
	plan, ok := s.plans[tenantID]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "tenant subscription not found")
	}
	return plan, nil
}

func (s *stubPlanResolver) ResolveEffectivePlans(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]enums.PlanID, error) {
	s.batchCalls++
	s.batchQueried = append(s.batchQueried, tenantIDs)
	out := make(map[uuid.UUID]enums.PlanID)
	for _, id := range tenantIDs {
		if plan, ok := s.plans[id]; ok {
			out[id] = plan
		}
	}
	return out, nil
}

type stubFreezeRepo struct {
	refs map[uuid.UUID][]PolicyRef

	countCalls   int
	listCalls    int
	topCalls     int
	batchCalls   int
	lastTopLimit int
}

func (s *stubFreezeRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubFreezeRepo) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	s.countCalls++
	return int64(len(s.refs[ownerID])), nil
}

func (s *stubFreezeRepo) ListRefsByOwner(ctx context.Context, ownerID uuid.UUID) ([]PolicyRef, error) {
	s.listCalls++
	refs := append([]PolicyRef(nil), s.refs[ownerID]...)
	sortRefs(refs)
	return refs, nil
}

func (s *stubFreezeRepo) ListTopRefsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]PolicyRef, error) {
	s.topCalls++
	s.lastTopLimit = limit
	refs := append([]PolicyRef(nil), s.refs[ownerID]...)
	sortRefs(refs)
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (s *stubFreezeRepo) ListRefsByOwners(ctx context.Context, ownerIDs []uuid.UUID) ([]PolicyRef, error) {
	s.batchCalls++
	var out []PolicyRef
	for _, ownerID := range ownerIDs {
		out = append(out, s.refs[ownerID]...)
	}
	return out, nil
}

// refsFor builds n refs for the owner, most recent first.
func refsFor(ownerID uuid.UUID, n int) []PolicyRef {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	refs := make([]PolicyRef, 0, n)
	for i := 0; i < n; i++ {
		refs = append(refs, PolicyRef{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			UpdatedAt: base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return refs
}

func newFreezeService(t *testing.T, repo Repository, resolver planResolver, cache *Cache) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: repo, Resolver: resolver, Cache: cache})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestGetFreezeStatusUnknownOwner(t *testing.T) {
	svc := newFreezeService(t, &stubFreezeRepo{}, &stubPlanResolver{}, nil)

	status, err := svc.GetFreezeStatus(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unknown owner must not error: %v", err)
	}
	if status.Limit != 0 || status.TotalPolicies != 0 || status.FrozenCount != 0 {
		t.Fatalf("expected zero status, got %+v", status)
	}
	if status.FrozenPolicyIDs == nil || len(status.FrozenPolicyIDs) != 0 {
		t.Fatal("frozen ids must be an empty slice, not nil")
	}
}

func TestGetFreezeStatusOverLimitFreezesOldest(t *testing.T) {
	ownerID := uuid.New()
	refs := refsFor(ownerID, 5)
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refs}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanFree}}
	svc := newFreezeService(t, repo, resolver, nil)

	status, err := svc.GetFreezeStatus(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetFreezeStatus: %v", err)
	}
	if status.Limit != 3 || status.TotalPolicies != 5 || status.FrozenCount != 2 {
		t.Fatalf("unexpected partition %+v", status)
	}
	// The two least recently updated policies freeze.
	if len(status.FrozenPolicyIDs) != 2 {
		t.Fatalf("expected 2 frozen ids, got %d", len(status.FrozenPolicyIDs))
	}
	if status.FrozenPolicyIDs[0] != refs[3].ID || status.FrozenPolicyIDs[1] != refs[4].ID {
		t.Fatal("expected the oldest policies to be frozen")
	}
}

func TestGetFreezeStatusUnderLimit(t *testing.T) {
	ownerID := uuid.New()
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refsFor(ownerID, 2)}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanFree}}
	svc := newFreezeService(t, repo, resolver, nil)

	status, err := svc.GetFreezeStatus(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetFreezeStatus: %v", err)
	}
	if status.FrozenCount != 0 || len(status.FrozenPolicyIDs) != 0 {
		t.Fatalf("under-limit owner should have nothing frozen: %+v", status)
	}
}

func TestGetFreezeStatusUnlimitedPlanOnlyCounts(t *testing.T) {
	ownerID := uuid.New()
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refsFor(ownerID, 80)}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanEnterprise}}
	svc := newFreezeService(t, repo, resolver, nil)

	status, err := svc.GetFreezeStatus(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetFreezeStatus: %v", err)
	}
	if status.Limit != plans.Unlimited {
		t.Fatalf("expected unlimited sentinel, got %d", status.Limit)
	}
	if status.TotalPolicies != 80 || status.FrozenCount != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if repo.listCalls != 0 {
		t.Fatal("unlimited owners must not pay for a full list fetch")
	}
	if repo.countCalls != 1 {
		t.Fatalf("expected one count query, got %d", repo.countCalls)
	}
}

func TestGetFreezeStatusUsesCache(t *testing.T) {
	ownerID := uuid.New()
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refsFor(ownerID, 5)}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanFree}}
	store := newFakeCacheStore()
	cache, err := NewCache(store, time.Minute)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	svc := newFreezeService(t, repo, resolver, cache)
	ctx := context.Background()

	first, err := svc.GetFreezeStatus(ctx, ownerID)
	if err != nil {
		t.Fatalf("GetFreezeStatus: %v", err)
	}
	second, err := svc.GetFreezeStatus(ctx, ownerID)
	if err != nil {
		t.Fatalf("GetFreezeStatus (cached): %v", err)
	}
	if resolver.singleCalls != 1 || repo.listCalls != 1 {
		t.Fatalf("second lookup should come from cache; resolver=%d list=%d", resolver.singleCalls, repo.listCalls)
	}
	if first.FrozenCount != second.FrozenCount || len(first.FrozenPolicyIDs) != len(second.FrozenPolicyIDs) {
		t.Fatalf("cached status diverged: %+v vs %+v", first, second)
	}
}

func TestIsPolicyFrozenUnlimitedShortCircuits(t *testing.T) {
	ownerID := uuid.New()
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refsFor(ownerID, 10)}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanTeam}}
	svc := newFreezeService(t, repo, resolver, nil)

	check, err := svc.IsPolicyFrozen(context.Background(), ownerID, uuid.New())
	if err != nil {
		t.Fatalf("IsPolicyFrozen: %v", err)
	}
	if check.IsFrozen {
		t.Fatal("unlimited plan never freezes")
	}
	if check.ActiveLimit != plans.Unlimited {
		t.Fatalf("expected unlimited sentinel, got %d", check.ActiveLimit)
	}
	if repo.countCalls != 0 && repo.topCalls != 0 {
		t.Fatal("unlimited plan must not query at all")
	}
}

func TestIsPolicyFrozenUnderLimitSkipsListFetch(t *testing.T) {
	ownerID := uuid.New()
	refs := refsFor(ownerID, 3)
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refs}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanFree}}
	svc := newFreezeService(t, repo, resolver, nil)

	check, err := svc.IsPolicyFrozen(context.Background(), ownerID, refs[0].ID)
	if err != nil {
		t.Fatalf("IsPolicyFrozen: %v", err)
	}
	if check.IsFrozen {
		t.Fatal("owner at the limit has nothing frozen")
	}
	if check.ActiveLimit != 3 || check.TotalPolicies != 3 || check.FrozenCount != 0 {
		t.Fatalf("unexpected check %+v", check)
	}
	if repo.topCalls != 0 {
		t.Fatal("at-limit owners must not fetch the active set")
	}
}

func TestIsPolicyFrozenOverLimit(t *testing.T) {
	ownerID := uuid.New()
	refs := refsFor(ownerID, 5)
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refs}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanFree}}
	svc := newFreezeService(t, repo, resolver, nil)
	ctx := context.Background()

	// Most recent policy stays active.
	check, err := svc.IsPolicyFrozen(ctx, ownerID, refs[0].ID)
	if err != nil {
		t.Fatalf("IsPolicyFrozen: %v", err)
	}
	if check.IsFrozen {
		t.Fatal("recent policy must stay active")
	}
	if check.FrozenCount != 2 || check.TotalPolicies != 5 || check.ActiveLimit != 3 {
		t.Fatalf("unexpected check %+v", check)
	}
	if repo.lastTopLimit != 3 {
		t.Fatalf("expected a top-3 fetch, got %d", repo.lastTopLimit)
	}

	// Oldest policy freezes.
	check, err = svc.IsPolicyFrozen(ctx, ownerID, refs[4].ID)
	if err != nil {
		t.Fatalf("IsPolicyFrozen: %v", err)
	}
	if !check.IsFrozen {
		t.Fatal("oldest policy must be frozen")
	}
	if check.Reason == "" {
		t.Fatal("frozen check must carry a reason")
	}

	// A nonexistent id reads as frozen while the owner is over limit.
	check, err = svc.IsPolicyFrozen(ctx, ownerID, uuid.New())
	if err != nil {
		t.Fatalf("IsPolicyFrozen: %v", err)
	}
	if !check.IsFrozen {
		t.Fatal("unknown id must read frozen for an over-limit owner")
	}
}

func TestIsPolicyFrozenUnknownOwner(t *testing.T) {
	svc := newFreezeService(t, &stubFreezeRepo{}, &stubPlanResolver{}, nil)

	check, err := svc.IsPolicyFrozen(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unknown owner must not error: %v", err)
	}
	if check.IsFrozen || check.ActiveLimit != 0 || check.TotalPolicies != 0 {
		t.Fatalf("expected zero check, got %+v", check)
	}
}

func TestGetBatchFreezeStatusEmptyInput(t *testing.T) {
	repo := &stubFreezeRepo{}
	resolver := &stubPlanResolver{}
	svc := newFreezeService(t, repo, resolver, nil)

	result, err := svc.GetBatchFreezeStatus(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetBatchFreezeStatus: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(result))
	}
	if resolver.batchCalls != 0 || repo.batchCalls != 0 {
		t.Fatal("empty input must not query anything")
	}
}

func TestGetBatchFreezeStatusMixedOwners(t *testing.T) {
	overLimit := uuid.New()
	underLimit := uuid.New()
	unlimited := uuid.New()
	unknown := uuid.New()

	overRefs := refsFor(overLimit, 5)
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{
		overLimit:  overRefs,
		underLimit: refsFor(underLimit, 1),
		unlimited:  refsFor(unlimited, 40),
	}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{
		overLimit:  enums.PlanFree,
		underLimit: enums.PlanFree,
		unlimited:  enums.PlanEnterprise,
	}}
	svc := newFreezeService(t, repo, resolver, nil)

	// Duplicate ids collapse before any query.
	input := []uuid.UUID{overLimit, underLimit, unlimited, unknown, overLimit, unknown}
	result, err := svc.GetBatchFreezeStatus(context.Background(), input)
	if err != nil {
		t.Fatalf("GetBatchFreezeStatus: %v", err)
	}
	if len(result) != 4 {
		t.Fatalf("expected an entry per deduped owner, got %d", len(result))
	}
	if resolver.batchCalls != 1 {
		t.Fatalf("expected one subscription fetch, got %d", resolver.batchCalls)
	}
	if len(resolver.batchQueried[0]) != 4 {
		t.Fatalf("expected deduped resolver input, got %d ids", len(resolver.batchQueried[0]))
	}
	if repo.batchCalls != 1 {
		t.Fatalf("expected one resource fetch, got %d", repo.batchCalls)
	}

	if len(result[overLimit]) != 2 {
		t.Fatalf("over-limit owner should have 2 frozen ids, got %d", len(result[overLimit]))
	}
	if result[overLimit][0] != overRefs[3].ID || result[overLimit][1] != overRefs[4].ID {
		t.Fatal("expected the oldest policies frozen in batch too")
	}
	for _, ownerID := range []uuid.UUID{underLimit, unlimited, unknown} {
		ids, ok := result[ownerID]
		if !ok {
			t.Fatalf("owner %s missing from result", ownerID)
		}
		if len(ids) != 0 {
			t.Fatalf("owner %s should have nothing frozen, got %d", ownerID, len(ids))
		}
	}
}

func TestGetBatchFreezeStatusMatchesSingleOwnerPath(t *testing.T) {
	ownerID := uuid.New()
	refs := refsFor(ownerID, 7)
	repo := &stubFreezeRepo{refs: map[uuid.UUID][]PolicyRef{ownerID: refs}}
	resolver := &stubPlanResolver{plans: map[uuid.UUID]enums.PlanID{ownerID: enums.PlanFree}}
	svc := newFreezeService(t, repo, resolver, nil)
	ctx := context.Background()

	single, err := svc.GetFreezeStatus(ctx, ownerID)
	if err != nil {
		t.Fatalf("GetFreezeStatus: %v", err)
	}
	batch, err := svc.GetBatchFreezeStatus(ctx, []uuid.UUID{ownerID})
	if err != nil {
		t.Fatalf("GetBatchFreezeStatus: %v", err)
	}
	if len(batch[ownerID]) != len(single.FrozenPolicyIDs) {
		t.Fatalf("batch and single disagree: %d vs %d", len(batch[ownerID]), len(single.FrozenPolicyIDs))
	}
	for i := range single.FrozenPolicyIDs {
		if batch[ownerID][i] != single.FrozenPolicyIDs[i] {
			t.Fatal("batch and single must freeze the same policies")
		}
	}
}
