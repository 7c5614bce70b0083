package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/policyforge/policyforge-backend/pkg/db/models"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	"github.com/policyforge/policyforge-backend/pkg/logger"
)

func TestTrialExpiryJobDowngradesExpiredTrials(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeTrialRepo{
		batches: [][]models.TenantSubscription{
			{{TenantID: uuid.New()}, {TenantID: uuid.New()}},
		},
	}
	job := newTrialExpiryJob(t, repo, 500)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !repo.lastAsOf.Equal(now) {
		t.Fatalf("expected as-of %s, got %s", now, repo.lastAsOf)
	}
	if len(repo.downgraded) != 2 {
		t.Fatalf("expected 2 downgrades, got %d", len(repo.downgraded))
	}
	for _, plan := range repo.downgraded {
		if plan != enums.PlanFree {
			t.Fatalf("expected downgrade to free, got %s", plan)
		}
	}
}

func TestTrialExpiryJobDrainsFullBatches(t *testing.T) {
	repo := &fakeTrialRepo{
		batches: [][]models.TenantSubscription{
			{{TenantID: uuid.New()}, {TenantID: uuid.New()}},
			{{TenantID: uuid.New()}},
		},
	}
	job := newTrialExpiryJob(t, repo, 2)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.fetches != 2 {
		t.Fatalf("expected 2 fetches, got %d", repo.fetches)
	}
	if len(repo.downgraded) != 3 {
		t.Fatalf("expected 3 downgrades, got %d", len(repo.downgraded))
	}
}

func TestTrialExpiryJobAggregatesDowngradeFailures(t *testing.T) {
	failing := uuid.New()
	repo := &fakeTrialRepo{
		batches: [][]models.TenantSubscription{
			{{TenantID: failing}, {TenantID: uuid.New()}},
		},
		updateErrs: map[uuid.UUID]error{failing: errors.New("boom")},
	}
	job := newTrialExpiryJob(t, repo, 2)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	// The healthy row in the same batch is still downgraded.
	if len(repo.downgraded) != 1 {
		t.Fatalf("expected 1 successful downgrade, got %d", len(repo.downgraded))
	}
	// A failing batch stops the loop instead of refetching the same rows.
	if repo.fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", repo.fetches)
	}
}

func TestTrialExpiryJobPropagatesFetchErrors(t *testing.T) {
	repo := &fakeTrialRepo{fetchErr: errors.New("db down")}
	job := newTrialExpiryJob(t, repo, 2)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newTrialExpiryJob(t *testing.T, repo *fakeTrialRepo, batch int) *trialExpiryJob {
	t.Helper()
	jobIface, err := NewTrialExpiryJob(TrialExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Repo:      repo,
		BatchSize: batch,
	})
	if err != nil {
		t.Fatalf("NewTrialExpiryJob: %v", err)
	}
	job, ok := jobIface.(*trialExpiryJob)
	if !ok {
		t.Fatalf("expected trialExpiryJob, got %T", jobIface)
	}
	return job
}

type fakeTrialRepo struct {
	batches    [][]models.TenantSubscription
	fetchErr   error
	updateErrs map[uuid.UUID]error

	fetches    int
	lastAsOf   time.Time
	downgraded map[uuid.UUID]enums.PlanID
}

func (f *fakeTrialRepo) FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]models.TenantSubscription, error) {
	f.fetches++
	f.lastAsOf = asOf
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeTrialRepo) UpdatePlan(ctx context.Context, tenantID uuid.UUID, plan enums.PlanID) error {
	if err := f.updateErrs[tenantID]; err != nil {
		return err
	}
	if f.downgraded == nil {
		f.downgraded = make(map[uuid.UUID]enums.PlanID)
	}
	f.downgraded[tenantID] = plan
	return nil
}
