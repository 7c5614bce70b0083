package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/policyforge/policyforge-backend/pkg/db/models"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	"github.com/policyforge/policyforge-backend/pkg/logger"
	"github.com/policyforge/policyforge-backend/pkg/metrics"
)

const defaultTrialSweepBatch = 500

// TrialExpiryJobParams configures the trial downgrade sweep.
type TrialExpiryJobParams struct {
	Logger    *logger.Logger
	Repo      trialSweepRepo
	Metrics   *metrics.EntitlementMetrics
	BatchSize int
}

// trialSweepRepo is the slice of the subscription repository the sweep uses.
type trialSweepRepo interface {
	FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]models.TenantSubscription, error)
	UpdatePlan(ctx context.Context, tenantID uuid.UUID, plan enums.PlanID) error
}

// NewTrialExpiryJob constructs the daily sweep that downgrades lapsed trials
// to the free plan. The write is the same one the on-demand resolver makes,
// so the two paths stay idempotent with respect to each other.
func NewTrialExpiryJob(params TrialExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultTrialSweepBatch
	}
	return &trialExpiryJob{
		logg:    params.Logger,
		repo:    params.Repo,
		metrics: params.Metrics,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type trialExpiryJob struct {
	logg    *logger.Logger
	repo    trialSweepRepo
	metrics *metrics.EntitlementMetrics
	batch   int
	now     func() time.Time
}

func (j *trialExpiryJob) Name() string { return "trial-expiry-sweep" }

// Run downgrades expired trials in batches. Per-tenant failures are
// aggregated rather than aborting the sweep; downgraded rows leave the
// result set, so the loop stops once a fetch comes back short or any row in
// the batch failed to update.
func (j *trialExpiryJob) Run(ctx context.Context) error {
	asOf := j.now().UTC()
	var swept int
	var errs error

	for {
		subs, err := j.repo.FindExpiredTrials(ctx, asOf, j.batch)
		if err != nil {
			return fmt.Errorf("find expired trials: %w", multierr.Append(errs, err))
		}
		batchFailed := false
		for i := range subs {
			if err := j.repo.UpdatePlan(ctx, subs[i].TenantID, enums.PlanFree); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("downgrade tenant %s: %w", subs[i].TenantID, err))
				batchFailed = true
				continue
			}
			j.metrics.IncTrialDowngrade()
			swept++
		}
		if len(subs) < j.batch || batchFailed {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":      asOf,
		"downgraded": swept,
	})
	if errs != nil {
		j.logg.Error(logCtx, "trial expiry sweep finished with failures", errs)
		return errs
	}
	j.logg.Info(logCtx, "trial expiry sweep complete")
	return nil
}
