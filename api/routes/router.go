package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/policyforge/policyforge-backend/api/controllers"
	"github.com/policyforge/policyforge-backend/api/controllers/entitlements"
	"github.com/policyforge/policyforge-backend/api/middleware"
	"github.com/policyforge/policyforge-backend/pkg/config"
	"github.com/policyforge/policyforge-backend/pkg/logger"
)

// Services groups the engine services the router exposes. Tenant identity
// comes from the route path; authentication is the upstream gateway's job.
type Services struct {
	Usage  entitlements.UsageService
	Freeze entitlements.FreezeService
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	services Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tenants/{tenantId}", func(r chi.Router) {
			r.Get("/usage", entitlements.UsageStats(services.Usage, logg))
			r.Get("/usage/{feature}/check", entitlements.UsageCheck(services.Usage, logg))
			r.Post("/usage/{feature}", entitlements.RecordUsage(services.Usage, logg))
			r.Get("/features/{capability}", entitlements.FeatureAccess(services.Usage, logg))
			r.Get("/freeze-status", entitlements.FreezeStatus(services.Freeze, logg))
			r.Get("/policies/{policyId}/frozen", entitlements.PolicyFrozen(services.Freeze, logg))
		})
		r.Post("/freeze-status/batch", entitlements.BatchFreezeStatus(services.Freeze, logg))
		r.Get("/plans/{plan}/price", entitlements.PlanPrice(logg))
	})

	return r
}
