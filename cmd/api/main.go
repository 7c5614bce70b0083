package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/policyforge/policyforge-backend/api/routes"
	"github.com/policyforge/policyforge-backend/internal/freeze"
	"github.com/policyforge/policyforge-backend/internal/plans"
	"github.com/policyforge/policyforge-backend/internal/usage"
	"github.com/policyforge/policyforge-backend/pkg/config"
	"github.com/policyforge/policyforge-backend/pkg/db"
	"github.com/policyforge/policyforge-backend/pkg/logger"
	"github.com/policyforge/policyforge-backend/pkg/metrics"
	"github.com/policyforge/policyforge-backend/pkg/migrate"
	"github.com/policyforge/policyforge-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := plans.ValidateCatalog(); err != nil {
		logg.Error(context.Background(), "plan catalog is invalid", err)
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	entitlementMetrics := metrics.NewEntitlementMetrics(prometheus.DefaultRegisterer)

	planService, err := plans.NewService(plans.ServiceParams{
		Repo:    plans.NewRepository(dbClient.DB()),
		Metrics: entitlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	usageService, err := usage.NewService(usage.ServiceParams{
		Repo:     usage.NewRepository(dbClient.DB()),
		Resolver: planService,
		Metrics:  entitlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	var freezeCache *freeze.Cache
	if cfg.Entitlements.FreezeCache {
		freezeCache, err = freeze.NewCache(redisClient, cfg.Entitlements.FreezeCacheTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create freeze cache", err)
			os.Exit(1)
		}
	}
	freezeService, err := freeze.NewService(freeze.ServiceParams{
		Repo:     freeze.NewRepository(dbClient.DB()),
		Resolver: planService,
		Metrics:  entitlementMetrics,
		Cache:    freezeCache,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create freeze service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Services{
			Usage:  usageService,
			Freeze: freezeService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
