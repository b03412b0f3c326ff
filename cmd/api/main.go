package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/sealtrack/sealtrack-backend/api/routes"
	"github.com/sealtrack/sealtrack-backend/internal/audit"
	"github.com/sealtrack/sealtrack-backend/internal/auth"
	"github.com/sealtrack/sealtrack-backend/internal/locations"
	"github.com/sealtrack/sealtrack-backend/internal/notifications"
	"github.com/sealtrack/sealtrack-backend/internal/tasks"
	"github.com/sealtrack/sealtrack-backend/internal/tracking"
	"github.com/sealtrack/sealtrack-backend/internal/users"
	"github.com/sealtrack/sealtrack-backend/pkg/auth/session"
	"github.com/sealtrack/sealtrack-backend/pkg/config"
	"github.com/sealtrack/sealtrack-backend/pkg/db"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/metrics"
	"github.com/sealtrack/sealtrack-backend/pkg/migrate"
	"github.com/sealtrack/sealtrack-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

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

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())
	recorder := audit.NewRecorder(dbClient.DB())
	notifier := notifications.NewNotifier(dbClient.DB(), userRepo)

	authService := auth.NewService(userRepo, sessionManager, cfg.JWT, recorder, logg)

	taskRepo := tasks.NewRepository(dbClient.DB())
	taskService := tasks.NewService(taskRepo, userRepo, recorder, notifier, logg, cfg.Tracking.DefaultFenceRadiusM)

	locationService := locations.NewService(locations.NewRepository(dbClient.DB()), taskRepo, taskService, logg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	trackingMetrics := metrics.NewTracking(registry)

	var limiter tracking.PingLimiter
	if cfg.Tracking.UseRedisLimiter() {
		limiter = tracking.NewRedisLimiter(redisClient, cfg.Tracking.PingMinInterval)
	} else {
		limiter = tracking.NewMemoryLimiter(cfg.Tracking.PingMinInterval)
	}

	hub := tracking.NewHub(trackingMetrics)
	gateway := tracking.NewGateway(cfg.Tracking, cfg.JWT, sessionManager, limiter, locationService, hub, trackingMetrics, logg)

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
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			taskService,
			locationService,
			gateway,
			registry,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-signalCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	if err := shutdown(server, dbClient, redisClient); err != nil {
		logg.Error(ctx, "shutdown finished with errors", err)
		os.Exit(1)
	}
	logg.Info(ctx, "shutdown complete")
}

func shutdown(server *http.Server, dbClient *db.Client, redisClient *redis.Client) error {
	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var errs error
	if err := server.Shutdown(graceCtx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := dbClient.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := redisClient.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}
