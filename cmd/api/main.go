// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/rti-cashflowops/internal/account"
	"github.com/carterperez-dev/rti-cashflowops/internal/admin"
	"github.com/carterperez-dev/rti-cashflowops/internal/alert"
	"github.com/carterperez-dev/rti-cashflowops/internal/auth"
	"github.com/carterperez-dev/rti-cashflowops/internal/avatar"
	"github.com/carterperez-dev/rti-cashflowops/internal/billing"
	"github.com/carterperez-dev/rti-cashflowops/internal/config"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
	"github.com/carterperez-dev/rti-cashflowops/internal/event"
	"github.com/carterperez-dev/rti-cashflowops/internal/health"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
	"github.com/carterperez-dev/rti-cashflowops/internal/realtime"
	"github.com/carterperez-dev/rti-cashflowops/internal/server"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	generateKeys := flag.Bool("generate-keys", false, "write a new ES256 key pair to the configured paths and exit")
	flag.Parse()

	if err := run(*configPath, *generateKeys); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string, generateKeys bool) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	if generateKeys {
		if err := auth.GenerateKeyPair(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath); err != nil {
			return err
		}
		logger.Info("key pair written",
			"private_key", cfg.JWT.PrivateKeyPath,
			"public_key", cfg.JWT.PublicKeyPath,
		)
		return nil
	}

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	telemetry, err := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Warn("failed to initialize telemetry", "error", err)
		telemetry = &core.Telemetry{}
	}
	if telemetry.Enabled() {
		logger.Info("OpenTelemetry tracer initialized",
			"endpoint", cfg.Otel.Endpoint,
		)
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	avatars, err := avatar.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	logger.Info("avatar storage ready", "driver", cfg.Storage.Driver)

	workers, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	bus, err := newEventBus(workers, cfg.Events, redis, logger)
	if err != nil {
		return err
	}

	accountRepo := account.NewRepository(db.DB)
	accountSvc := account.NewService(accountRepo, avatars, cfg.Auth.MinPasswordLength)

	authSvc := auth.NewService(jwtManager, accountSvc, redis.Client, cfg.Auth.MinPasswordLength)
	authHandler := auth.NewHandler(authSvc)

	entitlements := entitlement.NewService(accountSvc)
	accountHandler := account.NewHandler(accountSvc, entitlements, cfg.Entitlement.FreeUserLimit)

	alertSvc := alert.NewService(alert.NewRepository(db.DB), bus)
	alertHandler := alert.NewHandler(alertSvc, entitlements, cfg.Entitlement.FreeAlertLimit)

	hub := realtime.NewHub(bus)
	go hub.Run(workers)
	realtimeHandler := realtime.NewHandler(hub, authSvc, cfg.CORS.AllowedOrigins)

	sweeper := entitlement.NewSweeper(accountSvc, cfg.Entitlement.SweepInterval, logger)
	go sweeper.Run(workers)

	healthHandler := health.NewHandler(cfg.App.Version,
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:     db.Stats,
		RedisStats:  redis.PoolStats,
		DBPing:      db.Ping,
		RedisPing:   redis.Ping,
		Tiers:       accountSvc,
		LiveClients: hub.ClientCount,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recoverer)
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerWindow(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
				cfg.RateLimit.Window,
			),
			FailOpen:   true,
			BypassFunc: isProbe,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	if local, ok := avatars.(*avatar.LocalStorage); ok && local.MountPath() != "" {
		router.Get(local.MountPath(), local.FileServer().ServeHTTP)
	}

	tiered := middleware.TieredRateLimiter(redis.Client, middleware.DefaultTiers)
	authenticate := middleware.Authenticator(authSvc)
	authenticator := func(next http.Handler) http.Handler {
		return authenticate(tiered(next))
	}
	adminOnly := middleware.RequireAdmin

	credentialLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit:    middleware.PerWindow(10, 5, time.Minute),
		KeyFunc:  middleware.KeyByUserAndEndpoint,
		FailOpen: true,
	}).Handler

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, credentialLimiter)

		accountHandler.RegisterRoutes(r, authenticator)
		accountHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		alertHandler.RegisterRoutes(r, authenticator, adminOnly)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
		realtimeHandler.RegisterRoutes(r)

		if cfg.Billing.WebhookSecret != "" {
			billingHandler, err := billing.NewHandler(accountSvc, cfg.Billing)
			if err != nil {
				logger.Error("billing webhook disabled", "error", err)
				return
			}
			billingHandler.RegisterRoutes(r)
		}
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	cancelWorkers()

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// newEventBus starts the redis relay before returning so events published
// during startup are not missed by other instances.
func newEventBus(
	ctx context.Context,
	cfg config.EventsConfig,
	redis *core.Redis,
	logger *slog.Logger,
) (event.Bus, error) {
	switch cfg.Driver {
	case config.EventsMemory, "":
		return event.NewInMemoryBus(), nil

	case config.EventsRedis:
		bus := event.NewRedisBus(redis.Client, cfg.RedisChannel)
		ready := make(chan struct{})
		failed := make(chan error, 1)
		go func() {
			err := bus.Run(ctx, ready)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event relay stopped", "error", err)
			}
			failed <- err
		}()

		select {
		case <-ready:
		case err := <-failed:
			return nil, fmt.Errorf("event relay: %w", err)
		case <-time.After(5 * time.Second):
			return nil, fmt.Errorf("event relay: subscribe timed out")
		}

		logger.Info("event bus relaying through redis", "channel", cfg.RedisChannel)
		return bus, nil
	}

	return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
}

func isProbe(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/livez", "/readyz":
		return true
	}
	return false
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
