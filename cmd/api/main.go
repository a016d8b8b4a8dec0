package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal_context_backend/internal/auth"
	"portal_context_backend/internal/auth/session"
	"portal_context_backend/internal/events"
	apphttp "portal_context_backend/internal/http"
	"portal_context_backend/internal/http/router"
	"portal_context_backend/internal/scheduler"
	"portal_context_backend/internal/tenancy"
	"portal_context_backend/platform/config"
	"portal_context_backend/platform/db"
	"portal_context_backend/platform/logger"
	platformredis "portal_context_backend/platform/redis"
	"portal_context_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	health := []apphttp.HealthChecker{pool}

	rdb, closeRedis := initRedis(ctx, cfg, log)
	if closeRedis != nil {
		defer closeRedis()
		health = append(health, platformredis.NewHealthChecker(rdb))
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	refreshScheduler, closeScheduler := initRefreshScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	var sessionStore session.Store
	var memSessions *session.MemoryStore
	var sharedRedis goredis.UniversalClient
	if rdb != nil {
		sessionStore = session.NewRedisStore(rdb, cfg.GetSessionIdleTTL())
		sharedRedis = rdb
	} else {
		memSessions = session.NewMemoryStore(cfg.GetSessionIdleTTL())
		sessionStore = memSessions
	}

	authModule, err := auth.NewModule(pool, cfg, eventBus, sessionStore, val, log)
	if err != nil {
		log.Error("failed to initialize auth module", "error", err)
		panic("failed to initialize auth module: " + err.Error())
	}

	tenancyModule := tenancy.NewModule(pool, authModule.Sources(), sharedRedis, refreshScheduler, eventBus, val, cfg, log)
	defer tenancyModule.Close()

	// Sign-in and sign-out run through the browser session's engine (breaks circular dependency)
	authModule.SetEngines(tenancyModule.Manager())
	if memSessions != nil {
		tenancyModule.Manager().RegisterExpirer(memSessions)
	}

	go func() {
		if err := tenancyModule.Run(ctx); err != nil {
			log.Error("tenancy background work stopped", "error", err)
		}
	}()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:         cfg,
		Logger:         log,
		Health:         health,
		EventBus:       eventBus,
		AuthMiddleware: tenancyModule.AuthMiddleware(),
		Modules: []apphttp.Module{
			authModule,
			tenancyModule,
		},
	}

	engine := router.New(app)

	// No WriteTimeout: the context event stream is long-lived.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*goredis.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; sessions and company selection are kept in memory and invalidation stays in process")
		return nil, nil
	}

	var client *goredis.Client
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		c, err := platformredis.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		client = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	log.Info("redis connection established")

	return client, func() {
		_ = client.Close()
	}
}

func initRefreshScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.ContextRefreshScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize context refresh scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
