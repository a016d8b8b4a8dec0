// Package tenancy provides the tenant/session context bounded context.
// This file defines the module that encapsulates all tenancy setup and route registration.
package tenancy

import (
	"context"
	"time"

	"portal_context_backend/internal/events"
	apphttp "portal_context_backend/internal/http"
	"portal_context_backend/internal/tenancy/audit"
	"portal_context_backend/internal/tenancy/handler"
	"portal_context_backend/internal/tenancy/invalidation"
	"portal_context_backend/internal/tenancy/manager"
	"portal_context_backend/internal/tenancy/repository"
	"portal_context_backend/internal/tenancy/selection"
	"portal_context_backend/platform/config"
	"portal_context_backend/platform/logger"
	"portal_context_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const listenerRetryDelay = 2 * time.Second

// ModuleConfig combines the settings the tenancy module needs.
type ModuleConfig interface {
	config.TenancyConfig
	config.SessionConfig
}

// Module is the tenancy bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	manager  *manager.Manager
	listener *invalidation.Listener
	log      *logger.Logger
}

// NewModule creates and initializes the tenancy module.
//
// rdb is optional. With Redis the company selection survives restarts and
// invalidations published by any instance reach this one; without it both
// stay in process. invalidator is optional as well and defaults to refreshing
// this instance directly.
func NewModule(
	pool *pgxpool.Pool,
	sources manager.IdentitySources,
	rdb redis.UniversalClient,
	invalidator handler.Invalidator,
	eventBus events.Bus,
	val *validator.Validator,
	cfg ModuleConfig,
	log *logger.Logger,
) *Module {
	if log == nil {
		log = logger.Discard()
	}

	repo := repository.New(pool)

	if eventBus != nil {
		audit.NewTrail(log).RegisterHandlers(eventBus)
	}

	var selections selection.Provider
	var memSelections *selection.MemoryProvider
	if rdb != nil {
		selections = selection.NewRedisProvider(rdb, cfg.GetSessionIdleTTL())
	} else {
		memSelections = selection.NewMemoryProvider(cfg.GetSessionIdleTTL())
		selections = memSelections
	}

	mgr := manager.New(sources, repo, selections, eventBus, log, manager.Config{
		IdleTTL:        cfg.GetEngineIdleTTL(),
		SweepInterval:  cfg.GetEngineSweepInterval(),
		ResolveTimeout: cfg.GetResolveTimeout(),
	})
	if memSelections != nil {
		mgr.RegisterExpirer(memSelections)
	}

	if invalidator == nil {
		invalidator = invalidation.NewLocalNotifier(mgr, eventBus)
	}

	var listener *invalidation.Listener
	if rdb != nil {
		listener = invalidation.NewListener(rdb, mgr, eventBus, log)
	}

	return &Module{
		handler:  handler.New(mgr, repo, invalidator, val, log, cfg.GetResolveTimeout()),
		manager:  mgr,
		listener: listener,
		log:      log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tenancy"
}

// Manager returns the engine registry. The auth module routes sign-in and
// sign-out through it.
func (m *Module) Manager() *manager.Manager {
	return m.manager
}

// AuthMiddleware resolves the caller's context and rejects requests that are
// not signed in. It populates httpkit.GetIdentity for downstream handlers.
func (m *Module) AuthMiddleware() gin.HandlerFunc {
	return m.handler.RequireContext()
}

// RegisterRoutes mounts tenancy routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/context"))

	// Admin routes
	ctx.Admin.POST("/context/invalidate", m.handler.Invalidate)
}

// Run evicts idle engines and, with Redis, applies invalidations from other
// instances until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.manager.Run(gctx)
		return nil
	})
	if m.listener != nil {
		g.Go(func() error {
			m.runListener(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (m *Module) runListener(ctx context.Context) {
	for {
		err := m.listener.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.log.Warn("context invalidation listener stopped, retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenerRetryDelay):
		}
	}
}

// Close shuts down every engine.
func (m *Module) Close() {
	m.manager.Close()
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
