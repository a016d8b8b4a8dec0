// Package auth provides the authentication bounded context module.
// This file defines the module that encapsulates all auth setup and route registration.
package auth

import (
	"portal_context_backend/internal/auth/adapter"
	"portal_context_backend/internal/auth/handler"
	"portal_context_backend/internal/auth/repository"
	"portal_context_backend/internal/auth/service"
	"portal_context_backend/internal/auth/session"
	authvalidator "portal_context_backend/internal/auth/validator"
	"portal_context_backend/internal/events"
	apphttp "portal_context_backend/internal/http"
	"portal_context_backend/platform/config"
	"portal_context_backend/platform/logger"
	"portal_context_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig combines the settings the auth module needs.
type ModuleConfig interface {
	config.AuthServiceConfig
	config.SessionConfig
}

// Module is the auth bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	sources *adapter.IdentitySources
}

// NewModule creates and initializes the auth module with all its dependencies.
// The engine registry is injected later through SetEngines.
func NewModule(pool *pgxpool.Pool, cfg ModuleConfig, eventBus events.Bus, store session.Store, val *validator.Validator, log *logger.Logger) (*Module, error) {
	if err := authvalidator.Register(val); err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	svc := service.New(repo, cfg, eventBus, log)
	sources := adapter.NewIdentitySources(svc, store, log)
	h := handler.New(nil, sources, cfg, val, log)

	return &Module{
		handler: h,
		sources: sources,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// Sources returns the per-browser-session identity sources consumed by the
// tenancy engine registry.
func (m *Module) Sources() *adapter.IdentitySources {
	return m.sources
}

// SetEngines wires the tenancy engine registry into the session routes.
func (m *Module) SetEngines(engines handler.Engines) {
	m.handler.SetEngines(engines)
}

// RegisterRoutes mounts auth routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/auth"), ctx.AuthRateLimiter.RateLimit())
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
