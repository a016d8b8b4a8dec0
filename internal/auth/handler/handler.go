package handler

import (
	"context"
	"errors"
	"net/http"

	"portal_context_backend/internal/auth/adapter"
	"portal_context_backend/internal/auth/service"
	"portal_context_backend/internal/auth/transport"
	"portal_context_backend/internal/tenancy/engine"
	"portal_context_backend/internal/tenancy/ports"
	"portal_context_backend/platform/apperr"
	"portal_context_backend/platform/config"
	"portal_context_backend/platform/httpkit"
	"portal_context_backend/platform/logger"
	"portal_context_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgNoSession        = "not signed in"
)

// Engines hands out the context engine of a browser session. Sign-in and
// sign-out go through the engine so it observes the resulting events.
type Engines interface {
	Engine(ctx context.Context, browserSessionID string) (*engine.Engine, error)
	Drop(browserSessionID string)
}

type Handler struct {
	engines Engines
	sources *adapter.IdentitySources
	cookie  config.SessionConfig
	val     *validator.Validator
	log     *logger.Logger
}

func New(engines Engines, sources *adapter.IdentitySources, cookie config.SessionConfig, val *validator.Validator, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{engines: engines, sources: sources, cookie: cookie, val: val, log: log}
}

// SetEngines injects the engine registry after construction (breaks the
// circular dependency with the tenancy module, which needs the sources).
func (h *Handler) SetEngines(engines Engines) {
	h.engines = engines
}

// RegisterRoutes mounts the session routes. signInLimit guards the
// credential check.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, signInLimit gin.HandlerFunc) {
	rg.POST("/sign-in", signInLimit, h.SignIn)
	rg.POST("/sign-out", h.SignOut)
	rg.POST("/refresh", h.Refresh)
	rg.GET("/session", h.GetSession)
	rg.DELETE("/browser-session", h.EndBrowserSession)
}

// SignIn authenticates the browser session.
// POST /api/v1/auth/sign-in
func (h *Handler) SignIn(c *gin.Context) {
	var req transport.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	bsid, e, ok := h.engine(c)
	if !ok {
		return
	}
	if err := e.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpkit.HandleError(c, apperr.Unauthorized(err.Error()))
			return
		}
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "sign in unavailable", err))
		return
	}

	h.respondSession(c, bsid)
}

// SignOut ends the browser session's sign-in. The context is cleared even
// when revoking the refresh token fails.
// POST /api/v1/auth/sign-out
func (h *Handler) SignOut(c *gin.Context) {
	_, e, ok := h.engine(c)
	if !ok {
		return
	}
	if err := e.SignOut(c.Request.Context()); err != nil {
		h.log.WithContext(c.Request.Context()).Warn("sign out incomplete", "error", err)
	}
	httpkit.OK(c, transport.MessageResponse{Message: "signed out"})
}

// Refresh rotates the session's tokens. The context re-resolves on the
// resulting TOKEN_REFRESHED event.
// POST /api/v1/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	bsid, _, ok := h.engine(c)
	if !ok {
		return
	}
	sess, err := h.sources.Source(bsid).RefreshSession(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "refresh unavailable", err))
		return
	}
	if sess == nil {
		httpkit.HandleError(c, apperr.Unauthorized(msgNoSession))
		return
	}
	httpkit.OK(c, toSessionResponse(sess))
}

// EndBrowserSession signs out, releases everything held for the browser
// session and expires its cookie. The next request starts a fresh session.
// DELETE /api/v1/auth/browser-session
func (h *Handler) EndBrowserSession(c *gin.Context) {
	bsid, e, ok := h.engine(c)
	if !ok {
		return
	}
	if err := e.SignOut(c.Request.Context()); err != nil {
		h.log.WithContext(c.Request.Context()).Warn("sign out incomplete", "error", err)
	}
	h.engines.Drop(bsid)
	httpkit.ClearBrowserSession(c, h.cookie)
	httpkit.OK(c, transport.MessageResponse{Message: "session ended"})
}

// GetSession returns the signed-in identity of the browser session.
// GET /api/v1/auth/session
func (h *Handler) GetSession(c *gin.Context) {
	bsid, ok := httpkit.GetBrowserSession(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("browser session required"))
		return
	}
	h.respondSession(c, bsid)
}

func (h *Handler) respondSession(c *gin.Context, bsid string) {
	sess, err := h.sources.Source(bsid).CurrentSession(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "session unavailable", err))
		return
	}
	if sess == nil {
		httpkit.HandleError(c, apperr.Unauthorized(msgNoSession))
		return
	}
	httpkit.OK(c, toSessionResponse(sess))
}

func (h *Handler) engine(c *gin.Context) (string, *engine.Engine, bool) {
	bsid, ok := httpkit.GetBrowserSession(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("browser session required"))
		return "", nil, false
	}
	e, err := h.engines.Engine(c.Request.Context(), bsid)
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "context unavailable", err))
		return "", nil, false
	}
	return bsid, e, true
}

func toSessionResponse(s *ports.Session) transport.SessionResponse {
	return transport.SessionResponse{
		IdentityID: s.Identity.ID.String(),
		Email:      s.Identity.Email,
		ExpiresAt:  s.ExpiresAt,
	}
}
