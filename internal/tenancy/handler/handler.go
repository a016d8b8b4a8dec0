package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/engine"
	"portal_context_backend/internal/tenancy/transport"
	"portal_context_backend/platform/apperr"
	"portal_context_backend/platform/httpkit"
	"portal_context_backend/platform/logger"
	"portal_context_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgUnauthenticated  = "not signed in"
	msgStillLoading     = "context is still loading"

	msgSessionCheckFailed = "session check failed, retry"

	defaultSettleTimeout = 10 * time.Second
	streamKeepAlive      = 25 * time.Second
)

// Engines hands out the context engine of a browser session.
type Engines interface {
	Engine(ctx context.Context, browserSessionID string) (*engine.Engine, error)
}

// Directory answers the lookups the HTTP surface needs beyond the engine.
type Directory interface {
	GetUserRecord(ctx context.Context, identityID uuid.UUID) (domain.UserRecord, error)
	ListCompanies(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Company, error)
	ListIdentitiesByCompany(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
}

// Invalidator schedules a context refresh for an identity.
type Invalidator interface {
	Invalidate(ctx context.Context, identityID uuid.UUID, reason string) error
}

// Handler serves the tenancy context of the caller's browser session.
type Handler struct {
	engines       Engines
	directory     Directory
	invalidator   Invalidator
	val           *validator.Validator
	log           *logger.Logger
	settleTimeout time.Duration
}

// New creates a tenancy handler. settleTimeout bounds how long a request
// waits for an in-flight resolution.
func New(engines Engines, directory Directory, invalidator Invalidator, val *validator.Validator, log *logger.Logger, settleTimeout time.Duration) *Handler {
	if settleTimeout <= 0 {
		settleTimeout = defaultSettleTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		engines:       engines,
		directory:     directory,
		invalidator:   invalidator,
		val:           val,
		log:           log,
		settleTimeout: settleTimeout,
	}
}

// RegisterRoutes mounts the context routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.GetContext)
	rg.POST("/company", h.SelectCompany)
	rg.POST("/refresh", h.Refresh)
	rg.GET("/companies", h.ListCompanies)
	rg.GET("/roles/:role", h.HasRole)
	rg.GET("/authorization", h.Authorization)
	rg.GET("/events", h.Events)
}

// GetContext returns the caller's context. By default it waits for an
// in-flight resolution; ?wait=false returns the loading snapshot instead.
// GET /api/v1/context
func (h *Handler) GetContext(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	if c.Query("wait") == "false" {
		httpkit.OK(c, toContextResponse(e.Snapshot()))
		return
	}
	snap, _ := h.settle(c, e)
	httpkit.OK(c, toContextResponse(snap))
}

// SelectCompany switches the active company. An id that is not an active
// membership leaves the context unchanged and reports applied=false.
// POST /api/v1/context/company
func (h *Handler) SelectCompany(c *gin.Context) {
	var req transport.SelectCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}
	companyID := uuid.MustParse(req.CompanyID)

	e, ok := h.engine(c)
	if !ok {
		return
	}
	snap, ok := h.settledAuthenticated(c, e)
	if !ok {
		return
	}

	applied := e.SelectCompany(c.Request.Context(), companyID)
	if applied {
		snap = e.Snapshot()
	} else {
		h.log.WithContext(c.Request.Context()).Debug("company selection ignored",
			"company_id", companyID.String(), "reason", domain.ErrInvalidCompanySelection.Error())
	}
	httpkit.OK(c, transport.SelectCompanyResponse{Applied: applied, Context: toContextResponse(snap)})
}

// Refresh re-resolves the caller's context and returns the result.
// POST /api/v1/context/refresh
func (h *Handler) Refresh(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.settleTimeout)
	defer cancel()
	httpkit.OK(c, toContextResponse(e.Refresh(ctx)))
}

// ListCompanies returns the directory entries of the caller's active
// memberships, in membership order.
// GET /api/v1/context/companies
func (h *Handler) ListCompanies(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	snap, ok := h.settledAuthenticated(c, e)
	if !ok {
		return
	}
	if snap.TenantID == nil || len(snap.Memberships) == 0 {
		httpkit.OK(c, transport.CompanyListResponse{Items: []transport.CompanyResponse{}})
		return
	}

	ids := make([]uuid.UUID, 0, len(snap.Memberships))
	for _, m := range snap.Memberships {
		ids = append(ids, m.CompanyID)
	}
	companies, err := h.directory.ListCompanies(c.Request.Context(), *snap.TenantID, ids)
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "company directory unavailable", err))
		return
	}
	httpkit.OK(c, toCompanyList(snap, companies))
}

// HasRole reports whether the caller holds a role.
// GET /api/v1/context/roles/:role
func (h *Handler) HasRole(c *gin.Context) {
	role := domain.RoleName(c.Param("role"))
	if !role.Valid() {
		httpkit.Error(c, http.StatusBadRequest, "unknown role", nil)
		return
	}
	e, ok := h.engine(c)
	if !ok {
		return
	}
	snap, _ := h.settle(c, e)
	httpkit.OK(c, transport.HasRoleResponse{Role: string(role), HasRole: snap.HasRole(role)})
}

// Authorization returns the caller's administrative flags.
// GET /api/v1/context/authorization
func (h *Handler) Authorization(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	snap, _ := h.settle(c, e)
	httpkit.OK(c, transport.AuthorizationResponse{
		IsSuperAdmin:  snap.IsSuperAdmin(),
		IsTenantAdmin: snap.IsTenantAdmin(),
		Roles:         snap.RoleNames(),
	})
}

// Events streams every context change as a server-sent "context" event,
// starting with the current snapshot.
// GET /api/v1/context/events
func (h *Handler) Events(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	updates, cancel := e.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("context", toContextResponse(snap))
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", "")
			return true
		}
	})
}

// Invalidate schedules a refresh of every live context of one identity, or
// of every identity with a membership in a company. Tenant admins are
// limited to their own tenant.
// POST /api/v1/admin/context/invalidate
func (h *Handler) Invalidate(c *gin.Context) {
	var req transport.InvalidateContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}
	caller, ok := ContextFrom(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized(msgUnauthenticated))
		return
	}

	ctx := c.Request.Context()
	targets, err := h.invalidationTargets(ctx, caller, req)
	if httpkit.HandleError(c, err) {
		return
	}

	for _, identityID := range targets {
		if err := h.invalidator.Invalidate(ctx, identityID, req.Reason); err != nil {
			httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "could not schedule context refresh", err))
			return
		}
	}
	httpkit.Accepted(c, transport.InvalidateContextResponse{Queued: len(targets)})
}

func (h *Handler) invalidationTargets(ctx context.Context, caller domain.Snapshot, req transport.InvalidateContextRequest) ([]uuid.UUID, error) {
	superAdmin := caller.IsSuperAdmin()

	if req.IdentityID != "" {
		identityID := uuid.MustParse(req.IdentityID)
		if superAdmin {
			return []uuid.UUID{identityID}, nil
		}
		rec, err := h.directory.GetUserRecord(ctx, identityID)
		if errors.Is(err, domain.ErrUserRecordNotFound) {
			return nil, apperr.NotFound("identity not found")
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "user directory unavailable", err)
		}
		if caller.TenantID == nil || rec.TenantID != *caller.TenantID {
			return nil, apperr.NotFound("identity not found")
		}
		return []uuid.UUID{identityID}, nil
	}

	companyID := uuid.MustParse(req.CompanyID)
	if !superAdmin {
		if caller.TenantID == nil {
			return nil, apperr.NotFound("company not found")
		}
		companies, err := h.directory.ListCompanies(ctx, *caller.TenantID, []uuid.UUID{companyID})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "company directory unavailable", err)
		}
		if len(companies) == 0 {
			return nil, apperr.NotFound("company not found")
		}
	}
	ids, err := h.directory.ListIdentitiesByCompany(ctx, companyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "membership directory unavailable", err)
	}
	return ids, nil
}

func (h *Handler) engine(c *gin.Context) (*engine.Engine, bool) {
	bsid, ok := httpkit.GetBrowserSession(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("browser session required"))
		return nil, false
	}
	e, err := h.engines.Engine(c.Request.Context(), bsid)
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "context unavailable", err))
		return nil, false
	}
	return e, true
}

// settle waits up to settleTimeout for the context to stop loading. It
// reports false if the context was still loading when the wait ended.
func (h *Handler) settle(c *gin.Context, e *engine.Engine) (domain.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.settleTimeout)
	defer cancel()
	snap, err := e.Settled(ctx)
	return snap, err == nil
}

func (h *Handler) settledAuthenticated(c *gin.Context, e *engine.Engine) (domain.Snapshot, bool) {
	snap, ok := h.settle(c, e)
	if !ok {
		httpkit.HandleError(c, apperr.Unavailable(msgStillLoading))
		return snap, false
	}
	if !snap.Authenticated() {
		if snap.State == domain.StatePartial {
			httpkit.HandleError(c, apperr.Unavailable(msgSessionCheckFailed))
			return snap, false
		}
		httpkit.HandleError(c, apperr.Unauthorized(msgUnauthenticated))
		return snap, false
	}
	return snap, true
}
