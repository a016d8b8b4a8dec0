package handler

import (
	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/platform/apperr"
	"portal_context_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const contextSnapshotKey = "tenancyContext"

// RequireContext resolves the caller's context and rejects the request
// unless it is settled and signed in. The identity, tenant, active company
// and roles are then available through httpkit.GetIdentity, and the full
// snapshot through ContextFrom.
func (h *Handler) RequireContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := h.engine(c)
		if !ok {
			c.Abort()
			return
		}
		snap, ok := h.settledAuthenticated(c, e)
		if !ok {
			c.Abort()
			return
		}

		httpkit.SetIdentity(c, snap.Identity.ID, snap.TenantID, snap.ActiveCompanyID, snap.RoleNames())
		c.Set(contextSnapshotKey, snap)
		c.Next()
	}
}

// RequireActiveCompany must run after RequireContext. It rejects requests
// made while no company is active, so company-scoped handlers can rely on
// httpkit.GetIdentity(c).CompanyID().
func RequireActiveCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := ContextFrom(c)
		if !ok {
			httpkit.HandleError(c, apperr.Unauthorized(msgUnauthenticated))
			c.Abort()
			return
		}
		if snap.ActiveCompanyID == nil {
			httpkit.HandleError(c, apperr.Conflict("no active company"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ContextFrom returns the snapshot stored by RequireContext.
func ContextFrom(c *gin.Context) (domain.Snapshot, bool) {
	v, ok := c.Get(contextSnapshotKey)
	if !ok {
		return domain.Snapshot{}, false
	}
	snap, ok := v.(domain.Snapshot)
	return snap, ok
}
