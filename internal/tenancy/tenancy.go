// Package tenancy provides the tenant/session context bounded context.
// This file defines the public API of the context: other domains import the
// types and middleware exposed here, never the subpackages.
package tenancy

import (
	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/handler"
	"portal_context_backend/internal/tenancy/ports"

	"github.com/gin-gonic/gin"
)

type (
	// Snapshot is the read-only context of one browser session.
	Snapshot          = domain.Snapshot
	State             = domain.State
	Identity          = domain.Identity
	UserRecord        = domain.UserRecord
	CompanyMembership = domain.CompanyMembership
	Company           = domain.Company
	Role              = domain.Role
	RoleName          = domain.RoleName
	FetchError        = domain.FetchError

	IdentitySource = ports.IdentitySource
	ContextStore   = ports.ContextStore
	SelectionStore = ports.SelectionStore
	Session        = ports.Session
	AuthEvent      = ports.AuthEvent
)

const (
	StateUnauthenticated = domain.StateUnauthenticated
	StateResolving       = domain.StateResolving
	StateReady           = domain.StateReady
	StatePartial         = domain.StatePartial

	RoleSuperAdmin  = domain.RoleSuperAdmin
	RoleTenantAdmin = domain.RoleTenantAdmin
	RoleManager     = domain.RoleManager
	RoleOperator    = domain.RoleOperator
	RoleViewer      = domain.RoleViewer
)

var (
	ErrIdentityUnavailable     = domain.ErrIdentityUnavailable
	ErrUserRecordNotFound      = domain.ErrUserRecordNotFound
	ErrInvalidCompanySelection = domain.ErrInvalidCompanySelection
)

// FromGin returns the context resolved for the request by the module's
// authentication middleware.
func FromGin(c *gin.Context) (Snapshot, bool) {
	return handler.ContextFrom(c)
}

// RequireActiveCompany rejects requests made while no company is active. It
// must be mounted on routes behind the authentication middleware.
func RequireActiveCompany() gin.HandlerFunc {
	return handler.RequireActiveCompany()
}
