// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the caller as resolved for the current request.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access user information without depending on Gin.
type Identity interface {
	// IdentityID returns the authenticated identity's ID.
	IdentityID() uuid.UUID
	// TenantID returns the resolved tenant, if any.
	TenantID() *uuid.UUID
	// CompanyID returns the active company, if any.
	CompanyID() *uuid.UUID
	// Roles returns the identity's role names.
	Roles() []string
	// HasRole checks if the identity holds a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the caller is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	identityID    uuid.UUID
	tenantID      *uuid.UUID
	companyID     *uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) IdentityID() uuid.UUID { return i.identityID }
func (i *identity) TenantID() *uuid.UUID  { return i.tenantID }
func (i *identity) CompanyID() *uuid.UUID { return i.companyID }
func (i *identity) Roles() []string       { return i.roles }
func (i *identity) IsAuthenticated() bool { return i.authenticated }

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

// SetIdentity stores the resolved caller on the gin context.
func SetIdentity(c *gin.Context, identityID uuid.UUID, tenantID, companyID *uuid.UUID, roles []string) {
	c.Set(ContextIdentityIDKey, identityID)
	c.Set(ContextRolesKey, roles)
	if tenantID != nil {
		c.Set(ContextTenantIDKey, *tenantID)
	}
	if companyID != nil {
		c.Set(ContextCompanyIDKey, *companyID)
	}
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if no caller was resolved.
func GetIdentity(c *gin.Context) Identity {
	raw, ok := c.Get(ContextIdentityIDKey)
	if !ok {
		return &identity{}
	}
	id, ok := raw.(uuid.UUID)
	if !ok {
		return &identity{}
	}

	out := &identity{identityID: id, authenticated: true}
	if roles, ok := c.Get(ContextRolesKey); ok {
		out.roles, _ = roles.([]string)
	}
	if v, ok := c.Get(ContextTenantIDKey); ok {
		if tid, ok := v.(uuid.UUID); ok {
			out.tenantID = &tid
		}
	}
	if v, ok := c.Get(ContextCompanyIDKey); ok {
		if cid, ok := v.(uuid.UUID); ok {
			out.companyID = &cid
		}
	}
	return out
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the caller is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		abortUnauthorized(c)
		return nil
	}
	return id
}
