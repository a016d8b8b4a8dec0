package domain

import "github.com/google/uuid"

// RoleName is one of the application roles.
type RoleName string

const (
	RoleSuperAdmin  RoleName = "super_admin"
	RoleTenantAdmin RoleName = "tenant_admin"
	RoleManager     RoleName = "manager"
	RoleOperator    RoleName = "operator"
	RoleViewer      RoleName = "viewer"
)

var knownRoles = map[RoleName]bool{
	RoleSuperAdmin:  true,
	RoleTenantAdmin: true,
	RoleManager:     true,
	RoleOperator:    true,
	RoleViewer:      true,
}

// Valid reports whether r is a known role.
func (r RoleName) Valid() bool {
	return knownRoles[r]
}

// Role is an assignment of a role to an identity. A nil CompanyID means the
// role applies tenant-wide.
type Role struct {
	ID        uuid.UUID  `json:"id"`
	Name      RoleName   `json:"name"`
	TenantID  uuid.UUID  `json:"tenantId"`
	CompanyID *uuid.UUID `json:"companyId,omitempty"`
}

func hasRole(roles []Role, name RoleName) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
