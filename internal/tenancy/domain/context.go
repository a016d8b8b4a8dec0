// Package domain provides the core types and rules of the tenancy bounded
// context: who the caller is, which tenant they belong to, which companies
// they may act for and which one is currently active.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// State is the lifecycle state of a resolved context.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateResolving       State = "resolving"
	StateReady           State = "ready"
	StatePartial         State = "error_partial"
)

// FetchTarget names the lookup that failed during resolution.
type FetchTarget string

const (
	TargetUserRecord  FetchTarget = "user_record"
	TargetMemberships FetchTarget = "memberships"
	TargetRoles       FetchTarget = "roles"
	// TargetSession marks a failed initial session check. The context has no
	// identity yet and is retried on the next request.
	TargetSession     FetchTarget = "session"
)

var (
	// ErrIdentityUnavailable means there is no usable session. It describes a
	// state, not a failure.
	ErrIdentityUnavailable = errors.New("identity unavailable")
	// ErrUserRecordNotFound is returned by a ContextStore when no user record
	// exists for an identity.
	ErrUserRecordNotFound = errors.New("user record not found")
	// ErrInvalidCompanySelection marks a rejected company switch. It is never
	// returned to callers of SelectCompany; handlers use it for responses.
	ErrInvalidCompanySelection = errors.New("invalid company selection")
)

// FetchError wraps a failed lookup during resolution.
type FetchError struct {
	Target FetchTarget
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Target, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Identity is the authentication handle issued by the identity source.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// UserRecord is the tenant-scoped profile of an identity.
type UserRecord struct {
	ID          uuid.UUID  `json:"id"`
	IdentityID  uuid.UUID  `json:"identityId"`
	TenantID    uuid.UUID  `json:"tenantId"`
	CompanyID   *uuid.UUID `json:"companyId,omitempty"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email"`
	Phone       *string    `json:"phone,omitempty"`
	JobTitle    *string    `json:"jobTitle,omitempty"`
	AvatarURL   *string    `json:"avatarUrl,omitempty"`
	Status      string     `json:"status"`
}

// CompanyMembership links a user record to one operational company.
type CompanyMembership struct {
	ID           uuid.UUID `json:"id"`
	UserRecordID uuid.UUID `json:"userRecordId"`
	CompanyID    uuid.UUID `json:"companyId"`
	TenantID     uuid.UUID `json:"tenantId"`
	IsDefault    bool      `json:"isDefault"`
	Active       bool      `json:"active"`
}

// Company is the directory entry shown when choosing a company.
type Company struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	TradeName string    `json:"tradeName"`
	LegalName string    `json:"legalName"`
	TaxID     *string   `json:"taxId,omitempty"`
	Status    string    `json:"status"`
}

// PartialFailure records one lookup that degraded the context.
type PartialFailure struct {
	Target  FetchTarget `json:"target"`
	Message string      `json:"message"`
}

// Snapshot is a read-only copy of the resolved context. It carries no
// timestamps or attempt counters so that two resolutions over unchanged
// data compare equal.
type Snapshot struct {
	State           State               `json:"state"`
	Loading         bool                `json:"loading"`
	Identity        *Identity           `json:"identity"`
	UserRecord      *UserRecord         `json:"userRecord"`
	TenantID        *uuid.UUID          `json:"tenantId"`
	Roles           []Role              `json:"roles"`
	Memberships     []CompanyMembership `json:"memberships"`
	ActiveCompanyID *uuid.UUID          `json:"activeCompanyId"`
	Failures        []PartialFailure    `json:"failures,omitempty"`
}

// Empty returns the unauthenticated snapshot.
func Empty() Snapshot {
	return Snapshot{
		State:       StateUnauthenticated,
		Roles:       []Role{},
		Memberships: []CompanyMembership{},
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.UserRecord != nil {
		ur := s.UserRecord.clone()
		out.UserRecord = &ur
	}
	out.TenantID = cloneID(s.TenantID)
	out.ActiveCompanyID = cloneID(s.ActiveCompanyID)

	out.Roles = make([]Role, len(s.Roles))
	for i, r := range s.Roles {
		out.Roles[i] = r
		out.Roles[i].CompanyID = cloneID(r.CompanyID)
	}
	out.Memberships = make([]CompanyMembership, len(s.Memberships))
	copy(out.Memberships, s.Memberships)
	if s.Failures != nil {
		out.Failures = make([]PartialFailure, len(s.Failures))
		copy(out.Failures, s.Failures)
	}
	return out
}

// Authenticated reports whether the snapshot belongs to a signed-in identity.
func (s Snapshot) Authenticated() bool {
	return s.Identity != nil
}

// HasMembership reports whether companyID is among the active memberships.
func (s Snapshot) HasMembership(companyID uuid.UUID) bool {
	return hasActiveMembership(s.Memberships, companyID)
}

// HasRole reports whether any role carries name, regardless of company scope.
func (s Snapshot) HasRole(name RoleName) bool {
	return hasRole(s.Roles, name)
}

// IsSuperAdmin reports whether the snapshot holds super_admin.
func (s Snapshot) IsSuperAdmin() bool {
	return s.HasRole(RoleSuperAdmin)
}

// IsTenantAdmin reports whether the snapshot holds tenant_admin or super_admin.
func (s Snapshot) IsTenantAdmin() bool {
	return s.HasRole(RoleTenantAdmin) || s.IsSuperAdmin()
}

// RoleNames lists the distinct role names in first-seen order.
func (s Snapshot) RoleNames() []string {
	seen := make(map[RoleName]bool, len(s.Roles))
	names := make([]string, 0, len(s.Roles))
	for _, r := range s.Roles {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		names = append(names, string(r.Name))
	}
	return names
}

func (u UserRecord) clone() UserRecord {
	out := u
	out.CompanyID = cloneID(u.CompanyID)
	out.Phone = cloneString(u.Phone)
	out.JobTitle = cloneString(u.JobTitle)
	out.AvatarURL = cloneString(u.AvatarURL)
	return out
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
