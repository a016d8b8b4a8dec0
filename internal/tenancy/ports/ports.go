// Package ports defines the collaborators the context engine depends on.
// Implementations live in other packages (auth client, repository,
// selection stores) and are wired in module.go.
package ports

import (
	"context"
	"time"

	"portal_context_backend/internal/tenancy/domain"

	"github.com/google/uuid"
)

// AuthEvent is a change notification from the identity source.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// Session is an authenticated session as seen by the engine.
type Session struct {
	Identity  domain.Identity
	ExpiresAt time.Time
}

// AuthListener receives identity source notifications. session is nil when
// the identity source no longer has a session.
type AuthListener func(event AuthEvent, session *Session)

// IdentitySource issues sessions and notifies about changes to them.
type IdentitySource interface {
	// Subscribe registers listener and returns a function that removes it.
	Subscribe(listener AuthListener) (unsubscribe func())
	// CurrentSession returns the current session or nil when there is none.
	CurrentSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// ContextStore answers the three lookups needed for resolution.
type ContextStore interface {
	// GetUserRecord returns domain.ErrUserRecordNotFound when absent.
	GetUserRecord(ctx context.Context, identityID uuid.UUID) (domain.UserRecord, error)
	// ListActiveMemberships returns active memberships in a stable order.
	ListActiveMemberships(ctx context.Context, userRecordID uuid.UUID) ([]domain.CompanyMembership, error)
	ListRoles(ctx context.Context, identityID uuid.UUID) ([]domain.Role, error)
}

// CompanyDirectory resolves company details for the company selector.
type CompanyDirectory interface {
	ListCompanies(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Company, error)
}

// SelectionStore remembers the last selected company for one browser session.
type SelectionStore interface {
	// Get returns nil when nothing is stored.
	Get(ctx context.Context) (*uuid.UUID, error)
	Set(ctx context.Context, companyID uuid.UUID) error
	Clear(ctx context.Context) error
}
