// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"portal_context_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Auth Domain Events
// =============================================================================

// IdentitySignedIn is published when an identity signs in on a browser session.
type IdentitySignedIn struct {
	BaseEvent
	IdentityID uuid.UUID `json:"identityId"`
	Email      string    `json:"email"`
}

func (e IdentitySignedIn) EventName() string { return "auth.identity.signed_in" }

// IdentitySignedOut is published when a browser session signs out.
type IdentitySignedOut struct {
	BaseEvent
	IdentityID uuid.UUID `json:"identityId"`
}

func (e IdentitySignedOut) EventName() string { return "auth.identity.signed_out" }

// =============================================================================
// Tenancy Domain Events
// =============================================================================

// ContextResolved is published when a resolution attempt is applied.
type ContextResolved struct {
	BaseEvent
	IdentityID      uuid.UUID  `json:"identityId"`
	TenantID        *uuid.UUID `json:"tenantId,omitempty"`
	ActiveCompanyID *uuid.UUID `json:"activeCompanyId,omitempty"`
	State           string     `json:"state"`
	Memberships     int        `json:"memberships"`
	Roles           int        `json:"roles"`
}

func (e ContextResolved) EventName() string { return "tenancy.context.resolved" }

// CompanySelected is published when a caller switches the active company.
type CompanySelected struct {
	BaseEvent
	IdentityID uuid.UUID  `json:"identityId"`
	TenantID   *uuid.UUID `json:"tenantId,omitempty"`
	CompanyID  uuid.UUID  `json:"companyId"`
}

func (e CompanySelected) EventName() string { return "tenancy.company.selected" }

// ContextCleared is published when a signed-in context is cleared.
type ContextCleared struct {
	BaseEvent
	IdentityID uuid.UUID `json:"identityId"`
}

func (e ContextCleared) EventName() string { return "tenancy.context.cleared" }

// ContextInvalidated is published when an identity's memberships or roles
// changed and every live context for it must be re-resolved.
type ContextInvalidated struct {
	BaseEvent
	IdentityID uuid.UUID `json:"identityId"`
	Reason     string    `json:"reason,omitempty"`
}

func (e ContextInvalidated) EventName() string { return "tenancy.context.invalidated" }
