// Package audit records sign-in and tenancy context changes published on the
// event bus.
package audit

import (
	"context"
	"log/slog"

	"portal_context_backend/internal/events"
	"portal_context_backend/platform/logger"

	"github.com/google/uuid"
)

// Trail writes one structured audit line per lifecycle event.
type Trail struct {
	log *logger.Logger
}

// NewTrail creates a trail writing to log.
func NewTrail(log *logger.Logger) *Trail {
	if log == nil {
		log = logger.Discard()
	}
	return &Trail{log: log}
}

// RegisterHandlers subscribes the trail to every auth and tenancy event.
func (t *Trail) RegisterHandlers(bus events.Bus) {
	// Auth domain events
	bus.Subscribe(events.IdentitySignedIn{}.EventName(), t)
	bus.Subscribe(events.IdentitySignedOut{}.EventName(), t)

	// Tenancy domain events
	bus.Subscribe(events.ContextResolved{}.EventName(), t)
	bus.Subscribe(events.CompanySelected{}.EventName(), t)
	bus.Subscribe(events.ContextCleared{}.EventName(), t)
	bus.Subscribe(events.ContextInvalidated{}.EventName(), t)
}

// Handle routes events to the matching audit line.
func (t *Trail) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.IdentitySignedIn:
		t.log.AuditEvent(e.EventName(), e.IdentityID.String(), slog.String("email", e.Email))
	case events.IdentitySignedOut:
		t.log.AuditEvent(e.EventName(), e.IdentityID.String())
	case events.ContextResolved:
		t.log.AuditEvent(e.EventName(), e.IdentityID.String(),
			slog.String("state", e.State),
			slog.String("tenant_id", optional(e.TenantID)),
			slog.String("active_company", optional(e.ActiveCompanyID)),
			slog.Int("memberships", e.Memberships),
			slog.Int("roles", e.Roles),
		)
	case events.CompanySelected:
		t.log.AuditEvent(e.EventName(), e.IdentityID.String(),
			slog.String("tenant_id", optional(e.TenantID)),
			slog.String("company_id", e.CompanyID.String()),
		)
	case events.ContextCleared:
		t.log.AuditEvent(e.EventName(), e.IdentityID.String())
	case events.ContextInvalidated:
		t.log.AuditEvent(e.EventName(), e.IdentityID.String(), slog.String("reason", e.Reason))
	default:
		t.log.Debug("audit trail ignored event", "event", event.EventName())
	}
	return nil
}

func optional(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
