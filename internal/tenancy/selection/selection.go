// Package selection stores the active company chosen on a browser session.
//
// The value lives exactly as long as the browser session: it is keyed by the
// browser session ID, never by user, and is never written to the durable
// database.
package selection

import (
	"fmt"

	"portal_context_backend/internal/tenancy/ports"
)

const keyPrefix = "portal:tenancy:"

// Key returns the namespaced key holding the selection of browserSessionID.
func Key(browserSessionID string) string {
	return fmt.Sprintf("%s%s:active_company", keyPrefix, browserSessionID)
}

// Provider hands out the selection store of a browser session.
type Provider interface {
	For(browserSessionID string) ports.SelectionStore
	// Forget drops whatever the provider holds for browserSessionID.
	Forget(browserSessionID string)
}
