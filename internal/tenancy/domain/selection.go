package domain

import "github.com/google/uuid"

// ChooseActiveCompany picks the active company among memberships.
//
// A persisted choice wins only if it still matches an active membership.
// Otherwise the first default membership is chosen, then the first active
// membership in order. Returns nil when no membership is active.
func ChooseActiveCompany(memberships []CompanyMembership, persisted *uuid.UUID) *uuid.UUID {
	if persisted != nil && hasActiveMembership(memberships, *persisted) {
		id := *persisted
		return &id
	}
	for _, m := range memberships {
		if m.Active && m.IsDefault {
			id := m.CompanyID
			return &id
		}
	}
	for _, m := range memberships {
		if m.Active {
			id := m.CompanyID
			return &id
		}
	}
	return nil
}

func hasActiveMembership(memberships []CompanyMembership, companyID uuid.UUID) bool {
	for _, m := range memberships {
		if m.Active && m.CompanyID == companyID {
			return true
		}
	}
	return false
}
