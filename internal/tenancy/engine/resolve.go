package engine

import (
	"context"
	"errors"

	"portal_context_backend/internal/tenancy/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// resolution is the raw outcome of one attempt before selection.
type resolution struct {
	user              *domain.UserRecord
	memberships       []domain.CompanyMembership
	membershipsLoaded bool
	roles             []domain.Role
	failures          []*domain.FetchError
}

// resolve runs the lookups for identity. The role lookup is independent of
// the user record and runs alongside the user record -> memberships chain.
// Lookups never fail the attempt; failures are collected instead.
func (e *Engine) resolve(ctx context.Context, identity domain.Identity) resolution {
	var (
		user           *domain.UserRecord
		userErr        error
		memberships    []domain.CompanyMembership
		membershipsErr error
		loaded         bool
		roles          []domain.Role
		rolesErr       error
	)

	// Plain Group, not WithContext: a failed lookup must not cancel the
	// other one, so each branch records its error and returns nil.
	var g errgroup.Group
	g.Go(func() error {
		roles, rolesErr = e.store.ListRoles(ctx, identity.ID)
		return nil
	})
	g.Go(func() error {
		rec, err := e.store.GetUserRecord(ctx, identity.ID)
		if err != nil {
			userErr = err
			return nil
		}
		user = &rec
		memberships, membershipsErr = e.store.ListActiveMemberships(ctx, rec.ID)
		loaded = membershipsErr == nil
		return nil
	})
	_ = g.Wait() // branches never return an error

	res := resolution{user: user, membershipsLoaded: loaded}
	if userErr != nil {
		res.failures = append(res.failures, &domain.FetchError{Target: domain.TargetUserRecord, Err: userErr})
	}
	if membershipsErr != nil {
		res.failures = append(res.failures, &domain.FetchError{Target: domain.TargetMemberships, Err: membershipsErr})
	}
	if rolesErr != nil {
		res.failures = append(res.failures, &domain.FetchError{Target: domain.TargetRoles, Err: rolesErr})
	} else {
		res.roles = roles
	}
	if loaded {
		res.memberships = activeOnly(memberships)
	}
	return res
}

// snapshot builds the context for identity. An active company is chosen
// only when memberships were loaded and are non-empty.
func (r resolution) snapshot(identity domain.Identity, persisted *uuid.UUID) domain.Snapshot {
	snap := domain.Empty()
	snap.Identity = &domain.Identity{ID: identity.ID, Email: identity.Email}
	snap.State = domain.StateReady

	if r.user != nil {
		u := *r.user
		snap.UserRecord = &u
		tenantID := u.TenantID
		snap.TenantID = &tenantID
	}
	if r.roles != nil {
		snap.Roles = append(snap.Roles, r.roles...)
	}
	if r.membershipsLoaded {
		snap.Memberships = append(snap.Memberships, r.memberships...)
		snap.ActiveCompanyID = domain.ChooseActiveCompany(snap.Memberships, persisted)
	}

	if len(r.failures) > 0 {
		snap.State = domain.StatePartial
		snap.Failures = make([]domain.PartialFailure, 0, len(r.failures))
		for _, f := range r.failures {
			snap.Failures = append(snap.Failures, domain.PartialFailure{Target: f.Target, Message: failureMessage(f)})
		}
	}
	return snap.Clone()
}

func activeOnly(memberships []domain.CompanyMembership) []domain.CompanyMembership {
	out := make([]domain.CompanyMembership, 0, len(memberships))
	for _, m := range memberships {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// failureMessage keeps backend error text out of snapshots.
func failureMessage(f *domain.FetchError) string {
	switch {
	case errors.Is(f.Err, domain.ErrUserRecordNotFound):
		return "user record not found"
	case errors.Is(f.Err, context.DeadlineExceeded):
		return "lookup timed out"
	default:
		return "lookup failed"
	}
}
