package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portal_context_backend/internal/auth/repository"
	"portal_context_backend/platform/phone"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registrar creates sign-in identities.
type Registrar interface {
	Register(ctx context.Context, email, password string) (uuid.UUID, error)
}

// IdentityLookup finds identities that already exist.
type IdentityLookup interface {
	GetIdentityByEmail(ctx context.Context, email string) (repository.Identity, error)
}

type seeder struct {
	pool       *pgxpool.Pool
	registrar  Registrar
	identities IdentityLookup
}

type seedResult struct {
	tenants     int
	companies   int
	users       int
	memberships int
	roles       int
}

// seed registers the identities and then writes the tenant data in one
// transaction. Tenants whose name already exists are rejected so a second
// run does not duplicate data.
func (s *seeder) seed(ctx context.Context, f Fixture) (seedResult, error) {
	identityIDs := map[string]uuid.UUID{}
	for _, t := range f.Tenants {
		for _, u := range t.Users {
			email := strings.ToLower(strings.TrimSpace(u.Email))
			id, err := s.identity(ctx, email, u.Password)
			if err != nil {
				return seedResult{}, fmt.Errorf("identity %s: %w", email, err)
			}
			identityIDs[email] = id
		}
	}

	var res seedResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, t := range f.Tenants {
			if err := s.seedTenant(ctx, tx, t, identityIDs, &res); err != nil {
				return fmt.Errorf("tenant %q: %w", t.Key, err)
			}
		}
		return nil
	})
	return res, err
}

func (s *seeder) identity(ctx context.Context, email, password string) (uuid.UUID, error) {
	existing, err := s.identities.GetIdentityByEmail(ctx, email)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return uuid.Nil, err
	}
	return s.registrar.Register(ctx, email, password)
}

func (s *seeder) seedTenant(ctx context.Context, tx pgx.Tx, t TenantFixture, identityIDs map[string]uuid.UUID, res *seedResult) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE name = $1)`, t.Name).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("already seeded")
	}

	var tenantID uuid.UUID
	if err := tx.QueryRow(ctx, `INSERT INTO tenants (name) VALUES ($1) RETURNING id`, t.Name).Scan(&tenantID); err != nil {
		return err
	}
	res.tenants++

	companyIDs := map[string]uuid.UUID{}
	for _, c := range t.Companies {
		status := c.Status
		if status == "" {
			status = "active"
		}
		legalName := c.LegalName
		if legalName == "" {
			legalName = c.TradeName
		}
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO companies (tenant_id, trade_name, legal_name, tax_id, status)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)
			RETURNING id`,
			tenantID, c.TradeName, legalName, c.TaxID, status,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("company %q: %w", c.Key, err)
		}
		companyIDs[c.Key] = id
		res.companies++
	}

	for _, u := range t.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if err := seedUser(ctx, tx, tenantID, identityIDs[email], email, u, companyIDs, res); err != nil {
			return fmt.Errorf("user %s: %w", email, err)
		}
	}
	return nil
}

func seedUser(ctx context.Context, tx pgx.Tx, tenantID, identityID uuid.UUID, email string, u UserFixture, companyIDs map[string]uuid.UUID, res *seedResult) error {
	displayName := u.DisplayName
	if displayName == "" {
		displayName = email
	}

	var userID uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO users (identity_id, tenant_id, company_id, display_name, email, phone, job_title)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING id`,
		identityID, tenantID, optionalCompany(companyIDs, u.Company), displayName, email,
		phone.NormalizeE164(u.Phone), u.JobTitle,
	).Scan(&userID)
	if err != nil {
		return err
	}
	res.users++

	for _, m := range u.Memberships {
		_, err := tx.Exec(ctx, `
			INSERT INTO company_memberships (user_id, company_id, tenant_id, is_default, active)
			VALUES ($1, $2, $3, $4, $5)`,
			userID, companyIDs[m.Company], tenantID, m.Default, !m.Inactive,
		)
		if err != nil {
			return fmt.Errorf("membership %q: %w", m.Company, err)
		}
		res.memberships++
	}

	for _, r := range u.Roles {
		_, err := tx.Exec(ctx, `
			INSERT INTO roles (identity_id, role, tenant_id, company_id)
			VALUES ($1, $2::app_role, $3, $4)`,
			identityID, r.Role, tenantID, optionalCompany(companyIDs, r.Company),
		)
		if err != nil {
			return fmt.Errorf("role %q: %w", r.Role, err)
		}
		res.roles++
	}
	return nil
}

func optionalCompany(companyIDs map[string]uuid.UUID, key string) *uuid.UUID {
	if key == "" {
		return nil
	}
	id := companyIDs[key]
	return &id
}
