package repository

import (
	"context"
	"errors"

	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/ports"
	"portal_context_backend/platform/phone"
	"portal_context_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const getUserRecordQuery = `
	SELECT id, identity_id, tenant_id, company_id, display_name, email, phone, job_title, avatar_url, status
	FROM users
	WHERE identity_id = $1
`

// Memberships are returned in creation order so that "first membership"
// is stable across resolutions.
const listActiveMembershipsQuery = `
	SELECT id, user_id, company_id, tenant_id, is_default, active
	FROM company_memberships
	WHERE user_id = $1 AND active = true
	ORDER BY created_at ASC, id ASC
`

const listRolesQuery = `
	SELECT id, role::text, tenant_id, company_id
	FROM roles
	WHERE identity_id = $1
	ORDER BY created_at ASC, id ASC
`

const listCompaniesQuery = `
	SELECT id, tenant_id, trade_name, legal_name, tax_id, status
	FROM companies
	WHERE tenant_id = $1 AND id = ANY($2) AND status = 'active'
	ORDER BY trade_name ASC, id ASC
`

const listIdentitiesByCompanyQuery = `
	SELECT DISTINCT u.identity_id
	FROM company_memberships cm
	JOIN users u ON u.id = cm.user_id
	WHERE cm.company_id = $1
`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetUserRecord(ctx context.Context, identityID uuid.UUID) (domain.UserRecord, error) {
	var u domain.UserRecord
	err := r.pool.QueryRow(ctx, getUserRecordQuery, identityID).Scan(
		&u.ID,
		&u.IdentityID,
		&u.TenantID,
		&u.CompanyID,
		&u.DisplayName,
		&u.Email,
		&u.Phone,
		&u.JobTitle,
		&u.AvatarURL,
		&u.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserRecord{}, domain.ErrUserRecordNotFound
	}
	if err != nil {
		return domain.UserRecord{}, err
	}

	u.DisplayName = sanitize.Text(u.DisplayName)
	if u.Phone != nil {
		normalized := phone.NormalizeE164(*u.Phone)
		u.Phone = &normalized
	}
	return u, nil
}

func (r *Repository) ListActiveMemberships(ctx context.Context, userRecordID uuid.UUID) ([]domain.CompanyMembership, error) {
	rows, err := r.pool.Query(ctx, listActiveMembershipsQuery, userRecordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := make([]domain.CompanyMembership, 0)
	for rows.Next() {
		var m domain.CompanyMembership
		if err := rows.Scan(&m.ID, &m.UserRecordID, &m.CompanyID, &m.TenantID, &m.IsDefault, &m.Active); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *Repository) ListRoles(ctx context.Context, identityID uuid.UUID) ([]domain.Role, error) {
	rows, err := r.pool.Query(ctx, listRolesQuery, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var (
			role domain.Role
			name string
		)
		if err := rows.Scan(&role.ID, &name, &role.TenantID, &role.CompanyID); err != nil {
			return nil, err
		}
		role.Name = domain.RoleName(name)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListCompanies returns the active companies among ids that belong to tenantID.
func (r *Repository) ListCompanies(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Company, error) {
	if len(ids) == 0 {
		return []domain.Company{}, nil
	}

	rows, err := r.pool.Query(ctx, listCompaniesQuery, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companies := make([]domain.Company, 0, len(ids))
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.TenantID, &c.TradeName, &c.LegalName, &c.TaxID, &c.Status); err != nil {
			return nil, err
		}
		c.TradeName = sanitize.Text(c.TradeName)
		c.LegalName = sanitize.Text(c.LegalName)
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// ListIdentitiesByCompany returns every identity with a membership in
// companyID, active or not.
func (r *Repository) ListIdentitiesByCompany(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, listIdentitiesByCompanyQuery, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var (
	_ ports.ContextStore     = (*Repository)(nil)
	_ ports.CompanyDirectory = (*Repository)(nil)
)
