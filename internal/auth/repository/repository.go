package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")
var ErrEmailTaken = errors.New("email already registered")

const uniqueViolation = "23505"

const createIdentityQuery = `
	INSERT INTO auth_identities (email, password_hash)
	VALUES ($1, $2)
	RETURNING id, email, password_hash, created_at, updated_at`

const getIdentityByEmailQuery = `
	SELECT id, email, password_hash, created_at, updated_at
	FROM auth_identities
	WHERE lower(email) = lower($1)`

const getIdentityByIDQuery = `
	SELECT id, email, password_hash, created_at, updated_at
	FROM auth_identities
	WHERE id = $1`

const createRefreshTokenQuery = `
	INSERT INTO auth_refresh_tokens (identity_id, token_hash, expires_at)
	VALUES ($1, $2, $3)`

const getRefreshTokenQuery = `
	SELECT identity_id, expires_at
	FROM auth_refresh_tokens
	WHERE token_hash = $1 AND revoked_at IS NULL`

const revokeRefreshTokenQuery = `
	UPDATE auth_refresh_tokens
	SET revoked_at = now()
	WHERE token_hash = $1 AND revoked_at IS NULL`

const revokeAllRefreshTokensQuery = `
	UPDATE auth_refresh_tokens
	SET revoked_at = now()
	WHERE identity_id = $1 AND revoked_at IS NULL`

const deleteExpiredRefreshTokensQuery = `
	DELETE FROM auth_refresh_tokens
	WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Identity struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Repository) CreateIdentity(ctx context.Context, email, passwordHash string) (Identity, error) {
	var identity Identity
	err := r.pool.QueryRow(ctx, createIdentityQuery, strings.TrimSpace(email), passwordHash).Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return Identity{}, ErrEmailTaken
	}
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func (r *Repository) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	return r.getIdentity(ctx, getIdentityByEmailQuery, strings.TrimSpace(email))
}

func (r *Repository) GetIdentityByID(ctx context.Context, identityID uuid.UUID) (Identity, error) {
	return r.getIdentity(ctx, getIdentityByIDQuery, identityID)
}

func (r *Repository) getIdentity(ctx context.Context, query string, arg any) (Identity, error) {
	var identity Identity
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	return identity, err
}

func (r *Repository) CreateRefreshToken(ctx context.Context, identityID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, createRefreshTokenQuery, identityID, tokenHash, expiresAt)
	return err
}

func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, time.Time, error) {
	var identityID uuid.UUID
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, getRefreshTokenQuery, tokenHash).Scan(&identityID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.UUID{}, time.Time{}, ErrNotFound
	}
	return identityID, expiresAt, err
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, revokeRefreshTokenQuery, tokenHash)
	return err
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, identityID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, revokeAllRefreshTokensQuery, identityID)
	return err
}

// DeleteExpiredRefreshTokens removes tokens that expired or were revoked
// before cutoff and returns how many were deleted.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteExpiredRefreshTokensQuery, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
