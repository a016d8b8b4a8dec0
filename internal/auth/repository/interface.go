package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuthRepository defines the interface for authentication data operations.
// This allows services to depend on an abstraction rather than concrete implementation,
// improving testability and modularity.
type AuthRepository interface {
	// Identity operations
	CreateIdentity(ctx context.Context, email, passwordHash string) (Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	GetIdentityByID(ctx context.Context, identityID uuid.UUID) (Identity, error)

	// Refresh token operations
	CreateRefreshToken(ctx context.Context, identityID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, time.Time, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, identityID uuid.UUID) error
	DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ensure Repository implements AuthRepository
var _ AuthRepository = (*Repository)(nil)
