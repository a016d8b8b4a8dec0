package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portal_context_backend/internal/auth/password"
	"portal_context_backend/internal/auth/repository"

	"github.com/google/uuid"
)

type testConfig struct{}

func (testConfig) GetJWTAccessSecret() string        { return "test-secret" }
func (testConfig) GetAccessTokenTTL() time.Duration  { return 15 * time.Minute }
func (testConfig) GetRefreshTokenTTL() time.Duration { return time.Hour }

type refreshRow struct {
	identityID uuid.UUID
	expiresAt  time.Time
	revoked    bool
}

type memoryRepo struct {
	mu         sync.Mutex
	identities map[uuid.UUID]repository.Identity
	tokens     map[string]*refreshRow
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{identities: map[uuid.UUID]repository.Identity{}, tokens: map[string]*refreshRow{}}
}

func (m *memoryRepo) CreateIdentity(_ context.Context, email, hash string) (repository.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if i.Email == email {
			return repository.Identity{}, repository.ErrEmailTaken
		}
	}
	identity := repository.Identity{ID: uuid.New(), Email: email, PasswordHash: hash}
	m.identities[identity.ID] = identity
	return identity, nil
}

func (m *memoryRepo) GetIdentityByEmail(_ context.Context, email string) (repository.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if i.Email == email {
			return i, nil
		}
	}
	return repository.Identity{}, repository.ErrNotFound
}

func (m *memoryRepo) GetIdentityByID(_ context.Context, id uuid.UUID) (repository.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.identities[id]
	if !ok {
		return repository.Identity{}, repository.ErrNotFound
	}
	return i, nil
}

func (m *memoryRepo) CreateRefreshToken(_ context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[hash] = &refreshRow{identityID: id, expiresAt: expiresAt}
	return nil
}

func (m *memoryRepo) GetRefreshToken(_ context.Context, hash string) (uuid.UUID, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.tokens[hash]
	if !ok || row.revoked {
		return uuid.UUID{}, time.Time{}, repository.ErrNotFound
	}
	return row.identityID, row.expiresAt, nil
}

func (m *memoryRepo) RevokeRefreshToken(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.tokens[hash]; ok {
		row.revoked = true
	}
	return nil
}

func (m *memoryRepo) RevokeAllRefreshTokens(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.tokens {
		if row.identityID == id {
			row.revoked = true
		}
	}
	return nil
}

func (m *memoryRepo) DeleteExpiredRefreshTokens(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, row := range m.tokens {
		if row.expiresAt.Before(cutoff) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}

func newService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	hash, err := password.Hash("Valid-Pass123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := repo.CreateIdentity(context.Background(), "ana@example.com", hash); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return New(repo, testConfig{}, nil, nil), repo
}

func TestSignInIssuesVerifiableAccessToken(t *testing.T) {
	svc, _ := newService(t)

	tokens, err := svc.SignIn(context.Background(), "ana@example.com", "Valid-Pass123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if tokens.RefreshToken == "" {
		t.Fatal("expected a refresh token")
	}

	claims, err := svc.ParseAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.IdentityID != tokens.IdentityID {
		t.Fatalf("expected subject %s, got %s", tokens.IdentityID, claims.IdentityID)
	}
	if claims.Email != "ana@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.SignIn(context.Background(), "ana@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "nobody@example.com", "Valid-Pass123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.SignIn(ctx, "ana@example.com", "Valid-Pass123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected reuse of a rotated token to fail, got %v", err)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tokens, err := svc.SignIn(ctx, "ana@example.com", "Valid-Pass123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestParseAccessTokenRejectsTamperedAndExpired(t *testing.T) {
	svc, _ := newService(t)

	tokens, err := svc.SignIn(context.Background(), "ana@example.com", "Valid-Pass123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if _, err := svc.ParseAccessToken(tokens.AccessToken + "x"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected tampered token to be invalid, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := svc.ParseAccessToken(tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestSignOutRevokesRefreshToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tokens, err := svc.SignIn(ctx, "ana@example.com", "Valid-Pass123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := svc.SignOut(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked token to be invalid, got %v", err)
	}
}

func TestRegisterEnforcesPolicy(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", "Valid-Pass123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := svc.Register(ctx, "bruno@example.com", "weak"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if _, err := svc.Register(ctx, "Ana@Example.com", "Valid-Pass123"); !errors.Is(err, repository.ErrEmailTaken) {
		t.Fatalf("expected duplicate email to be rejected, got %v", err)
	}
	id, err := svc.Register(ctx, "bruno@example.com", "Valid-Pass123")
	if err != nil || id == uuid.Nil {
		t.Fatalf("expected registration to succeed, got %v", err)
	}
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, "ana@example.com", "Valid-Pass123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := svc.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 || len(repo.tokens) != 0 {
		t.Fatalf("expected one expired token removed, got %d (remaining %d)", n, len(repo.tokens))
	}
}
