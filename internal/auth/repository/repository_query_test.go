package repository

import (
	"strings"
	"testing"
)

func TestRefreshTokenLookupIgnoresRevokedTokens(t *testing.T) {
	query := strings.ToLower(getRefreshTokenQuery)

	requiredFragments := []string{
		"from auth_refresh_tokens",
		"where token_hash = $1",
		"revoked_at is null",
	}

	for _, fragment := range requiredFragments {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected refresh token query fragment %q to be present", fragment)
		}
	}
}

func TestIdentityLookupIsCaseInsensitive(t *testing.T) {
	query := strings.ToLower(getIdentityByEmailQuery)

	if !strings.Contains(query, "lower(email) = lower($1)") {
		t.Fatal("identity lookup by email should compare case-insensitively")
	}
}

func TestRevocationOnlyTouchesLiveTokens(t *testing.T) {
	for name, query := range map[string]string{
		"single": revokeRefreshTokenQuery,
		"all":    revokeAllRefreshTokensQuery,
	} {
		if !strings.Contains(strings.ToLower(query), "revoked_at is null") {
			t.Fatalf("%s revocation should skip already revoked tokens", name)
		}
	}
}

func TestExpiredTokenCleanupIsBoundedByCutoff(t *testing.T) {
	query := strings.ToLower(deleteExpiredRefreshTokensQuery)

	if !strings.HasPrefix(strings.TrimSpace(query), "delete from auth_refresh_tokens") {
		t.Fatal("cleanup should delete from auth_refresh_tokens")
	}
	if !strings.Contains(query, "expires_at < $1") {
		t.Fatal("cleanup should only delete tokens expired before the cutoff")
	}
}
