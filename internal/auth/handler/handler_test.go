package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"portal_context_backend/internal/auth/adapter"
	"portal_context_backend/internal/auth/service"
	"portal_context_backend/internal/auth/session"
	"portal_context_backend/internal/auth/transport"
	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/engine"
	"portal_context_backend/internal/tenancy/selection"
	"portal_context_backend/platform/httpkit"
	"portal_context_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubAuth struct {
	identityID uuid.UUID
}

func (a stubAuth) SignIn(_ context.Context, email, password string) (service.Tokens, error) {
	if password != "Valid-Pass123" {
		return service.Tokens{}, service.ErrInvalidCredentials
	}
	return a.tokens(email), nil
}

func (a stubAuth) Refresh(context.Context, string) (service.Tokens, error) {
	return a.tokens("ana@example.com"), nil
}

func (a stubAuth) SignOut(context.Context, string) error { return nil }

func (a stubAuth) ParseAccessToken(string) (service.Claims, error) {
	return service.Claims{IdentityID: a.identityID}, nil
}

func (a stubAuth) tokens(email string) service.Tokens {
	return service.Tokens{
		IdentityID:      a.identityID,
		Email:           email,
		AccessToken:     "access-" + uuid.NewString(),
		AccessExpiresAt: time.Now().Add(15 * time.Minute),
		RefreshToken:    "refresh-" + uuid.NewString(),
	}
}

type emptyStore struct{}

func (emptyStore) GetUserRecord(_ context.Context, identityID uuid.UUID) (domain.UserRecord, error) {
	return domain.UserRecord{ID: uuid.New(), IdentityID: identityID, TenantID: uuid.New()}, nil
}

func (emptyStore) ListActiveMemberships(context.Context, uuid.UUID) ([]domain.CompanyMembership, error) {
	return nil, nil
}

func (emptyStore) ListRoles(context.Context, uuid.UUID) ([]domain.Role, error) {
	return nil, nil
}

type engines struct {
	mu      sync.Mutex
	sources *adapter.IdentitySources
	byID    map[string]*engine.Engine
}

func (e *engines) Engine(ctx context.Context, bsid string) (*engine.Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if eng, ok := e.byID[bsid]; ok {
		return eng, nil
	}
	eng := engine.New(e.sources.For(bsid), emptyStore{}, selection.NewMemoryStore())
	eng.Start(ctx)
	e.byID[bsid] = eng
	return eng, nil
}

func (e *engines) Drop(bsid string) {
	e.mu.Lock()
	eng, ok := e.byID[bsid]
	delete(e.byID, bsid)
	e.mu.Unlock()
	if ok {
		eng.Close()
	}
	e.sources.Forget(bsid)
}

type cookieConfig struct{}

func (cookieConfig) GetSessionCookieName() string            { return "portal_bsid" }
func (cookieConfig) GetSessionCookieDomain() string          { return "" }
func (cookieConfig) GetSessionCookieSecure() bool            { return false }
func (cookieConfig) GetSessionCookieSameSite() http.SameSite { return http.SameSiteLaxMode }
func (cookieConfig) GetSessionIdleTTL() time.Duration        { return time.Hour }

func newRouter(t *testing.T) (*gin.Engine, *engines, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	identityID := uuid.New()
	sources := adapter.NewIdentitySources(stubAuth{identityID: identityID}, session.NewMemoryStore(time.Hour), nil)
	reg := &engines{sources: sources, byID: map[string]*engine.Engine{}}
	t.Cleanup(func() {
		for _, e := range reg.byID {
			e.Close()
		}
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextBrowserSessionKey, "session-1")
		c.Next()
	})
	New(reg, sources, cookieConfig{}, validator.New(), nil).RegisterRoutes(r.Group("/auth"), func(c *gin.Context) { c.Next() })
	return r, reg, identityID
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSignInValidation(t *testing.T) {
	r, _, _ := newRouter(t)

	w := do(r, http.MethodPost, "/auth/sign-in", gin.H{"email": "not-an-email", "password": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSignInRejectsBadPassword(t *testing.T) {
	r, _, _ := newRouter(t)

	w := do(r, http.MethodPost, "/auth/sign-in", gin.H{"email": "ana@example.com", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSignInResolvesContextAndSignOutClearsIt(t *testing.T) {
	r, reg, identityID := newRouter(t)

	w := do(r, http.MethodPost, "/auth/sign-in", gin.H{"email": "ana@example.com", "password": "Valid-Pass123"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp transport.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IdentityID != identityID.String() {
		t.Fatalf("expected identity %s, got %s", identityID, resp.IdentityID)
	}

	eng := reg.byID["session-1"]
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := eng.Settled(ctx)
	if err != nil || snap.Identity == nil || snap.Identity.ID != identityID {
		t.Fatalf("expected context for signed-in identity, got %+v (%v)", snap, err)
	}

	if w := do(r, http.MethodGet, "/auth/session", nil); w.Code != http.StatusOK {
		t.Fatalf("expected session, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/auth/refresh", nil); w.Code != http.StatusOK {
		t.Fatalf("expected refresh to succeed, got %d", w.Code)
	}

	if w := do(r, http.MethodPost, "/auth/sign-out", nil); w.Code != http.StatusOK {
		t.Fatalf("expected sign out to succeed, got %d", w.Code)
	}
	if snap := eng.Snapshot(); snap.Identity != nil || snap.State != domain.StateUnauthenticated {
		t.Fatalf("expected cleared context, got %+v", snap)
	}
	if w := do(r, http.MethodGet, "/auth/session", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign out, got %d", w.Code)
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	r, _, _ := newRouter(t)

	if w := do(r, http.MethodPost, "/auth/refresh", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestEndBrowserSessionReleasesState(t *testing.T) {
	r, reg, _ := newRouter(t)

	if w := do(r, http.MethodPost, "/auth/sign-in", gin.H{"email": "ana@example.com", "password": "Valid-Pass123"}); w.Code != http.StatusOK {
		t.Fatalf("sign in: %d", w.Code)
	}

	w := do(r, http.MethodDelete, "/auth/browser-session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	reg.mu.Lock()
	_, live := reg.byID["session-1"]
	reg.mu.Unlock()
	if live {
		t.Fatal("expected the engine to be released")
	}
	cookie := w.Result().Cookies()
	if len(cookie) != 1 || cookie[0].Name != "portal_bsid" || cookie[0].MaxAge >= 0 {
		t.Fatalf("expected an expired session cookie, got %+v", cookie)
	}
	if w := do(r, http.MethodGet, "/auth/session", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after ending the session, got %d", w.Code)
	}
}
