package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/engine"
	"portal_context_backend/internal/tenancy/ports"
	"portal_context_backend/internal/tenancy/selection"
	"portal_context_backend/internal/tenancy/transport"
	"portal_context_backend/platform/httpkit"
	"portal_context_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	mu       sync.Mutex
	session  *ports.Session
	failures int
}

func (s *staticSource) Subscribe(ports.AuthListener) func() { return func() {} }
func (s *staticSource) CurrentSession(context.Context) (*ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("session store unavailable")
	}
	return s.session, nil
}
func (s *staticSource) SignIn(context.Context, string, string) error { return nil }
func (s *staticSource) SignOut(context.Context) error                { return nil }

type world struct {
	tenantID    uuid.UUID
	identity    domain.Identity
	user        domain.UserRecord
	memberships []domain.CompanyMembership
	roles       []domain.Role
	companies   []domain.Company
	byCompany   map[uuid.UUID][]uuid.UUID
	otherUsers  map[uuid.UUID]domain.UserRecord
}

func (w *world) GetUserRecord(_ context.Context, identityID uuid.UUID) (domain.UserRecord, error) {
	if identityID == w.identity.ID {
		return w.user, nil
	}
	if rec, ok := w.otherUsers[identityID]; ok {
		return rec, nil
	}
	return domain.UserRecord{}, domain.ErrUserRecordNotFound
}

func (w *world) ListActiveMemberships(context.Context, uuid.UUID) ([]domain.CompanyMembership, error) {
	return w.memberships, nil
}

func (w *world) ListRoles(context.Context, uuid.UUID) ([]domain.Role, error) {
	return w.roles, nil
}

func (w *world) ListCompanies(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Company, error) {
	var out []domain.Company
	for _, c := range w.companies {
		if c.TenantID != tenantID {
			continue
		}
		for _, id := range ids {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (w *world) ListIdentitiesByCompany(_ context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	return w.byCompany[companyID], nil
}

type fakeEngines struct {
	mu            sync.Mutex
	session       *ports.Session
	checkFailures int
	store         ports.ContextStore
	byID          map[string]*engine.Engine
	sel           *selection.MemoryProvider
}

func (f *fakeEngines) Engine(ctx context.Context, bsid string) (*engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.byID[bsid]; ok {
		e.Start(ctx)
		return e, nil
	}
	e := engine.New(&staticSource{session: f.session, failures: f.checkFailures}, f.store, f.sel.For(bsid))
	e.Start(ctx)
	f.byID[bsid] = e
	return e, nil
}

type recordingInvalidator struct {
	ids []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(_ context.Context, identityID uuid.UUID, _ string) error {
	r.ids = append(r.ids, identityID)
	return nil
}

func newWorld() *world {
	tenantID := uuid.New()
	identity := domain.Identity{ID: uuid.New(), Email: "ana@example.com"}
	first := domain.Company{ID: uuid.New(), TenantID: tenantID, TradeName: "Alpha", LegalName: "Alpha Ltda", Status: "active"}
	second := domain.Company{ID: uuid.New(), TenantID: tenantID, TradeName: "Beta", LegalName: "Beta SA", Status: "active"}
	userID := uuid.New()
	return &world{
		tenantID: tenantID,
		identity: identity,
		user:     domain.UserRecord{ID: userID, IdentityID: identity.ID, TenantID: tenantID, DisplayName: "Ana", Email: identity.Email, Status: "active"},
		memberships: []domain.CompanyMembership{
			{ID: uuid.New(), UserRecordID: userID, CompanyID: first.ID, TenantID: tenantID, Active: true},
			{ID: uuid.New(), UserRecordID: userID, CompanyID: second.ID, TenantID: tenantID, IsDefault: true, Active: true},
		},
		roles:      []domain.Role{{ID: uuid.New(), Name: domain.RoleManager, TenantID: tenantID}},
		companies:  []domain.Company{first, second},
		byCompany:  map[uuid.UUID][]uuid.UUID{},
		otherUsers: map[uuid.UUID]domain.UserRecord{},
	}
}

type harness struct {
	router      *gin.Engine
	engines     *fakeEngines
	invalidator *recordingInvalidator
}

func newHarness(t *testing.T, w *world, signedIn bool) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engines := &fakeEngines{store: w, byID: map[string]*engine.Engine{}, sel: selection.NewMemoryProvider(0)}
	if signedIn {
		engines.session = &ports.Session{Identity: w.identity}
	}
	t.Cleanup(func() {
		for _, e := range engines.byID {
			e.Close()
		}
	})
	inv := &recordingInvalidator{}
	h := New(engines, w, inv, validator.New(), nil, time.Second)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextBrowserSessionKey, "session-1")
		c.Next()
	})
	h.RegisterRoutes(r.Group("/context"))
	protected := r.Group("", h.RequireContext())
	protected.GET("/scoped", RequireActiveCompany(), func(c *gin.Context) {
		httpkit.OK(c, gin.H{"companyId": httpkit.GetIdentity(c).CompanyID().String()})
	})
	protected.POST("/admin/context/invalidate", httpkit.RequireRole(string(domain.RoleTenantAdmin), string(domain.RoleSuperAdmin)), h.Invalidate)

	return &harness{router: r, engines: engines, invalidator: inv}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGetContextReturnsResolvedContext(t *testing.T) {
	w := newWorld()
	h := newHarness(t, w, true)

	resp := h.do(t, http.MethodGet, "/context", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[transport.ContextResponse](t, resp)
	assert.Equal(t, "ready", body.State)
	assert.False(t, body.Loading)
	require.NotNil(t, body.Identity)
	assert.Equal(t, w.identity.ID.String(), body.Identity.ID)
	require.NotNil(t, body.ActiveCompanyID)
	assert.Equal(t, w.memberships[1].CompanyID.String(), *body.ActiveCompanyID, "default membership wins")
	assert.Len(t, body.Memberships, 2)
	assert.Len(t, body.Roles, 1)
}

func TestGetContextWithoutSession(t *testing.T) {
	h := newHarness(t, newWorld(), false)

	resp := h.do(t, http.MethodGet, "/context", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[transport.ContextResponse](t, resp)
	assert.Equal(t, "unauthenticated", body.State)
	assert.Nil(t, body.Identity)
	assert.Empty(t, body.Memberships)
}

func TestSelectCompany(t *testing.T) {
	w := newWorld()
	h := newHarness(t, w, true)

	t.Run("rejects malformed id", func(t *testing.T) {
		resp := h.do(t, http.MethodPost, "/context/company", gin.H{"companyId": "nope"})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("ignores foreign company", func(t *testing.T) {
		resp := h.do(t, http.MethodPost, "/context/company", gin.H{"companyId": uuid.NewString()})
		require.Equal(t, http.StatusOK, resp.Code)
		body := decode[transport.SelectCompanyResponse](t, resp)
		assert.False(t, body.Applied)
		require.NotNil(t, body.Context.ActiveCompanyID)
		assert.Equal(t, w.memberships[1].CompanyID.String(), *body.Context.ActiveCompanyID)
	})

	t.Run("switches to a membership", func(t *testing.T) {
		target := w.memberships[0].CompanyID.String()
		resp := h.do(t, http.MethodPost, "/context/company", gin.H{"companyId": target})
		require.Equal(t, http.StatusOK, resp.Code)
		body := decode[transport.SelectCompanyResponse](t, resp)
		assert.True(t, body.Applied)
		require.NotNil(t, body.Context.ActiveCompanyID)
		assert.Equal(t, target, *body.Context.ActiveCompanyID)
	})
}

func TestSelectCompanyRequiresSignIn(t *testing.T) {
	h := newHarness(t, newWorld(), false)

	resp := h.do(t, http.MethodPost, "/context/company", gin.H{"companyId": uuid.NewString()})

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestListCompaniesFollowsMembershipOrder(t *testing.T) {
	w := newWorld()
	h := newHarness(t, w, true)

	resp := h.do(t, http.MethodGet, "/context/companies", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[transport.CompanyListResponse](t, resp)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Alpha", body.Items[0].TradeName)
	assert.False(t, body.Items[0].IsActive)
	assert.Equal(t, "Beta", body.Items[1].TradeName)
	assert.True(t, body.Items[1].IsActive)
	assert.True(t, body.Items[1].IsDefault)
}

func TestRoleQueries(t *testing.T) {
	h := newHarness(t, newWorld(), true)

	resp := h.do(t, http.MethodGet, "/context/roles/manager", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[transport.HasRoleResponse](t, resp).HasRole)

	resp = h.do(t, http.MethodGet, "/context/roles/super_admin", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, decode[transport.HasRoleResponse](t, resp).HasRole)

	resp = h.do(t, http.MethodGet, "/context/roles/owner", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodGet, "/context/authorization", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	authz := decode[transport.AuthorizationResponse](t, resp)
	assert.False(t, authz.IsSuperAdmin)
	assert.False(t, authz.IsTenantAdmin)
	assert.Equal(t, []string{"manager"}, authz.Roles)
}

func TestRequireActiveCompany(t *testing.T) {
	w := newWorld()
	h := newHarness(t, w, true)

	resp := h.do(t, http.MethodGet, "/scoped", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, w.memberships[1].CompanyID.String(), decode[map[string]string](t, resp)["companyId"])

	empty := newWorld()
	empty.memberships = nil
	h = newHarness(t, empty, true)
	resp = h.do(t, http.MethodGet, "/scoped", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)

	h = newHarness(t, newWorld(), false)
	resp = h.do(t, http.MethodGet, "/scoped", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestInvalidate(t *testing.T) {
	w := newWorld()
	w.roles = []domain.Role{{ID: uuid.New(), Name: domain.RoleTenantAdmin, TenantID: w.tenantID}}
	colleague := uuid.New()
	outsider := uuid.New()
	w.otherUsers[colleague] = domain.UserRecord{ID: uuid.New(), IdentityID: colleague, TenantID: w.tenantID}
	w.otherUsers[outsider] = domain.UserRecord{ID: uuid.New(), IdentityID: outsider, TenantID: uuid.New()}
	w.byCompany[w.companies[0].ID] = []uuid.UUID{w.identity.ID, colleague}

	t.Run("identity in own tenant", func(t *testing.T) {
		h := newHarness(t, w, true)
		resp := h.do(t, http.MethodPost, "/admin/context/invalidate", gin.H{"identityId": colleague.String()})
		require.Equal(t, http.StatusAccepted, resp.Code)
		assert.Equal(t, 1, decode[transport.InvalidateContextResponse](t, resp).Queued)
		assert.Equal(t, []uuid.UUID{colleague}, h.invalidator.ids)
	})

	t.Run("identity in another tenant", func(t *testing.T) {
		h := newHarness(t, w, true)
		resp := h.do(t, http.MethodPost, "/admin/context/invalidate", gin.H{"identityId": outsider.String()})
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Empty(t, h.invalidator.ids)
	})

	t.Run("every member of a company", func(t *testing.T) {
		h := newHarness(t, w, true)
		resp := h.do(t, http.MethodPost, "/admin/context/invalidate", gin.H{"companyId": w.companies[0].ID.String(), "reason": "membership changed"})
		require.Equal(t, http.StatusAccepted, resp.Code)
		assert.ElementsMatch(t, []uuid.UUID{w.identity.ID, colleague}, h.invalidator.ids)
	})

	t.Run("requires a target", func(t *testing.T) {
		h := newHarness(t, w, true)
		resp := h.do(t, http.MethodPost, "/admin/context/invalidate", gin.H{})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestInvalidateRequiresAdmin(t *testing.T) {
	h := newHarness(t, newWorld(), true)

	resp := h.do(t, http.MethodPost, "/admin/context/invalidate", gin.H{"identityId": uuid.NewString()})

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestFailedSessionCheckAnswersUnavailableThenRecovers(t *testing.T) {
	w := newWorld()
	h := newHarness(t, w, true)
	h.engines.checkFailures = 1

	resp := h.do(t, http.MethodGet, "/scoped", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = h.do(t, http.MethodGet, "/scoped", nil)
	require.Equal(t, http.StatusOK, resp.Code)
}
