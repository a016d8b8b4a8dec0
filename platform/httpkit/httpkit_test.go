package httpkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"portal_context_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sessionCfg struct{}

func (sessionCfg) GetSessionCookieName() string            { return "bsid" }
func (sessionCfg) GetSessionCookieDomain() string          { return "" }
func (sessionCfg) GetSessionCookieSecure() bool            { return true }
func (sessionCfg) GetSessionCookieSameSite() http.SameSite { return http.SameSiteLaxMode }
func (sessionCfg) GetSessionIdleTTL() time.Duration        { return time.Hour }

func init() {
	gin.SetMode(gin.TestMode)
}

func newSessionRouter(seen *string) *gin.Engine {
	r := gin.New()
	r.Use(BrowserSession(sessionCfg{}))
	r.GET("/", func(c *gin.Context) {
		*seen, _ = GetBrowserSession(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestBrowserSessionIssuesSessionCookie(t *testing.T) {
	var seen string
	r := newSessionRouter(&seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != "bsid" || ck.Value != seen {
		t.Fatalf("cookie %q=%q does not match session %q", ck.Name, ck.Value, seen)
	}
	if ck.MaxAge != 0 || !ck.Expires.IsZero() {
		t.Fatalf("expected a session cookie without expiry")
	}
	if !ck.HttpOnly || !ck.Secure {
		t.Fatalf("expected HttpOnly and Secure cookie")
	}
}

func TestBrowserSessionReusesValidCookie(t *testing.T) {
	var seen string
	r := newSessionRouter(&seen)
	existing := strings.Repeat("ab", browserSessionBytes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "bsid", Value: existing})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen != existing {
		t.Fatalf("expected existing session %q, got %q", existing, seen)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("did not expect a new cookie")
	}
}

func TestBrowserSessionReplacesMalformedCookie(t *testing.T) {
	var seen string
	r := newSessionRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "bsid", Value: "not-hex"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen == "not-hex" || !validBrowserSessionID(seen) {
		t.Fatalf("expected a freshly generated session, got %q", seen)
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: apperr.NotFound("missing"), status: http.StatusNotFound},
		{name: "wrapped conflict", err: errors.Join(errors.New("ctx"), apperr.Conflict("busy")), status: http.StatusConflict},
		{name: "unavailable", err: apperr.Unavailable("down"), status: http.StatusServiceUnavailable},
		{name: "untyped", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			if !HandleError(c, tt.err) {
				t.Fatalf("expected error to be handled")
			}
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	id := uuid.New()
	r := gin.New()
	r.GET("/admin", func(c *gin.Context) {
		if c.Query("as") != "" {
			SetIdentity(c, id, nil, nil, []string{c.Query("as")})
		}
		c.Next()
	}, RequireRole("tenant_admin", "super_admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := map[string]int{
		"/admin":                 http.StatusUnauthorized,
		"/admin?as=viewer":       http.StatusForbidden,
		"/admin?as=tenant_admin": http.StatusNoContent,
		"/admin?as=super_admin":  http.StatusNoContent,
	}
	for path, want := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, w.Code)
		}
	}
}
