// Package adapter provides implementations of external interfaces that other domains need.
// This follows the Anti-Corruption Layer pattern - auth domain provides adapters
// that satisfy consumer-driven interfaces defined by other domains.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"portal_context_backend/internal/auth/service"
	"portal_context_backend/internal/auth/session"
	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/ports"
	"portal_context_backend/platform/logger"
)

// refreshSkew renews access tokens slightly before they expire.
const refreshSkew = 30 * time.Second

// Authenticator is the part of the auth service the identity source needs.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (service.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (service.Tokens, error)
	SignOut(ctx context.Context, refreshToken string) error
	ParseAccessToken(raw string) (service.Claims, error)
}

// IdentitySource implements tenancy/ports.IdentitySource for one browser
// session on top of the auth service and the session store.
type IdentitySource struct {
	browserSessionID string
	auth             Authenticator
	store            session.Store
	log              *logger.Logger
	now              func() time.Time

	mu        sync.Mutex
	listeners map[uint64]ports.AuthListener
	nextID    uint64

	// refreshMu serialises token rotation so concurrent requests do not
	// spend the same refresh token twice.
	refreshMu sync.Mutex
}

func newIdentitySource(browserSessionID string, auth Authenticator, store session.Store, log *logger.Logger) *IdentitySource {
	return &IdentitySource{
		browserSessionID: browserSessionID,
		auth:             auth,
		store:            store,
		log:              log,
		now:              time.Now,
		listeners:        make(map[uint64]ports.AuthListener),
	}
}

func (s *IdentitySource) Subscribe(listener ports.AuthListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// CurrentSession returns the signed-in session, renewing an expiring access
// token on the way. It returns nil when there is no usable session.
func (s *IdentitySource) CurrentSession(ctx context.Context) (*ports.Session, error) {
	sess, err := s.store.Get(ctx, s.browserSessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if s.fresh(*sess) {
		return toPortsSession(*sess), nil
	}
	return s.refresh(ctx, false)
}

// RefreshSession rotates the token pair even if the access token is still
// valid. Listeners receive TOKEN_REFRESHED.
func (s *IdentitySource) RefreshSession(ctx context.Context) (*ports.Session, error) {
	return s.refresh(ctx, true)
}

func (s *IdentitySource) SignIn(ctx context.Context, email, password string) error {
	tokens, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	sess := fromTokens(tokens)
	if err := s.store.Save(ctx, s.browserSessionID, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.emit(ports.EventSignedIn, toPortsSession(sess))
	return nil
}

// SignOut forgets the session locally before revoking its refresh token, so
// listeners are cleared even when revocation fails.
func (s *IdentitySource) SignOut(ctx context.Context) error {
	sess, getErr := s.store.Get(ctx, s.browserSessionID)
	delErr := s.store.Delete(ctx, s.browserSessionID)
	s.emit(ports.EventSignedOut, nil)

	var revokeErr error
	if sess != nil {
		revokeErr = s.auth.SignOut(ctx, sess.RefreshToken)
	}
	return errors.Join(getErr, delErr, revokeErr)
}

func (s *IdentitySource) refresh(ctx context.Context, force bool) (*ports.Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another request may have rotated the tokens while we waited.
	sess, err := s.store.Get(ctx, s.browserSessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if !force && s.fresh(*sess) {
		return toPortsSession(*sess), nil
	}

	tokens, err := s.auth.Refresh(ctx, sess.RefreshToken)
	if errors.Is(err, service.ErrTokenInvalid) || errors.Is(err, service.ErrTokenExpired) {
		_ = s.store.Delete(ctx, s.browserSessionID)
		s.log.AuthEvent("session_expired", sess.Email, false, err.Error())
		s.emit(ports.EventSignedOut, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	next := fromTokens(tokens)
	if err := s.store.Save(ctx, s.browserSessionID, next); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	out := toPortsSession(next)
	s.emit(ports.EventTokenRefreshed, out)
	return out, nil
}

func (s *IdentitySource) fresh(sess session.Session) bool {
	if !s.now().Add(refreshSkew).Before(sess.AccessExpiresAt) {
		return false
	}
	claims, err := s.auth.ParseAccessToken(sess.AccessToken)
	return err == nil && claims.IdentityID == sess.IdentityID
}

func (s *IdentitySource) emit(event ports.AuthEvent, sess *ports.Session) {
	s.mu.Lock()
	listeners := make([]ports.AuthListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		var copied *ports.Session
		if sess != nil {
			c := *sess
			copied = &c
		}
		l(event, copied)
	}
}

func fromTokens(t service.Tokens) session.Session {
	return session.Session{
		IdentityID:      t.IdentityID,
		Email:           t.Email,
		AccessToken:     t.AccessToken,
		AccessExpiresAt: t.AccessExpiresAt,
		RefreshToken:    t.RefreshToken,
	}
}

func toPortsSession(s session.Session) *ports.Session {
	return &ports.Session{
		Identity:  domain.Identity{ID: s.IdentityID, Email: s.Email},
		ExpiresAt: s.AccessExpiresAt,
	}
}

// IdentitySources hands out one IdentitySource per browser session.
type IdentitySources struct {
	auth  Authenticator
	store session.Store
	log   *logger.Logger

	mu      sync.Mutex
	sources map[string]*IdentitySource
}

// NewIdentitySources creates a provider over auth and store.
func NewIdentitySources(auth Authenticator, store session.Store, log *logger.Logger) *IdentitySources {
	if log == nil {
		log = logger.Discard()
	}
	return &IdentitySources{auth: auth, store: store, log: log, sources: make(map[string]*IdentitySource)}
}

// Source returns the identity source of browserSessionID, creating it on
// first use.
func (p *IdentitySources) Source(browserSessionID string) *IdentitySource {
	p.mu.Lock()
	defer p.mu.Unlock()
	src, ok := p.sources[browserSessionID]
	if !ok {
		src = newIdentitySource(browserSessionID, p.auth, p.store, p.log.WithBrowserSession(browserSessionID))
		p.sources[browserSessionID] = src
	}
	return src
}

func (p *IdentitySources) For(browserSessionID string) ports.IdentitySource {
	return p.Source(browserSessionID)
}

// Forget drops the in-process source. The stored session is left to expire.
func (p *IdentitySources) Forget(browserSessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sources, browserSessionID)
}

var _ ports.IdentitySource = (*IdentitySource)(nil)
