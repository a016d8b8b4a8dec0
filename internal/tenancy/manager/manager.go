// Package manager keeps one context engine per browser session.
package manager

import (
	"context"
	"sync"
	"time"

	"portal_context_backend/internal/events"
	"portal_context_backend/internal/tenancy/engine"
	"portal_context_backend/internal/tenancy/ports"
	"portal_context_backend/internal/tenancy/selection"
	"portal_context_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultIdleTTL        = 30 * time.Minute
	defaultSweepInterval  = time.Minute
	refreshFanoutParallel = 8
)

// IdentitySources hands out the identity source bound to a browser session.
type IdentitySources interface {
	For(browserSessionID string) ports.IdentitySource
	Forget(browserSessionID string)
}

// Config holds the registry tuning knobs.
type Config struct {
	IdleTTL        time.Duration
	SweepInterval  time.Duration
	ResolveTimeout time.Duration
}

// Expirer drops in-process per-session state that has been idle for longer
// than its own TTL. Stores backed by Redis expire on their own and need none.
type Expirer interface {
	ExpireIdle(now time.Time) int
}

type entry struct {
	engine   *engine.Engine
	lastSeen time.Time
}

// Manager creates engines lazily, hands them out per browser session and
// evicts the ones that have been idle for longer than IdleTTL.
type Manager struct {
	sources    IdentitySources
	store      ports.ContextStore
	selections selection.Provider
	bus        events.Bus
	log        *logger.Logger
	cfg        Config
	now        func() time.Time

	mu       sync.Mutex
	entries  map[string]*entry
	expirers []Expirer
	closed   bool
}

// New creates an empty registry.
func New(sources IdentitySources, store ports.ContextStore, selections selection.Provider, bus events.Bus, log *logger.Logger, cfg Config) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		sources:    sources,
		store:      store,
		selections: selections,
		bus:        bus,
		log:        log,
		cfg:        cfg,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
}

// Engine returns the started engine of browserSessionID, creating it on
// first use. Concurrent callers for the same session share one engine. Every
// call gives the engine a chance to repeat a failed initial session check.
func (m *Manager) Engine(ctx context.Context, browserSessionID string) (*engine.Engine, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	ent, ok := m.entries[browserSessionID]
	if !ok {
		ent = &entry{engine: m.newEngine(browserSessionID)}
		m.entries[browserSessionID] = ent
	}
	ent.lastSeen = m.now()
	m.mu.Unlock()

	ent.engine.Start(ctx)
	return ent.engine, nil
}

func (m *Manager) newEngine(browserSessionID string) *engine.Engine {
	return engine.New(
		m.sources.For(browserSessionID),
		m.store,
		m.selections.For(browserSessionID),
		engine.WithLogger(m.log.WithBrowserSession(browserSessionID)),
		engine.WithEventBus(m.bus),
		engine.WithResolveTimeout(m.cfg.ResolveTimeout),
	)
}

// Lookup returns the engine of browserSessionID without creating one.
func (m *Manager) Lookup(browserSessionID string) (*engine.Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.entries[browserSessionID]
	if !ok {
		return nil, false
	}
	return ent.engine, true
}

// RefreshIdentity re-resolves every live engine signed in as identityID and
// returns how many were refreshed.
func (m *Manager) RefreshIdentity(ctx context.Context, identityID uuid.UUID) int {
	targets := m.enginesFor(identityID)
	if len(targets) == 0 {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshFanoutParallel)
	for _, e := range targets {
		g.Go(func() error {
			e.Refresh(gctx)
			return nil
		})
	}
	_ = g.Wait()

	m.log.Info("context refreshed for identity", "identity_id", identityID.String(), "engines", len(targets))
	return len(targets)
}

func (m *Manager) enginesFor(identityID uuid.UUID) []*engine.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*engine.Engine
	for _, ent := range m.entries {
		if id, ok := ent.engine.IdentityID(); ok && id == identityID {
			out = append(out, ent.engine)
		}
	}
	return out
}

// Drop closes the engine of a browser session that has ended and releases
// everything held for it.
func (m *Manager) Drop(browserSessionID string) {
	m.mu.Lock()
	ent, ok := m.entries[browserSessionID]
	delete(m.entries, browserSessionID)
	// Under mu so a concurrent Engine call cannot pick up the old source.
	m.selections.Forget(browserSessionID)
	m.sources.Forget(browserSessionID)
	m.mu.Unlock()

	if ok {
		ent.engine.Close()
	}
}

// RegisterExpirer adds in-process per-session state to the idle sweep.
func (m *Manager) RegisterExpirer(x Expirer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expirers = append(m.expirers, x)
}

// Len returns the number of live engines.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Run evicts idle engines until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep closes engines not used within IdleTTL and releases their identity
// sources. The stored session and selection stay in place, so the next
// request rebuilds the same context; registered expirers drop those once
// they pass their own TTL.
func (m *Manager) Sweep() int {
	now := m.now()
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var idle []*engine.Engine
	for id, ent := range m.entries {
		if ent.lastSeen.Before(cutoff) {
			idle = append(idle, ent.engine)
			delete(m.entries, id)
			m.sources.Forget(id)
		}
	}
	expirers := append([]Expirer(nil), m.expirers...)
	m.mu.Unlock()

	for _, e := range idle {
		e.Close()
	}
	if len(idle) > 0 {
		m.log.Info("evicted idle context engines", "evicted", len(idle))
	}

	expired := 0
	for _, x := range expirers {
		expired += x.ExpireIdle(now)
	}
	if expired > 0 {
		m.log.Info("expired idle session state", "expired", expired)
	}
	return len(idle)
}

// Close shuts down every engine. Engine returns ErrClosed afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, ent := range entries {
		ent.engine.Close()
	}
}
