// Package engine owns the resolved tenancy context of one browser session.
//
// The engine listens to an identity source, turns every authentication
// event into a resolution attempt and publishes read-only snapshots to its
// subscribers. Attempts are numbered; only the most recently started attempt
// may apply its result, older ones are discarded when they complete.
package engine

import (
	"context"
	"sync"
	"time"

	"portal_context_backend/internal/events"
	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/ports"
	"portal_context_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultResolveTimeout = 10 * time.Second
	persistTimeout        = 5 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for partial failures and lifecycle events.
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithEventBus publishes tenancy domain events on bus.
func WithEventBus(bus events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithResolveTimeout bounds the lookups of a single attempt.
func WithResolveTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.resolveTimeout = d
		}
	}
}

// Engine is the single owner of one context. All mutation goes through its
// methods; callers only ever see copies.
type Engine struct {
	source    ports.IdentitySource
	store     ports.ContextStore
	selection ports.SelectionStore
	bus       events.Bus
	log       *logger.Logger

	resolveTimeout time.Duration

	// persistMu orders every selection store access with the context update
	// that caused it.
	persistMu sync.Mutex

	mu       sync.Mutex
	snap     domain.Snapshot
	identity *domain.Identity
	seq      uint64
	waiters  map[uint64]chan struct{}
	subs     map[uint64]chan domain.Snapshot
	nextSub  uint64
	started  bool
	checking bool
	checked  bool
	closed   bool

	unsubscribe func()
	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an engine. It does nothing until Start is called.
func New(source ports.IdentitySource, store ports.ContextStore, selection ports.SelectionStore, opts ...Option) *Engine {
	baseCtx, cancel := context.WithCancel(context.Background())
	snap := domain.Empty()
	snap.Loading = true

	e := &Engine{
		source:         source,
		store:          store,
		selection:      selection,
		log:            logger.Discard(),
		resolveTimeout: defaultResolveTimeout,
		snap:           snap,
		waiters:        make(map[uint64]chan struct{}),
		subs:           make(map[uint64]chan domain.Snapshot),
		baseCtx:        baseCtx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to the identity source and then performs the initial
// session check. The listener is registered first so that an event fired
// during the check is not lost; if both paths see the same session the
// context is simply resolved twice.
//
// The check runs detached from ctx's cancellation. If it fails the context
// settles as error_partial without an identity and the next Start call
// checks again. Start is cheap once the check has succeeded or an identity
// event has arrived.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.closed || e.checking || (e.started && e.checked) {
		e.mu.Unlock()
		return
	}
	subscribe := !e.started
	e.started = true
	e.checking = true
	if !subscribe && !e.snap.Loading {
		e.snap.Loading = true
		e.broadcastLocked()
	}
	e.mu.Unlock()

	if subscribe {
		unsubscribe := e.source.Subscribe(e.onAuthEvent)
		e.mu.Lock()
		e.unsubscribe = unsubscribe
		closed := e.closed
		e.mu.Unlock()
		if closed {
			unsubscribe()
		}
	}

	e.mu.Lock()
	skip := e.checked
	e.mu.Unlock()
	if skip {
		e.mu.Lock()
		e.checking = false
		e.mu.Unlock()
		return
	}

	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.resolveTimeout)
	defer cancel()
	session, err := e.source.CurrentSession(checkCtx)

	e.mu.Lock()
	e.checking = false
	pristine := e.seq == 0 && e.identity == nil
	if err != nil {
		e.log.Warn("initial session check failed", "error", err)
		if pristine {
			e.snap = domain.Empty()
			e.snap.State = domain.StatePartial
			e.snap.Failures = []domain.PartialFailure{{Target: domain.TargetSession, Message: "session check failed"}}
			e.broadcastLocked()
		}
		e.mu.Unlock()
		return
	}
	e.checked = true
	if session == nil || !pristine {
		// No session: settle as unauthenticated unless a listener event has
		// already started an attempt. The persisted selection is left alone.
		if pristine {
			e.snap = domain.Empty()
			e.broadcastLocked()
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.beginAttempt(session.Identity)
}

func (e *Engine) onAuthEvent(event ports.AuthEvent, session *ports.Session) {
	if event == ports.EventSignedOut || session == nil {
		ctx, cancel := context.WithTimeout(e.baseCtx, persistTimeout)
		defer cancel()
		e.clear(ctx)
		return
	}
	e.beginAttempt(session.Identity)
}

// beginAttempt moves the engine to RESOLVING and spawns a resolution for
// identity. It returns a channel closed once the attempt is applied or
// superseded.
func (e *Engine) beginAttempt(identity domain.Identity) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	done := make(chan struct{})
	if e.closed {
		close(done)
		return done
	}

	e.seq++
	seq := e.seq
	e.checked = true

	// A different identity must never see the previous one's data, even
	// while loading.
	if e.snap.Identity == nil || e.snap.Identity.ID != identity.ID {
		e.snap = domain.Empty()
	}
	id := identity
	e.identity = &id
	e.snap.Identity = &domain.Identity{ID: identity.ID, Email: identity.Email}
	e.snap.State = domain.StateResolving
	e.snap.Loading = true
	e.waiters[seq] = done
	e.broadcastLocked()

	e.wg.Add(1)
	go e.run(seq, identity)
	return done
}

func (e *Engine) run(seq uint64, identity domain.Identity) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(e.baseCtx, e.resolveTimeout)
	defer cancel()

	res := e.resolve(ctx, identity)
	e.apply(ctx, seq, identity, res)
}

// apply installs res if seq is still the latest attempt, then persists the
// chosen company.
func (e *Engine) apply(ctx context.Context, seq uint64, identity domain.Identity, res resolution) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if !e.isCurrent(seq) {
		e.finishAttempt(seq)
		return
	}

	var persisted *uuid.UUID
	if len(res.memberships) > 0 {
		p, err := e.selection.Get(ctx)
		if err != nil {
			e.log.Warn("read persisted company selection failed", "identity_id", identity.ID.String(), "error", err)
		} else {
			persisted = p
		}
	}

	next := res.snapshot(identity, persisted)

	e.mu.Lock()
	if seq != e.seq || e.closed {
		e.mu.Unlock()
		e.finishAttempt(seq)
		return
	}
	e.snap = next
	e.releaseWaitersLocked(seq)
	e.broadcastLocked()
	e.mu.Unlock()

	for _, f := range res.failures {
		e.log.ContextPartial(identity.ID.String(), string(f.Target), f.Err)
	}
	activeCompany := ""
	if next.ActiveCompanyID != nil {
		activeCompany = next.ActiveCompanyID.String()
		if err := e.selection.Set(ctx, *next.ActiveCompanyID); err != nil {
			e.log.Warn("persist company selection failed", "identity_id", identity.ID.String(), "error", err)
		}
	}
	e.log.ContextResolved(identity.ID.String(), string(next.State), len(next.Memberships), len(next.Roles), activeCompany)

	e.publish(events.ContextResolved{
		BaseEvent:       events.NewBaseEvent(),
		IdentityID:      identity.ID,
		TenantID:        next.TenantID,
		ActiveCompanyID: next.ActiveCompanyID,
		State:           string(next.State),
		Memberships:     len(next.Memberships),
		Roles:           len(next.Roles),
	})
}

// clear resets the context and erases the persisted selection. Any attempt
// in flight is superseded.
func (e *Engine) clear(ctx context.Context) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	e.seq++
	e.checked = true
	var previous *domain.Identity
	if e.snap.Identity != nil {
		id := *e.snap.Identity
		previous = &id
	}
	e.identity = nil
	e.snap = domain.Empty()
	e.releaseWaitersLocked(e.seq)
	e.broadcastLocked()
	e.mu.Unlock()

	if err := e.selection.Clear(ctx); err != nil {
		e.log.Warn("clear persisted company selection failed", "error", err)
	}

	if previous != nil {
		e.publish(events.ContextCleared{BaseEvent: events.NewBaseEvent(), IdentityID: previous.ID})
	}
}

// SelectCompany makes companyID the active company if it matches an active
// membership of the current context. Any other id is ignored: the context
// and the persisted selection stay untouched and false is returned.
func (e *Engine) SelectCompany(ctx context.Context, companyID uuid.UUID) bool {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	if e.snap.Identity == nil || !e.snap.HasMembership(companyID) {
		e.mu.Unlock()
		e.log.Debug("company selection rejected", "company_id", companyID.String())
		return false
	}
	changed := e.snap.ActiveCompanyID == nil || *e.snap.ActiveCompanyID != companyID
	id := companyID
	e.snap.ActiveCompanyID = &id
	identityID := e.snap.Identity.ID
	var tenantID *uuid.UUID
	if e.snap.TenantID != nil {
		t := *e.snap.TenantID
		tenantID = &t
	}
	if changed {
		e.broadcastLocked()
	}
	e.mu.Unlock()

	if err := e.selection.Set(ctx, companyID); err != nil {
		e.log.Warn("persist company selection failed", "identity_id", identityID.String(), "error", err)
	}

	if changed {
		e.publish(events.CompanySelected{
			BaseEvent:  events.NewBaseEvent(),
			IdentityID: identityID,
			TenantID:   tenantID,
			CompanyID:  companyID,
		})
	}
	return true
}

// Refresh re-resolves the context of the current identity and waits until
// that attempt is applied or superseded. Without an identity it returns the
// current snapshot immediately.
func (e *Engine) Refresh(ctx context.Context) domain.Snapshot {
	e.mu.Lock()
	var identity *domain.Identity
	if e.identity != nil {
		id := *e.identity
		identity = &id
	}
	e.mu.Unlock()

	if identity == nil {
		return e.Snapshot()
	}

	done := e.beginAttempt(*identity)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return e.Snapshot()
}

// SignIn delegates to the identity source. The resulting SIGNED_IN event
// drives resolution.
func (e *Engine) SignIn(ctx context.Context, email, password string) error {
	return e.source.SignIn(ctx, email, password)
}

// SignOut clears the context locally and then signs out at the identity
// source. The context is cleared even if the identity source fails.
func (e *Engine) SignOut(ctx context.Context) error {
	e.clear(ctx)
	return e.source.SignOut(ctx)
}

// Snapshot returns a copy of the current context.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Clone()
}

// HasRole reports whether the current context holds a role named name.
func (e *Engine) HasRole(name domain.RoleName) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.HasRole(name)
}

// IsSuperAdmin reports whether the current context holds super_admin.
func (e *Engine) IsSuperAdmin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.IsSuperAdmin()
}

// IsTenantAdmin reports whether the current context holds tenant_admin or
// super_admin.
func (e *Engine) IsTenantAdmin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.IsTenantAdmin()
}

// IdentityID returns the identity the engine is resolving for, if any.
func (e *Engine) IdentityID() (uuid.UUID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == nil {
		return uuid.Nil, false
	}
	return e.identity.ID, true
}

// Subscribe returns a channel that always holds the latest snapshot. The
// current snapshot is delivered immediately. Slow readers only miss
// intermediate values. cancel closes the channel.
func (e *Engine) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	ch <- e.snap.Clone()
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if sub, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(sub)
			}
		})
	}
}

// Settled waits until the context is no longer loading and returns it.
func (e *Engine) Settled(ctx context.Context) (domain.Snapshot, error) {
	ch, cancel := e.Subscribe()
	defer cancel()
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return e.Snapshot(), context.Canceled
			}
			if !snap.Loading {
				return snap, nil
			}
		case <-ctx.Done():
			return e.Snapshot(), ctx.Err()
		}
	}
}

// Close detaches from the identity source, waits for in-flight attempts and
// closes all subscriptions.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsubscribe := e.unsubscribe
	e.seq++
	e.releaseWaitersLocked(e.seq)
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.mu.Unlock()
}

func (e *Engine) isCurrent(seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return seq == e.seq && !e.closed
}

func (e *Engine) finishAttempt(seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if done, ok := e.waiters[seq]; ok {
		delete(e.waiters, seq)
		close(done)
	}
}

// releaseWaitersLocked unblocks every attempt up to and including seq.
func (e *Engine) releaseWaitersLocked(seq uint64) {
	for s, done := range e.waiters {
		if s <= seq {
			delete(e.waiters, s)
			close(done)
		}
	}
}

func (e *Engine) broadcastLocked() {
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e.snap.Clone():
		default:
		}
	}
}

func (e *Engine) publish(event events.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(e.baseCtx, event)
}
