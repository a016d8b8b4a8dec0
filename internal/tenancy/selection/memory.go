package selection

import (
	"context"
	"sync"
	"time"

	"portal_context_backend/internal/tenancy/ports"

	"github.com/google/uuid"
)

// MemoryStore is a single in-process slot.
type MemoryStore struct {
	mu       sync.Mutex
	value    *uuid.UUID
	now      func() time.Time
	lastUsed time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, lastUsed: time.Now()}
}

func (s *MemoryStore) Get(context.Context) (*uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
	if s.value == nil {
		return nil, nil
	}
	v := *s.value
	return &v, nil
}

func (s *MemoryStore) Set(_ context.Context, companyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
	s.value = &companyID
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
	s.value = nil
	return nil
}

func (s *MemoryStore) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// MemoryProvider keeps one MemoryStore per browser session for
// single-instance deployments and tests. Stores unused for longer than the
// idle TTL are dropped by ExpireIdle, mirroring the Redis key expiry.
type MemoryProvider struct {
	ttl time.Duration

	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryProvider creates an empty provider. A zero idleTTL never expires.
func NewMemoryProvider(idleTTL time.Duration) *MemoryProvider {
	return &MemoryProvider{ttl: idleTTL, stores: make(map[string]*MemoryStore)}
}

func (p *MemoryProvider) For(browserSessionID string) ports.SelectionStore {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[browserSessionID]
	if !ok {
		s = NewMemoryStore()
		p.stores[browserSessionID] = s
	}
	return s
}

func (p *MemoryProvider) Forget(browserSessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stores, browserSessionID)
}

// ExpireIdle drops stores last used more than the idle TTL before now and
// returns how many were dropped.
func (p *MemoryProvider) ExpireIdle(now time.Time) int {
	if p.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-p.ttl)

	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, s := range p.stores {
		if s.idleSince().Before(cutoff) {
			delete(p.stores, id)
			n++
		}
	}
	return n
}

// Len returns the number of sessions with a store.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stores)
}

var (
	_ ports.SelectionStore = (*MemoryStore)(nil)
	_ Provider             = (*MemoryProvider)(nil)
)
