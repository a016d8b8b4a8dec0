package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session  Session
	lastSeen time.Time
}

// MemoryStore keeps sessions in process for single-instance deployments
// and tests. Entries idle for longer than the TTL are treated as absent.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	return &MemoryStore{ttl: idleTTL, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Get(_ context.Context, browserSessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[browserSessionID]
	if !ok {
		return nil, nil
	}
	now := m.now()
	if m.ttl > 0 && now.Sub(e.lastSeen) > m.ttl {
		delete(m.entries, browserSessionID)
		return nil, nil
	}
	e.lastSeen = now
	m.entries[browserSessionID] = e
	s := e.session
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, browserSessionID string, s Session) error {
	if err := s.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[browserSessionID] = memoryEntry{session: s, lastSeen: m.now()}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, browserSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, browserSessionID)
	return nil
}

// ExpireIdle drops sessions idle for longer than the TTL at now and returns
// how many were dropped.
func (m *MemoryStore) ExpireIdle(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if now.Sub(e.lastSeen) > m.ttl {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Store = (*MemoryStore)(nil)
