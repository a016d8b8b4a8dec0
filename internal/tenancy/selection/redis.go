package selection

import (
	"context"
	"errors"
	"time"

	"portal_context_backend/internal/tenancy/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one browser session's selection in Redis. Every read
// and write slides the expiry forward by ttl.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a store for browserSessionID.
func NewRedisStore(client redis.Cmdable, browserSessionID string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: Key(browserSessionID), ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context) (*uuid.UUID, error) {
	raw, err := s.client.GetEx(ctx, s.key, s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		// Unreadable values are treated as absent; resolution overwrites them.
		return nil, nil
	}
	return &id, nil
}

func (s *RedisStore) Set(ctx context.Context, companyID uuid.UUID) error {
	return s.client.Set(ctx, s.key, companyID.String(), s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// RedisProvider creates RedisStores sharing one client.
type RedisProvider struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisProvider creates a provider whose stores expire after ttl of inactivity.
func NewRedisProvider(client redis.Cmdable, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl}
}

func (p *RedisProvider) For(browserSessionID string) ports.SelectionStore {
	return NewRedisStore(p.client, browserSessionID, p.ttl)
}

// Forget is a no-op; Redis expires abandoned selections on its own.
func (p *RedisProvider) Forget(string) {}

var (
	_ ports.SelectionStore = (*RedisStore)(nil)
	_ Provider             = (*RedisProvider)(nil)
)
