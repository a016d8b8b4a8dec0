package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "portal:auth:session:"

// RedisStore keeps sessions as JSON with a sliding idle expiry.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.Cmdable, idleTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: idleTTL}
}

func (r *RedisStore) key(browserSessionID string) string {
	return keyPrefix + browserSessionID
}

func (r *RedisStore) Get(ctx context.Context, browserSessionID string) (*Session, error) {
	val, err := r.client.GetEx(ctx, r.key(browserSessionID), r.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, browserSessionID string, s Session) error {
	if err := s.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	return r.client.Set(ctx, r.key(browserSessionID), data, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, browserSessionID string) error {
	return r.client.Del(ctx, r.key(browserSessionID)).Err()
}

var _ Store = (*RedisStore)(nil)
