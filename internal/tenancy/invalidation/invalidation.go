// Package invalidation fans context refreshes out to every API instance.
// When an identity's memberships or roles change, one instance publishes a
// message and every instance re-resolves the live contexts of that identity.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"portal_context_backend/internal/events"
	"portal_context_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel carrying invalidation messages.
const Channel = "portal:tenancy:invalidate"

// Message is the wire format of one invalidation.
type Message struct {
	IdentityID uuid.UUID `json:"identityId"`
	Reason     string    `json:"reason,omitempty"`
}

// Refresher re-resolves the live contexts of an identity.
type Refresher interface {
	RefreshIdentity(ctx context.Context, identityID uuid.UUID) int
}

// Notifier announces that an identity's context is stale.
type Notifier interface {
	Invalidate(ctx context.Context, identityID uuid.UUID, reason string) error
}

// RedisPublisher publishes invalidations for all instances.
type RedisPublisher struct {
	client redis.Cmdable
}

// NewRedisPublisher creates a publisher on client.
func NewRedisPublisher(client redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Invalidate(ctx context.Context, identityID uuid.UUID, reason string) error {
	payload, err := json.Marshal(Message{IdentityID: identityID, Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// LocalNotifier refreshes in-process only. It serves single-instance
// deployments running without Redis.
type LocalNotifier struct {
	refresher Refresher
	bus       events.Bus
}

// NewLocalNotifier creates a notifier that refreshes through refresher.
func NewLocalNotifier(refresher Refresher, bus events.Bus) *LocalNotifier {
	return &LocalNotifier{refresher: refresher, bus: bus}
}

func (n *LocalNotifier) Invalidate(ctx context.Context, identityID uuid.UUID, reason string) error {
	apply(ctx, n.refresher, n.bus, Message{IdentityID: identityID, Reason: reason})
	return nil
}

// Listener applies invalidations published by any instance.
type Listener struct {
	client    redis.UniversalClient
	refresher Refresher
	bus       events.Bus
	log       *logger.Logger
}

// NewListener creates a listener that refreshes through refresher.
func NewListener(client redis.UniversalClient, refresher Refresher, bus events.Bus, log *logger.Logger) *Listener {
	if log == nil {
		log = logger.Discard()
	}
	return &Listener{client: client, refresher: refresher, bus: bus, log: log}
}

// Run subscribes to Channel and applies messages until ctx is done. It
// returns once the subscription is closed.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, Channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	l.log.Info("context invalidation listener started", "channel", Channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg.IdentityID == uuid.Nil {
		l.log.Warn("ignoring malformed invalidation", "payload", payload)
		return
	}
	n := apply(ctx, l.refresher, l.bus, msg)
	l.log.Debug("invalidation applied", "identity_id", msg.IdentityID.String(), "engines", n)
}

func apply(ctx context.Context, refresher Refresher, bus events.Bus, msg Message) int {
	n := refresher.RefreshIdentity(ctx, msg.IdentityID)
	if bus != nil {
		bus.Publish(ctx, events.ContextInvalidated{
			BaseEvent:  events.NewBaseEvent(),
			IdentityID: msg.IdentityID,
			Reason:     msg.Reason,
		})
	}
	return n
}

var (
	_ Notifier = (*RedisPublisher)(nil)
	_ Notifier = (*LocalNotifier)(nil)
)
