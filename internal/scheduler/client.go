package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"portal_context_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	contextRefreshMaxRetry = 3
	contextRefreshTimeout  = 30 * time.Second
)

type Client struct {
	client *asynq.Client
	queue  string
}

// ContextRefreshScheduler queues a refresh of every live context of an identity.
type ContextRefreshScheduler interface {
	Invalidate(ctx context.Context, identityID uuid.UUID, reason string) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Invalidate enqueues a context refresh for identityID. The worker fans it
// out to every API instance.
func (c *Client) Invalidate(ctx context.Context, identityID uuid.UUID, reason string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewContextRefreshTask(ContextRefreshPayload{IdentityID: identityID.String(), Reason: reason})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(contextRefreshMaxRetry),
		asynq.Timeout(contextRefreshTimeout),
	)
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

var _ ContextRefreshScheduler = (*Client)(nil)
