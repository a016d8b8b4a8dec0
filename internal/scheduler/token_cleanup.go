package scheduler

import (
	"context"
	"time"

	"portal_context_backend/platform/logger"
)

const defaultTokenCleanupInterval = time.Hour

// TokenPurger deletes refresh tokens past their expiry.
type TokenPurger interface {
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// RefreshTokenCleanup periodically removes expired refresh tokens.
type RefreshTokenCleanup struct {
	purger   TokenPurger
	log      *logger.Logger
	interval time.Duration
}

func NewRefreshTokenCleanup(purger TokenPurger, log *logger.Logger, interval time.Duration) *RefreshTokenCleanup {
	if interval <= 0 {
		interval = defaultTokenCleanupInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RefreshTokenCleanup{purger: purger, log: log, interval: interval}
}

func (c *RefreshTokenCleanup) Run(ctx context.Context) {
	if c == nil || c.purger == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *RefreshTokenCleanup) cleanup(ctx context.Context) {
	deleted, err := c.purger.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		c.log.Warn("refresh token cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("refresh token cleanup deleted expired tokens", "deleted", deleted)
	}
}
