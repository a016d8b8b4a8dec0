package scheduler

import (
	"context"
	"fmt"

	"portal_context_backend/platform/config"
	"portal_context_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Notifier delivers an invalidation to the API instances.
type Notifier interface {
	Invalidate(ctx context.Context, identityID uuid.UUID, reason string) error
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	notifier Notifier
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, notifier Notifier, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := newWorker(notifier, log)
	w.server = server
	return w, nil
}

func newWorker(notifier Notifier, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Discard()
	}
	w := &Worker{
		mux:      asynq.NewServeMux(),
		notifier: notifier,
		log:      log,
	}
	w.mux.HandleFunc(TaskContextRefresh, w.handleContextRefresh)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleContextRefresh(ctx context.Context, task *asynq.Task) error {
	payload, identityID, err := ParseContextRefreshPayload(task)
	if err != nil {
		// Malformed payloads are not retried.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if err := w.notifier.Invalidate(ctx, identityID, payload.Reason); err != nil {
		return fmt.Errorf("publish context refresh: %w", err)
	}
	w.log.Info("context refresh published", "identity_id", identityID.String(), "reason", payload.Reason)
	return nil
}
