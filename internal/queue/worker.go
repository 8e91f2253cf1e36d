package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zombar/guardian/internal/document"
	"github.com/zombar/guardian/internal/models"
)

// Extractor runs document text extraction
type Extractor interface {
	Extract(ctx context.Context, documentID string) (*document.Extraction, error)
}

// Notifier delivers a critical safety event to on-call staff
type Notifier interface {
	Notify(ctx context.Context, event *models.CriticalSafetyEvent) error
}

// Worker wraps the Asynq server for processing tasks
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	extractor   Extractor
	notifier    Notifier
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	Concurrency   int
}

// NewWorker creates a new queue worker. notifier may be nil, in which case
// safety alerts are only logged.
func NewWorker(cfg WorkerConfig, extractor Extractor, notifier Notifier, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}

	serverCfg := asynq.Config{
		Concurrency: cfg.Concurrency,

		// Alerts are drained ahead of extraction but do not starve it
		Queues:         queuePriorities,
		StrictPriority: false,

		RetryDelayFunc:  retryDelay,
		ShutdownTimeout: 30 * time.Second,

		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)

			logger.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
				"retry_count", retried,
				"max_retries", maxRetry,
			)
		}),
	}

	w := &Worker{
		server:      asynq.NewServer(redisOpt, serverCfg),
		mux:         asynq.NewServeMux(),
		extractor:   extractor,
		notifier:    notifier,
		concurrency: cfg.Concurrency,
		logger:      logger,
		now:         time.Now,
	}

	w.registerHandlers()

	return w
}

// registerHandlers registers all task handlers with the worker
func (w *Worker) registerHandlers() {
	w.mux.HandleFunc(TypeExtractDocument, w.handleExtractDocument)
	w.mux.HandleFunc(TypeSafetyAlert, w.handleSafetyAlert)
}

// Start starts the worker to begin processing tasks. It does not block.
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queues", queuePriorities,
		"alerts_configured", w.notifier != nil,
	)

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}

var (
	alertDelays = []time.Duration{
		10 * time.Second,
		30 * time.Second,
		1 * time.Minute,
		2 * time.Minute,
		5 * time.Minute,
	}
	standardDelays = []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	}
)

// retryDelay retries alerts quickly and everything else on a slower schedule
func retryDelay(n int, _ error, task *asynq.Task) time.Duration {
	delays := standardDelays
	if task.Type() == TypeSafetyAlert {
		delays = alertDelays
	}
	if n < len(delays) {
		return delays[n]
	}
	return delays[len(delays)-1]
}
