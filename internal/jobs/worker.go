package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker provides APIs to register handlers and control the background worker lifecycle.
type Worker interface {
	RegisterHandler(taskType string, handler asynq.Handler)
	Start() error
	Shutdown()
}

type worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

var _ Worker = (*worker)(nil)

// NewWorker constructs a Worker backed by an asynq.Server instance.
func NewWorker(redisOpt asynq.RedisConnOpt, concurrency int, log *slog.Logger) Worker {
	if log == nil {
		log = slog.Default()
	}

	w := &worker{
		mux: asynq.NewServeMux(),
		log: log.With(slog.String("component", "jobs")),
	}
	w.server = asynq.NewServer(redisOpt, asynq.Config{
		Queues:         Queues,
		Concurrency:    concurrency,
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		ErrorHandler:   asynq.ErrorHandlerFunc(w.handleError),
		Logger:         NewAsynqLogger(w.log),
	})

	return w
}

// RegisterHandler wires a task type to the provided handler.
func (w *worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
}

// Start begins processing in background goroutines. Unlike Run it does not install signal handlers.
func (w *worker) Start() error {
	w.log.Info("jobs worker: starting processing loop")

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start jobs worker: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the worker, waiting for active tasks.
func (w *worker) Shutdown() {
	w.log.Info("jobs worker: shutting down")
	w.server.Shutdown()
}

func (w *worker) handleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	attrs := []any{
		slog.String("task_type", task.Type()),
		slog.Int("retried", retried),
		slog.Int("max_retry", maxRetry),
		slog.Any("error", err),
	}
	if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
		w.log.ErrorContext(ctx, "task failed permanently", attrs...)
		return
	}
	w.log.WarnContext(ctx, "task failed, will retry", attrs...)
}
