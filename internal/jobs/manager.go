package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, err
	}

	m.log.DebugContext(ctx, "task enqueued",
		slog.String("task_type", task.Type()),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
	)
	return info, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}

// QueueNotifier enqueues payment notifications.
type QueueNotifier struct {
	manager  Manager
	maxRetry int
}

// NewQueueNotifier creates a notifier that retries each delivery up to maxRetry times.
func NewQueueNotifier(manager Manager, maxRetry int) *QueueNotifier {
	return &QueueNotifier{manager: manager, maxRetry: maxRetry}
}

// NotifyPaymentCredited queues the confirmation for a settled invoice.
// A notification already queued for the same invoice counts as success.
func (n *QueueNotifier) NotifyPaymentCredited(ctx context.Context, p PaymentCreditedPayload) error {
	task, err := NewPaymentCreditedTask(p, n.maxRetry)
	if err != nil {
		return fmt.Errorf("build payment notification: %w", err)
	}

	if _, err := n.manager.Enqueue(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue payment notification: %w", err)
	}
	return nil
}
