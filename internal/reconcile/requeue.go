package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvelay/daily-tasks-bot/internal/jobs"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
)

// requeueGrace leaves freshly settled invoices to the enqueue that follows settlement.
const requeueGrace = 2 * time.Minute

// RequeueNotifications queues the confirmation again for paid invoices that were
// never delivered, such as after a crash between settlement and enqueue. Invoices
// with maxAttempts recorded delivery attempts are left alone. The queue accepts one
// task per invoice, so a confirmation still in flight is not sent twice.
func (r *Reconciler) RequeueNotifications(ctx context.Context, maxAttempts int) (int, error) {
	undelivered, err := r.invoices.ListUndelivered(ctx, r.now().Add(-requeueGrace), maxAttempts, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list undelivered invoices: %w", err)
	}

	queued := 0
	for _, u := range undelivered {
		if ctx.Err() != nil {
			break
		}

		err := r.notifier.NotifyPaymentCredited(ctx, jobs.PaymentCreditedPayload{
			InvoiceID:  u.InvoiceID,
			ExternalID: u.ExternalID,
			UserID:     u.UserID,
			Coins:      u.Coins,
			Balance:    u.Balance,
		})
		if err != nil {
			r.log.WarnContext(ctx, "failed to requeue payment notification",
				slog.Int64("invoice_id", u.InvoiceID),
				slog.Any("error", err),
			)
			if recErr := r.invoices.RecordNotifyFailure(ctx, u.InvoiceID, "requeue: "+err.Error()); recErr != nil {
				r.log.ErrorContext(ctx, "failed to record notification failure", slog.Any("error", recErr))
			}
			continue
		}
		queued++
		metrics.RecordNotification("requeued")
	}

	if queued > 0 {
		r.log.InfoContext(ctx, "undelivered payment notifications requeued", slog.Int("count", queued))
	}
	return queued, ctx.Err()
}
