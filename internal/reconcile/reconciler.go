// Package reconcile polls the payment provider for pending invoices and settles the paid ones.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/jobs"
	"github.com/narvelay/daily-tasks-bot/internal/payment/cryptopay"
	"github.com/narvelay/daily-tasks-bot/internal/repository"
	"github.com/narvelay/daily-tasks-bot/internal/userlock"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
)

// StatusChecker queries the provider status of an invoice.
type StatusChecker interface {
	GetInvoiceStatus(ctx context.Context, invoiceID int64) (string, error)
}

// Notifier queues the confirmation for a settled invoice.
type Notifier interface {
	NotifyPaymentCredited(ctx context.Context, p jobs.PaymentCreditedPayload) error
}

// InvoiceStore is the persistence surface the reconciler needs.
type InvoiceStore interface {
	ListPending(ctx context.Context, since time.Time, limit int) ([]domain.Invoice, error)
	CountPendingBefore(ctx context.Context, before time.Time) (int64, error)
	Settle(ctx context.Context, id int64, at time.Time) (repository.Settlement, error)
	RecordNotifyFailure(ctx context.Context, id int64, reason string) error
	ListUndelivered(ctx context.Context, paidBefore time.Time, maxAttempts, limit int) ([]repository.Undelivered, error)
}

// Report summarizes one pass.
type Report struct {
	Checked        int
	Settled        int
	Unpaid         int
	AlreadySettled int
	Skipped        int
	Failed         int
	// Stale counts pending invoices older than the polling window.
	Stale int64
}

func (r Report) outcomes() map[string]int {
	return map[string]int{
		"settled":         r.Settled,
		"unpaid":          r.Unpaid,
		"already_settled": r.AlreadySettled,
		"skipped_locked":  r.Skipped,
		"failed":          r.Failed,
	}
}

// Reconciler runs reconciliation passes. A single pass is sequential.
type Reconciler struct {
	invoices InvoiceStore
	gateway  StatusChecker
	locker   userlock.Locker
	notifier Notifier
	cfg      config.ReconcileConfig
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func New(invoices InvoiceStore, gateway StatusChecker, locker userlock.Locker, notifier Notifier, cfg config.ReconcileConfig, log *slog.Logger, opts ...Option) *Reconciler {
	if log == nil {
		log = slog.Default()
	}

	r := &Reconciler{
		invoices: invoices,
		gateway:  gateway,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With(slog.String("component", "reconcile")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce checks every pending invoice inside the polling window, oldest first.
// A failure on one invoice is counted and does not stop the pass.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report
	defer func() {
		metrics.ObserveReconcilePass(time.Since(start), report.outcomes())
	}()

	since := r.now().Add(-r.cfg.MaxPendingAge)

	stale, err := r.invoices.CountPendingBefore(ctx, since)
	if err != nil {
		r.log.WarnContext(ctx, "failed to count stale invoices", slog.Any("error", err))
	}
	report.Stale = stale

	pending, err := r.invoices.ListPending(ctx, since, r.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list pending invoices: %w", err)
	}

	for _, inv := range pending {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		r.check(ctx, inv, &report)
	}

	if report.Checked > 0 || report.Stale > 0 {
		r.log.InfoContext(ctx, "reconciliation pass finished",
			slog.Int("checked", report.Checked),
			slog.Int("settled", report.Settled),
			slog.Int("unpaid", report.Unpaid),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed),
			slog.Int64("stale", report.Stale),
			slog.Duration("took", time.Since(start)),
		)
	}

	return report, ctx.Err()
}

func (r *Reconciler) check(ctx context.Context, inv domain.Invoice, report *Report) {
	log := r.log.With(
		slog.Int64("invoice_id", inv.ID),
		slog.Int64("external_id", inv.ExternalID),
		slog.Int64("telegram_id", inv.UserID),
	)

	status, err := r.gateway.GetInvoiceStatus(ctx, inv.ExternalID)
	if err != nil {
		report.Failed++
		log.WarnContext(ctx, "failed to query invoice status", slog.Any("error", err))
		return
	}
	if status != cryptopay.StatusPaid {
		report.Unpaid++
		return
	}

	release, err := r.locker.Lock(ctx, inv.UserID)
	switch {
	case errors.Is(err, userlock.ErrLocked):
		report.Skipped++
		metrics.RecordSettlement("skipped_locked")
		log.DebugContext(ctx, "user locked, settlement deferred to next pass")
		return
	case err != nil:
		log.WarnContext(ctx, "user lock unavailable, settling without it", slog.Any("error", err))
	default:
		defer release()
	}

	settlement, err := r.invoices.Settle(ctx, inv.ID, r.now())
	if err != nil {
		report.Failed++
		metrics.RecordSettlement("failed")
		log.ErrorContext(ctx, "failed to settle invoice", slog.Any("error", err))
		return
	}
	if !settlement.Settled {
		report.AlreadySettled++
		metrics.RecordSettlement("already_settled")
		return
	}

	report.Settled++
	metrics.RecordSettlement("settled")
	log.InfoContext(ctx, "invoice settled",
		slog.Int64("coins", settlement.Coins),
		slog.Int64("balance", settlement.Balance),
	)

	err = r.notifier.NotifyPaymentCredited(ctx, jobs.PaymentCreditedPayload{
		InvoiceID:  inv.ID,
		ExternalID: inv.ExternalID,
		UserID:     settlement.UserID,
		Coins:      settlement.Coins,
		Balance:    settlement.Balance,
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to queue payment notification", slog.Any("error", err))
		if recErr := r.invoices.RecordNotifyFailure(ctx, inv.ID, "enqueue: "+err.Error()); recErr != nil {
			log.ErrorContext(ctx, "failed to record notification failure", slog.Any("error", recErr))
		}
	}
}
