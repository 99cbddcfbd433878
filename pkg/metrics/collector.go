// Package metrics exposes the Prometheus collectors used across the bot.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	rewardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_rewards_total",
			Help: "Task reward claims by outcome",
		},
		[]string{"result"},
	)
	invoicesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoices_created_total",
			Help: "Invoice creation attempts by pack and result",
		},
		[]string{"pack", "result"},
	)
	settlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_settlements_total",
			Help: "Invoice settlement attempts by result",
		},
		[]string{"result"},
	)
	reconcilePassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_pass_duration_seconds",
			Help:    "Duration of a reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)
	reconcileInvoicesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_invoices_total",
			Help: "Invoices handled by reconciliation passes by outcome",
		},
		[]string{"outcome"},
	)
	gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_requests_total",
			Help: "Requests to the payment gateway by method and result",
		},
		[]string{"method", "result"},
	)
	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Payment gateway request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Payment confirmation deliveries by result",
		},
		[]string{"result"},
	)
	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Updates rejected by the rate limiter by scope",
		},
		[]string{"scope"},
	)
	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
	usersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "users_total",
			Help: "Number of registered users",
		},
	)
	invoicesByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "invoices_by_status",
			Help: "Number of invoices per status",
		},
		[]string{"status"},
	)
	coinsSoldTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coins_sold",
			Help: "Total coins credited through paid invoices",
		},
	)
)

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	command = orUnknown(command)
	botCommandsTotal.WithLabelValues(command, orUnknown(status)).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	errorsTotal.WithLabelValues(orUnknown(errType), orUnknown(severity)).Inc()
}

func RecordReward(result string) {
	rewardsTotal.WithLabelValues(orUnknown(result)).Inc()
}

func RecordInvoiceCreated(pack, result string) {
	invoicesCreatedTotal.WithLabelValues(orUnknown(pack), orUnknown(result)).Inc()
}

func RecordSettlement(result string) {
	settlementsTotal.WithLabelValues(orUnknown(result)).Inc()
}

// ObserveReconcilePass records the duration of one pass and how many invoices ended in each outcome.
func ObserveReconcilePass(duration time.Duration, outcomes map[string]int) {
	reconcilePassDuration.Observe(duration.Seconds())
	for outcome, n := range outcomes {
		if n > 0 {
			reconcileInvoicesTotal.WithLabelValues(outcome).Add(float64(n))
		}
	}
}

func RecordGatewayCall(method, result string, duration time.Duration) {
	method = orUnknown(method)
	gatewayRequestsTotal.WithLabelValues(method, orUnknown(result)).Inc()
	gatewayRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordNotification(result string) {
	notificationsTotal.WithLabelValues(orUnknown(result)).Inc()
}

func RecordRateLimited(scope string) {
	rateLimitedTotal.WithLabelValues(orUnknown(scope)).Inc()
}

func SetCircuitState(name string, state int) {
	circuitState.WithLabelValues(orUnknown(name)).Set(float64(state))
}

// Snapshot is a point-in-time view of business totals.
type Snapshot struct {
	Users           int64
	PendingInvoices int64
	PaidInvoices    int64
	CoinsSold       int64
}

// SnapshotSource produces business totals, typically from the database.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// StatsCollector refreshes the business gauges from a SnapshotSource.
type StatsCollector struct {
	source SnapshotSource
}

// NewStatsCollector builds a collector bound to source.
func NewStatsCollector(source SnapshotSource) *StatsCollector {
	return &StatsCollector{source: source}
}

// Collect reads one snapshot and updates the gauges.
func (c *StatsCollector) Collect(ctx context.Context) error {
	if c == nil || c.source == nil {
		return nil
	}

	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		return err
	}

	usersTotal.Set(float64(snap.Users))
	invoicesByStatus.WithLabelValues("pending").Set(float64(snap.PendingInvoices))
	invoicesByStatus.WithLabelValues("paid").Set(float64(snap.PaidInvoices))
	coinsSoldTotal.Set(float64(snap.CoinsSold))

	return nil
}
