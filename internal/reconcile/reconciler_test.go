package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	apperrors "github.com/narvelay/daily-tasks-bot/internal/errors"
	"github.com/narvelay/daily-tasks-bot/internal/payment/cryptopay"
	"github.com/narvelay/daily-tasks-bot/internal/testutil"
	"github.com/narvelay/daily-tasks-bot/internal/userlock"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *testutil.MemoryStore
	gateway  *testutil.FakeGateway
	notifier *testutil.FakeNotifier
	locker   *userlock.MemoryLocker
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    testutil.NewMemoryStore(),
		gateway:  testutil.NewFakeGateway(),
		notifier: &testutil.FakeNotifier{},
		locker:   userlock.NewMemoryLocker(),
	}
	f.rec = New(f.store, f.gateway, f.locker, f.notifier, config.ReconcileConfig{
		Interval:      30 * time.Second,
		MaxPendingAge: 72 * time.Hour,
		BatchSize:     100,
	}, testutil.Logger(), WithClock(func() time.Time { return testNow }))

	require.NoError(t, f.store.CreateUser(context.Background(), &domain.User{ID: 42}))
	return f
}

func (f *fixture) invoice(t *testing.T, externalID, coins int64, age time.Duration, providerStatus string) *domain.Invoice {
	t.Helper()

	inv := &domain.Invoice{
		ExternalID: externalID,
		UserID:     42,
		PackID:     "pack1",
		Coins:      coins,
		Asset:      "TON",
		Amount:     decimal.RequireFromString("0.05"),
		CreatedAt:  testNow.Add(-age),
	}
	require.NoError(t, f.store.CreateInvoice(context.Background(), inv))
	f.gateway.SetStatus(externalID, providerStatus)
	return inv
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	u, err := f.store.FindUser(context.Background(), 42)
	require.NoError(t, err)
	return u.Balance
}

func TestRunOnce_SettlesPaidInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, 1, 100, time.Minute, cryptopay.StatusPaid)

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Settled)

	assert.Equal(t, int64(100), f.balance(t))
	stored, err := f.store.FindInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, stored.Status)
	assert.Equal(t, testNow, *stored.PaidAt)

	sent := f.notifier.Payloads()
	require.Len(t, sent, 1)
	assert.Equal(t, inv.ID, sent[0].InvoiceID)
	assert.Equal(t, int64(42), sent[0].UserID)
	assert.Equal(t, int64(100), sent[0].Coins)
	assert.Equal(t, int64(100), sent[0].Balance)
}

func TestRunOnce_LeavesUnpaidInvoicesPending(t *testing.T) {
	f := newFixture(t)
	active := f.invoice(t, 1, 100, time.Minute, cryptopay.StatusActive)
	expired := f.invoice(t, 2, 100, time.Minute, cryptopay.StatusExpired)

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unpaid)

	for _, inv := range []*domain.Invoice{active, expired} {
		stored, err := f.store.FindInvoice(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoicePending, stored.Status)
	}
	assert.Zero(t, f.balance(t))
	assert.Empty(t, f.notifier.Payloads())
}

func TestRunOnce_GatewayFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	broken := f.invoice(t, 1, 100, 2*time.Minute, cryptopay.StatusPaid)
	f.gateway.FailStatus(1, apperrors.NewExternalAPIError("cryptopay", errors.New("timeout")))
	healthy := f.invoice(t, 2, 300, time.Minute, cryptopay.StatusPaid)

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, int64(300), f.balance(t))

	stored, _ := f.store.FindInvoice(context.Background(), broken.ID)
	assert.Equal(t, domain.InvoicePending, stored.Status)
	stored, _ = f.store.FindInvoice(context.Background(), healthy.ID)
	assert.Equal(t, domain.InvoicePaid, stored.Status)

	f.gateway.FailStatus(1, nil)
	report, err = f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, int64(400), f.balance(t))
}

func TestRunOnce_SecondPassIsNoop(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, 1, 100, time.Minute, cryptopay.StatusPaid)

	_, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Checked)
	assert.Equal(t, int64(100), f.balance(t))
	assert.Len(t, f.store.Ledger(), 1)
	assert.Len(t, f.notifier.Payloads(), 1)
}

func TestRunOnce_ConcurrentPassesCreditOnce(t *testing.T) {
	f := newFixture(t)
	for i := int64(1); i <= 5; i++ {
		f.invoice(t, i, 100, time.Duration(i)*time.Minute, cryptopay.StatusPaid)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = f.rec.RunOnce(context.Background())
			}
		}()
	}
	wg.Wait()

	// Passes that met a held lock skipped the invoice; a final pass settles whatever is left.
	_, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(500), f.balance(t))
	assert.Len(t, f.store.Ledger(), 5)
	assert.Len(t, f.notifier.Payloads(), 5)
}

func TestRunOnce_DefersWhileUserLocked(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, 1, 100, time.Minute, cryptopay.StatusPaid)

	release, err := f.locker.Lock(context.Background(), 42)
	require.NoError(t, err)

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, f.balance(t))

	release()
	report, err = f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)

	stored, _ := f.store.FindInvoice(context.Background(), inv.ID)
	assert.Equal(t, domain.InvoicePaid, stored.Status)
}

func TestRunOnce_SkipsInvoicesOutsideWindow(t *testing.T) {
	f := newFixture(t)
	old := f.invoice(t, 1, 100, 73*time.Hour, cryptopay.StatusPaid)

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Equal(t, int64(1), report.Stale)
	assert.Zero(t, f.gateway.StatusCalls)

	stored, _ := f.store.FindInvoice(context.Background(), old.ID)
	assert.Equal(t, domain.InvoicePending, stored.Status)
}

func TestRunOnce_RespectsBatchSizeOldestFirst(t *testing.T) {
	f := newFixture(t)
	f.rec.cfg.BatchSize = 2
	f.invoice(t, 1, 100, time.Minute, cryptopay.StatusPaid)
	f.invoice(t, 2, 300, 3*time.Minute, cryptopay.StatusPaid)
	f.invoice(t, 3, 1000, 2*time.Minute, cryptopay.StatusPaid)

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Settled)
	assert.Equal(t, int64(1300), f.balance(t))
}

func TestRunOnce_NotifyFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = errors.New("redis down")
	inv := f.invoice(t, 1, 100, time.Minute, cryptopay.StatusPaid)

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)

	stored, err := f.store.FindInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, stored.Status)
	assert.Equal(t, 1, stored.NotifyAttempts)
	assert.Contains(t, stored.NotifyError, "redis down")
	assert.Equal(t, int64(100), f.balance(t))
}

func TestRunOnce_SettleFailureCounted(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, 1, 100, time.Minute, cryptopay.StatusPaid)
	f.store.FailSettle = errors.New("deadlock detected")

	report, err := f.rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, f.balance(t))
	assert.Empty(t, f.notifier.Payloads())
}
