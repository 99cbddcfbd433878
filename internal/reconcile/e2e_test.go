package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvelay/daily-tasks-bot/internal/billing"
	"github.com/narvelay/daily-tasks-bot/internal/catalog"
	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/jobs"
	jobhandlers "github.com/narvelay/daily-tasks-bot/internal/jobs/handlers"
	"github.com/narvelay/daily-tasks-bot/internal/payment/cryptopay"
	"github.com/narvelay/daily-tasks-bot/internal/testutil"
	"github.com/narvelay/daily-tasks-bot/internal/userlock"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

func TestPurchaseToNotification(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	gateway := testutil.NewFakeGateway()
	notifier := &testutil.FakeNotifier{}
	sender := &testutil.FakeSender{}

	require.NoError(t, store.CreateUser(ctx, &domain.User{ID: 42}))

	cat, err := catalog.New("TON", []domain.Pack{
		{ID: "pack1", Name: "100 монет", Coins: 100, Price: decimal.RequireFromString("0.05")},
	})
	require.NoError(t, err)
	translations, err := i18n.Load("ru")
	require.NoError(t, err)

	purchases := billing.NewService(cat, gateway, store.InvoiceRepo(), testutil.Logger())
	rec := New(store, gateway, userlock.NewMemoryLocker(), notifier, config.ReconcileConfig{
		MaxPendingAge: 72 * time.Hour,
		BatchSize:     100,
	}, testutil.Logger())
	deliver := jobhandlers.NewPaymentNotificationHandler(sender, store, translations, testutil.Logger())

	inv, err := purchases.StartPurchase(ctx, 42, "pack1")
	require.NoError(t, err)

	report, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unpaid)

	gateway.SetStatus(inv.ExternalID, cryptopay.StatusPaid)
	report, err = rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)

	payloads := notifier.Payloads()
	require.Len(t, payloads, 1)
	task, err := jobs.NewPaymentCreditedTask(payloads[0], 3)
	require.NoError(t, err)
	require.NoError(t, deliver.ProcessTask(ctx, task))

	u, err := store.FindUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.Balance)

	stored, err := store.FindInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, stored.Status)
	assert.NotNil(t, stored.NotifiedAt)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "🎉 Платёж подтверждён! +100 монет!", msgs[0].Text)
}
