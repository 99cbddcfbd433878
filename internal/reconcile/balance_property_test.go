package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/payment/cryptopay"
	"github.com/narvelay/daily-tasks-bot/internal/testutil"
	"github.com/narvelay/daily-tasks-bot/internal/user"
	"github.com/narvelay/daily-tasks-bot/internal/userlock"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

// op encodes one step: kind 0 claims a reward, 1 issues an invoice, 2 marks the
// oldest issued invoice paid, 3 runs a reconciliation pass. minutes advances the clock.
type op struct {
	kind    int
	minutes int
}

func genOp() gopter.Gen {
	return gopter.CombineGens(gen.IntRange(0, 3), gen.IntRange(0, 13*60)).Map(func(v []interface{}) op {
		return op{kind: v[0].(int), minutes: v[1].(int)}
	})
}

func TestBalanceProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("balance is never negative and equals the ledger total", prop.ForAll(
		func(ops []op) bool {
			ctx := context.Background()
			now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			clock := func() time.Time { return now }

			store := testutil.NewMemoryStore()
			gateway := testutil.NewFakeGateway()
			locker := userlock.NewMemoryLocker()
			users := user.NewService(store.Users(), locker, 5, 12*time.Hour, testutil.Logger(), user.WithClock(clock))
			rec := New(store, gateway, locker, &testutil.FakeNotifier{}, config.ReconcileConfig{
				MaxPendingAge: 72 * time.Hour,
				BatchSize:     100,
			}, testutil.Logger(), WithClock(clock))

			if err := store.CreateUser(ctx, &domain.User{ID: 1}); err != nil {
				return false
			}

			var issued []int64
			for _, o := range ops {
				now = now.Add(time.Duration(o.minutes) * time.Minute)
				switch o.kind {
				case 0:
					if _, err := users.ClaimTaskReward(ctx, 1); err != nil {
						return false
					}
				case 1:
					remote, err := gateway.CreateInvoice(ctx, decimal.RequireFromString("0.05"), "buy_1_pack1")
					if err != nil {
						return false
					}
					if err := store.CreateInvoice(ctx, &domain.Invoice{
						ExternalID: remote.InvoiceID, UserID: 1, PackID: "pack1", Coins: 100,
						Asset: "TON", Amount: decimal.RequireFromString("0.05"), CreatedAt: now,
					}); err != nil {
						return false
					}
					issued = append(issued, remote.InvoiceID)
				case 2:
					if len(issued) > 0 {
						gateway.SetStatus(issued[0], cryptopay.StatusPaid)
						issued = issued[1:]
					}
				case 3:
					if _, err := rec.RunOnce(ctx); err != nil {
						return false
					}
				}

				u, err := store.FindUser(ctx, 1)
				if err != nil || u.Balance < 0 {
					return false
				}
				var total int64
				for _, e := range store.Ledger() {
					total += e.Amount
				}
				if total != u.Balance {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genOp()),
	))

	properties.TestingRun(t)
}
