package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

// NewAdminHandler shows aggregate statistics to allowlisted users.
// Everyone else gets the unknown-command reply.
func NewAdminHandler(stats StatsSource, isAdmin func(int64) bool, tr *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translatorFor(c, tr)
		if isAdmin == nil || !isAdmin(senderID(c)) {
			return c.Send(t.T("errors.unknown_command"))
		}

		s, err := stats.Stats(ContextOf(c))
		if err != nil {
			return err
		}

		return c.Send(t.Tf("admin.stats", map[string]any{
			"users":   s.Users,
			"pending": s.PendingInvoices,
			"paid":    s.PaidInvoices,
			"coins":   s.CoinsSold,
		}))
	}
}
