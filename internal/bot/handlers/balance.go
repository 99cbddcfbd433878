package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

// NewBalanceHandler replies with the sender's coin balance.
func NewBalanceHandler(users UserService, tr *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		balance, err := users.Balance(ContextOf(c), senderID(c))
		if err != nil {
			return err
		}

		return c.Send(translatorFor(c, tr).Tf("balance.text", map[string]any{"balance": balance}))
	}
}
