package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/bot/keyboard"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

// NewStartHandler greets the user and shows the main menu keyboard.
func NewStartHandler(users UserService, tr *i18n.Manager, log *slog.Logger) Handler {
	log = logOrDefault(log)

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			log.Warn("start handler invoked without sender")
			return nil
		}

		ctx := ContextOf(c)
		if _, err := users.GetOrCreate(ctx, sender); err != nil {
			return err
		}

		t := translatorFor(c, tr)
		return c.Send(t.T("start.welcome"), keyboard.MainMenu(t))
	}
}

// NewHelpHandler replies with the command list.
func NewHelpHandler(tr *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translatorFor(c, tr)
		return c.Send(t.T("help.text"), keyboard.MainMenu(t))
	}
}

// NewUnknownHandler answers anything the router could not match.
func NewUnknownHandler(tr *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		return c.Send(translatorFor(c, tr).T("errors.unknown_command"))
	}
}
