package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

// MenuButtonKeys are the i18n keys of the main menu buttons in display order.
var MenuButtonKeys = []string{"buttons.task", "buttons.balance", "buttons.shop", "buttons.help"}

// MainMenu builds a localized reply keyboard for the bot main menu.
func MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	lookup := func(key string) string {
		if t == nil {
			return key
		}
		return t.T(key)
	}

	taskBtn := markup.Text(lookup("buttons.task"))
	balanceBtn := markup.Text(lookup("buttons.balance"))
	shopBtn := markup.Text(lookup("buttons.shop"))
	helpBtn := markup.Text(lookup("buttons.help"))

	markup.Reply(
		markup.Row(taskBtn, balanceBtn),
		markup.Row(shopBtn, helpBtn),
	)

	return markup
}
