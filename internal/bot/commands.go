package bot

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

// Command constants for Telegram bot commands.
const (
	CommandStart   = "/start"
	CommandHelp    = "/help"
	CommandBalance = "/balance"
	CommandTask    = "/task"
	CommandShop    = "/shop"
	CommandAdmin   = "/admin"
)

// publicCommands are advertised in the Telegram command menu; /admin is not.
var publicCommands = []string{CommandStart, CommandTask, CommandBalance, CommandShop, CommandHelp}

// menuCommands builds the localized command menu.
func menuCommands(t i18n.Translator) []telebot.Command {
	cmds := make([]telebot.Command, 0, len(publicCommands))
	for _, cmd := range publicCommands {
		name := cmd[1:]
		cmds = append(cmds, telebot.Command{Text: name, Description: t.T("commands." + name)})
	}
	return cmds
}

// publishCommands registers the command menu for the default language and every loaded one.
func publishCommands(tb *telebot.Bot, tr *i18n.Manager) error {
	if err := tb.SetCommands(menuCommands(tr.Translator(""))); err != nil {
		return fmt.Errorf("set default commands: %w", err)
	}
	for _, lang := range tr.Languages() {
		if err := tb.SetCommands(menuCommands(tr.Translator(lang)), lang); err != nil {
			return fmt.Errorf("set %s commands: %w", lang, err)
		}
	}
	return nil
}
