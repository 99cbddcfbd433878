package keyboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvelay/daily-tasks-bot/internal/bot/keyboard"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

func TestMainMenu(t *testing.T) {
	m, err := i18n.Load("ru")
	require.NoError(t, err)

	markup := keyboard.MainMenu(m.Translator("ru"))
	assert.True(t, markup.ResizeKeyboard)

	expectedRows := [][]string{
		{"📋 Мои задания", "💰 Баланс"},
		{"💸 Купить монеты", "ℹ Помощь"},
	}

	require.Len(t, markup.ReplyKeyboard, len(expectedRows))
	for i, row := range expectedRows {
		require.Len(t, markup.ReplyKeyboard[i], len(row))
		for j, text := range row {
			assert.Equal(t, text, markup.ReplyKeyboard[i][j].Text)
		}
	}
}

func TestMainMenu_NilTranslatorFallsBackToKeys(t *testing.T) {
	markup := keyboard.MainMenu(nil)
	assert.Equal(t, "buttons.task", markup.ReplyKeyboard[0][0].Text)
}
