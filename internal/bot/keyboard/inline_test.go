package keyboard_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvelay/daily-tasks-bot/internal/bot/keyboard"
	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

func TestInlineKeyboardBuilder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		builder := keyboard.NewInlineKeyboard()
		builder.AddRow(
			keyboard.InlineButton{Text: "A", Unique: "buy", Data: "pack1"},
			keyboard.InlineButton{Text: "B", Unique: "buy", Data: "pack2"},
		).AddRow(
			keyboard.InlineButton{Text: "Shop", Unique: "shop"},
		)

		markup, err := builder.Build()
		require.NoError(t, err)
		require.NotNil(t, markup)

		require.Len(t, markup.InlineKeyboard, 2)
		assert.Len(t, markup.InlineKeyboard[0], 2)
		assert.Len(t, markup.InlineKeyboard[1], 1)
		assert.Equal(t, "buy:pack2", markup.InlineKeyboard[0][1].Data)
		assert.Equal(t, "shop", markup.InlineKeyboard[1][0].Data)
	})

	t.Run("callback data overflow", func(t *testing.T) {
		builder := keyboard.NewInlineKeyboard()
		builder.AddRow(keyboard.InlineButton{
			Text:   "Too big",
			Unique: "overflow",
			Data:   strings.Repeat("x", keyboard.CallbackDataLimitBytes),
		})

		_, err := builder.Build()
		assert.Error(t, err)
	})
}

func TestShop(t *testing.T) {
	m, err := i18n.Load("ru")
	require.NoError(t, err)

	packs := []domain.Pack{
		{ID: "pack1", Name: "100 монет", Coins: 100, Price: decimal.RequireFromString("0.05")},
		{ID: "pack2", Name: "300 монет", Coins: 300, Price: decimal.RequireFromString("0.12")},
	}

	markup, err := keyboard.Shop(m.Translator("ru"), packs, "TON")
	require.NoError(t, err)
	require.Len(t, markup.InlineKeyboard, 2)

	assert.Equal(t, "100 монет — 0.05 TON", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "buy:pack1", markup.InlineKeyboard[0][0].Data)
	assert.Equal(t, "buy:pack2", markup.InlineKeyboard[1][0].Data)

	unique, data, err := keyboard.DecodeCallback(markup.InlineKeyboard[1][0].Data)
	require.NoError(t, err)
	assert.Equal(t, keyboard.CallbackBuy, unique)
	assert.Equal(t, "pack2", data)
}
