package keyboard

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

// CallbackBuy prefixes the callback data of shop buttons.
const CallbackBuy = "buy"

// InlineButton represents a lightweight inline keyboard button definition used by the builder.
type InlineButton struct {
	Text   string
	Unique string // Identifier that differentiates callback handlers.
	Data   string // Payload that will be encoded into callback data.
}

// InlineKeyboardBuilder accumulates rows of InlineButton definitions before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

// NewInlineKeyboard creates an empty builder.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{rows: make([][]InlineButton, 0)}
}

// AddRow appends a new row made of custom InlineButton definitions.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build renders the markup, encoding each button as "<unique>:<data>".
// It fails when any callback payload exceeds the Telegram limit.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	inlineKeyboard := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		inlineKeyboard[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			data, err := EncodeCallback(btn.Unique, btn.Data)
			if err != nil {
				return nil, fmt.Errorf("button %q: %w", btn.Text, err)
			}
			inlineKeyboard[i][j] = telebot.InlineButton{Text: btn.Text, Data: data}
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: inlineKeyboard}, nil
}

// Shop lists one button per pack, each on its own row.
func Shop(t i18n.Translator, packs []domain.Pack, asset string) (*telebot.ReplyMarkup, error) {
	builder := NewInlineKeyboard()
	for _, p := range packs {
		builder.AddRow(InlineButton{
			Text: t.Tf("shop.item", map[string]any{
				"name":  p.Name,
				"price": p.Price.String(),
				"asset": asset,
			}),
			Unique: CallbackBuy,
			Data:   p.ID,
		})
	}
	return builder.Build()
}
