package handlers

import (
	"context"
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/billing"
	"github.com/narvelay/daily-tasks-bot/internal/bot/keyboard"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
)

// NewShopHandler lists the coin packs as inline buttons.
func NewShopHandler(purchaser Purchaser, tr *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := translatorFor(c, tr)
		markup, err := keyboard.Shop(t, purchaser.Packs(), purchaser.Asset())
		if err != nil {
			return err
		}
		return c.Send(t.T("shop.title"), markup)
	}
}

// NewPurchaseCallback handles a pack button: it issues an invoice and replies with the pay link.
func NewPurchaseCallback(purchaser Purchaser, tr *i18n.Manager, log *slog.Logger) Handler {
	log = logOrDefault(log)

	return func(c telebot.Context) error {
		ctx := ContextOf(c)
		t := translatorFor(c, tr)

		if err := c.Respond(); err != nil {
			log.WarnContext(ctx, "callback answer failed", slog.Any("error", err))
		}

		cb := c.Callback()
		if cb == nil {
			return nil
		}
		_, packID, err := keyboard.DecodeCallback(cb.Data)
		if err != nil || packID == "" {
			return c.Send(t.T("purchase.unknown_pack"))
		}

		inv, err := purchaser.StartPurchase(ctx, senderID(c), packID)
		switch {
		case errors.Is(err, billing.ErrUnknownPack):
			return c.Send(t.T("purchase.unknown_pack"))
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			log.WarnContext(ctx, "purchase failed",
				slog.Int64("telegram_id", senderID(c)),
				slog.String("pack_id", packID),
				slog.Any("error", err),
			)
			return c.Send(t.T("purchase.failed"))
		}

		return c.Send(t.Tf("purchase.pay", map[string]any{"url": inv.PayURL}))
	}
}
