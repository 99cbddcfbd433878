package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/bot/handlers"
	"github.com/narvelay/daily-tasks-bot/internal/idempotency"
)

const (
	messageKeyTTL  = 24 * time.Hour
	callbackKeyTTL = 10 * time.Second
)

// Idempotency drops redelivered messages and callback double-taps.
// When the store is unavailable updates are handled normally.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key, ttl := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			ctx := handlers.ContextOf(c)
			ran := false
			result, err := manager.Execute(ctx, key, ttl, func(context.Context) error {
				ran = true
				return next(c)
			})

			switch {
			case ran:
				return err
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.InfoContext(ctx, "duplicate update in progress, skipped", slog.String("key", key))
				return respondIfCallback(c)
			case err != nil:
				log.WarnContext(ctx, "idempotency store unavailable", slog.String("key", key), slog.Any("error", err))
				return next(c)
			case result != nil && result.Duplicate:
				log.InfoContext(ctx, "duplicate update skipped", slog.String("key", key))
				return respondIfCallback(c)
			}

			return nil
		}
	}
}

// extractIdempotencyKey keys callbacks by user, message and data so a double-tap
// on the same button collapses, and messages by chat and message id.
func extractIdempotencyKey(c telebot.Context) (string, time.Duration) {
	if c == nil {
		return "", 0
	}

	if cb := c.Callback(); cb != nil {
		userID := int64(0)
		if c.Sender() != nil {
			userID = c.Sender().ID
		}
		msgID := 0
		if cb.Message != nil {
			msgID = cb.Message.ID
		}
		return "cb:" + idempotency.GenerateKey(userID, msgID, cb.Data), callbackKeyTTL
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return "msg:" + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(msg.ID), messageKeyTTL
	}

	return "", 0
}

func respondIfCallback(c telebot.Context) error {
	if c.Callback() != nil {
		return c.Respond()
	}
	return nil
}
