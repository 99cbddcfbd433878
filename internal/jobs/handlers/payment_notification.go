// Package handlers contains asynq task handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/jobs"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
)

// Sender is the part of *telebot.Bot used to deliver messages.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// DeliveryRecorder stores the outcome of a notification on its invoice.
type DeliveryRecorder interface {
	MarkNotified(ctx context.Context, id int64, at time.Time) error
	RecordNotifyFailure(ctx context.Context, id int64, reason string) error
}

type recipient int64

func (r recipient) Recipient() string {
	return strconv.FormatInt(int64(r), 10)
}

// PaymentNotificationHandler tells a user that their purchase was credited.
type PaymentNotificationHandler struct {
	sender   Sender
	recorder DeliveryRecorder
	i18n     *i18n.Manager
	log      *slog.Logger
}

func NewPaymentNotificationHandler(sender Sender, recorder DeliveryRecorder, translations *i18n.Manager, log *slog.Logger) *PaymentNotificationHandler {
	if log == nil {
		log = slog.Default()
	}

	return &PaymentNotificationHandler{
		sender:   sender,
		recorder: recorder,
		i18n:     translations,
		log:      log,
	}
}

func (h *PaymentNotificationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.PaymentCreditedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "payment notification: failed to decode payload",
			slog.String("task_type", t.Type()),
			slog.Any("error", err),
		)
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}

	log := h.log.With(
		slog.Int64("invoice_id", payload.InvoiceID),
		slog.Int64("telegram_id", payload.UserID),
	)

	text := h.i18n.Translator("").Tf("purchase.credited", map[string]any{
		"coins":   payload.Coins,
		"balance": payload.Balance,
	})

	if _, err := h.sender.Send(recipient(payload.UserID), text); err != nil {
		metrics.RecordNotification("failed")
		if recErr := h.recorder.RecordNotifyFailure(ctx, payload.InvoiceID, err.Error()); recErr != nil {
			log.ErrorContext(ctx, "failed to record notification failure", slog.Any("error", recErr))
		}

		if isPermanent(err) {
			log.ErrorContext(ctx, "payment notification undeliverable", slog.Any("error", err))
			return fmt.Errorf("send payment notification: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("send payment notification: %w", err)
	}

	metrics.RecordNotification("delivered")

	// The message is out; failing here would resend it on retry.
	if err := h.recorder.MarkNotified(ctx, payload.InvoiceID, time.Now().UTC()); err != nil {
		log.ErrorContext(ctx, "failed to mark invoice notified", slog.Any("error", err))
	}

	log.InfoContext(ctx, "payment notification delivered", slog.Int64("coins", payload.Coins))
	return nil
}

func isPermanent(err error) bool {
	return errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated) ||
		errors.Is(err, telebot.ErrChatNotFound) ||
		errors.Is(err, telebot.ErrNotStartedByUser)
}
