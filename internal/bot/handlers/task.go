package handlers

import (
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/user"
)

// NewTaskHandler sends a random task and then claims the task reward.
// now may be nil, in which case the wall clock is used.
func NewTaskHandler(users UserService, tasks TaskSource, tr *i18n.Manager, now func() time.Time, log *slog.Logger) Handler {
	log = logOrDefault(log)
	if now == nil {
		now = time.Now
	}

	return func(c telebot.Context) error {
		ctx := ContextOf(c)
		t := translatorFor(c, tr)
		userID := senderID(c)

		if err := c.Send(t.Tf("task.text", map[string]any{"task": tasks.Next()})); err != nil {
			return err
		}

		result, err := users.ClaimTaskReward(ctx, userID)
		switch {
		case errors.Is(err, user.ErrBusy):
			log.InfoContext(ctx, "task reward skipped, user busy", slog.Int64("telegram_id", userID))
			return c.Send(t.T("task.busy"))
		case err != nil:
			return err
		}

		if result.Granted {
			return c.Send(t.Tf("task.rewarded", map[string]any{
				"amount":  result.Amount,
				"balance": result.Balance,
			}))
		}

		return c.Send(t.Tf("task.cooldown", map[string]any{
			"remaining": FormatDuration(t, result.Remaining(now())),
		}))
	}
}

// FormatDuration renders d rounded up to whole minutes, e.g. "3 ч 5 мин".
func FormatDuration(t i18n.Translator, d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if rem := d % time.Minute; rem != 0 {
		d += time.Minute - rem
	}

	hours := int64(d / time.Hour)
	minutes := int64((d % time.Hour) / time.Minute)
	if hours > 0 {
		return t.Tf("duration.hours_minutes", map[string]any{"hours": hours, "minutes": minutes})
	}
	return t.Tf("duration.minutes", map[string]any{"minutes": minutes})
}
