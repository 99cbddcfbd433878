package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/bot/handlers"
	apperrors "github.com/narvelay/daily-tasks-bot/internal/errors"
	"github.com/narvelay/daily-tasks-bot/pkg/logger"
)

const fallbackUserMessage = "Произошла ошибка. Попробуйте позже"

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx := handlers.ContextOf(c)
					log.ErrorContext(ctx, "panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := fallbackUserMessage
					if errHandler != nil {
						if msg, _ := errHandler.Handle(ctx, fmt.Errorf("panic recovered: %v", r)); msg != "" {
							userMsg = msg
						}
					}

					if sendErr := c.Send(userMsg); sendErr != nil {
						log.ErrorContext(ctx, "failed to notify user about panic", slog.Any("error", sendErr))
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// CorrelationMiddleware derives a per-update context carrying a correlation id and logs the update.
// base supplies the parent context so handlers stop when the bot shuts down.
func CorrelationMiddleware(base func() context.Context, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}
	if base == nil {
		base = context.Background
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			updateID := ""
			if u := c.Update(); u.ID != 0 {
				updateID = "tg-" + strconv.Itoa(u.ID)
			}
			ctx := logger.WithCorrelationID(base(), updateID)
			handlers.WithContext(c, ctx)

			start := time.Now()
			userID := int64(0)
			if c.Sender() != nil {
				userID = c.Sender().ID
			}

			route := handlers.RouteOf(c)
			log.DebugContext(ctx, "handling update", slog.Int64("user_id", userID), slog.String("route", route))
			err := next(c)
			log.InfoContext(ctx, "handled update",
				slog.Int64("user_id", userID),
				slog.String("route", route),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			ctx := handlers.ContextOf(c)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			userMsg := fallbackUserMessage
			if errHandler != nil {
				if msg, _ := errHandler.Handle(ctx, err); msg != "" {
					userMsg = msg
				}
			}

			_ = c.Send(userMsg)
			return nil
		}
	}
}

// AuthMiddleware ensures that each incoming update is associated with a user record.
func AuthMiddleware(users handlers.UserService, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if users == nil || c.Sender() == nil {
				return next(c)
			}

			ctx := handlers.ContextOf(c)
			if _, err := users.GetOrCreate(ctx, c.Sender()); err != nil {
				log.ErrorContext(ctx, "failed to load user", slog.Int64("user_id", c.Sender().ID), slog.Any("error", err))
				return apperrors.NewDatabaseError(err)
			}

			return next(c)
		}
	}
}
