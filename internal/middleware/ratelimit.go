package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/bot/keyboard"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/ratelimit"
	"github.com/narvelay/daily-tasks-bot/pkg/logger"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
)

// RateLimitMiddleware enforces per-user and per-command limits for incoming Telegram updates.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	tr      *i18n.Manager
	log     *slog.Logger
	base    func() context.Context
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, tr *i18n.Manager, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		tr:      tr,
		log:     log,
		base:    context.Background,
	}
}

// WithBaseContext makes limiter calls derive from base, so they stop with the bot.
func (m *RateLimitMiddleware) WithBaseContext(base func() context.Context) {
	if base != nil {
		m.base = base
	}
}

// Handle returns a telebot middleware that enforces the configured limits.
// Limiter failures let the update through.
func (m *RateLimitMiddleware) Handle(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.IsWhitelisted(sender.ID) {
			return next(c)
		}

		ctx := m.base()
		if id := c.Update().ID; id != 0 {
			ctx = logger.WithCorrelationID(ctx, "tg-"+strconv.Itoa(id))
		}
		userID := sender.ID

		if rejected, err := m.check(ctx, c, "user", fmt.Sprintf("user:%d", userID), m.rules.PerUserLimit()); rejected {
			return err
		}

		if command := commandOf(c); command != "" {
			if rule, ok := m.rules.CommandLimit(command); ok {
				key := fmt.Sprintf("user:%d:cmd:%s", userID, command)
				if rejected, err := m.check(ctx, c, command, key, rule); rejected {
					return err
				}
			}
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) check(ctx context.Context, c telebot.Context, scope, key string, rule ratelimit.Rule) (bool, error) {
	result, err := m.limiter.Check(ctx, key, rule.Limit, rule.Window)
	switch {
	case err == nil && (result == nil || result.Allowed):
		return false, nil
	case err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded):
		m.log.WarnContext(ctx, "rate limiter error", slog.String("key", key), slog.Any("error", err))
		return false, nil
	}

	metrics.RecordRateLimited(scope)
	m.log.WarnContext(ctx, "rate limit exceeded", slog.String("key", key), slog.String("scope", scope))

	lang := ""
	if c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}
	msg := m.tr.Translator(lang).Tf("errors.rate_limited", map[string]any{
		"seconds": result.RetryAfter(time.Now()),
	})

	if c.Callback() != nil {
		return true, c.Respond(&telebot.CallbackResponse{Text: msg})
	}
	return true, c.Send(msg)
}

// commandOf names the command an update invokes: "buy" for a shop button,
// "task" for "/task@Bot". Plain texts have no command.
func commandOf(c telebot.Context) string {
	if cb := c.Callback(); cb != nil {
		unique, _, err := keyboard.DecodeCallback(cb.Data)
		if err != nil {
			return ""
		}
		return unique
	}

	text := strings.TrimSpace(c.Text())
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}
