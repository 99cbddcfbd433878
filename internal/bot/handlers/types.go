package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/user"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

const (
	contextKey = "ctx"
	routeKey   = "route"
)

// UserService is the subset of user.Service the handlers need.
type UserService interface {
	GetOrCreate(ctx context.Context, u *telebot.User) (*domain.User, error)
	Balance(ctx context.Context, userID int64) (int64, error)
	ClaimTaskReward(ctx context.Context, userID int64) (user.RewardResult, error)
}

// Purchaser runs the coin purchase flow.
type Purchaser interface {
	StartPurchase(ctx context.Context, userID int64, packID string) (*domain.Invoice, error)
	Packs() []domain.Pack
	Asset() string
}

// TaskSource hands out task texts.
type TaskSource interface {
	Next() string
}

// StatsSource reports aggregate counters for /admin.
type StatsSource interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

// WithContext attaches a request context to the update.
func WithContext(c telebot.Context, ctx context.Context) {
	c.Set(contextKey, ctx)
}

// ContextOf returns the request context attached by WithContext, or a background context.
func ContextOf(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(contextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// SetRoute records the name of the route that matched the update.
func SetRoute(c telebot.Context, name string) {
	c.Set(routeKey, name)
}

// RouteOf returns the matched route name, or "unknown".
func RouteOf(c telebot.Context) string {
	if c != nil {
		if name, ok := c.Get(routeKey).(string); ok && name != "" {
			return name
		}
	}
	return "unknown"
}

// translatorFor picks the catalog matching the sender's Telegram language.
func translatorFor(c telebot.Context, m *i18n.Manager) i18n.Translator {
	lang := ""
	if c != nil && c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}
	return m.Translator(lang)
}

func senderID(c telebot.Context) int64 {
	if c == nil || c.Sender() == nil {
		return 0
	}
	return c.Sender().ID
}

func logOrDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
