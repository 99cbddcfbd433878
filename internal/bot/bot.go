// Package bot wires the Telegram transport to the command handlers.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/bot/handlers"
	"github.com/narvelay/daily-tasks-bot/internal/bot/keyboard"
	apperrors "github.com/narvelay/daily-tasks-bot/internal/errors"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/idempotency"
	"github.com/narvelay/daily-tasks-bot/internal/middleware"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

// Deps are the services the handlers run on.
type Deps struct {
	Users       handlers.UserService
	Purchaser   handlers.Purchaser
	Tasks       handlers.TaskSource
	Stats       handlers.StatsSource
	I18n        *i18n.Manager
	Idempotency idempotency.Manager
	RateLimit   *middleware.RateLimitMiddleware
	ErrHandler  *apperrors.Handler
	IsAdmin     func(userID int64) bool
}

// Bot wraps telebot.Bot with the router and its dependencies.
type Bot struct {
	telebot *telebot.Bot
	router  *Router
	i18n    *i18n.Manager
	log     *slog.Logger

	mu      sync.RWMutex
	baseCtx context.Context
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.BotConfig, deps Deps, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token:   cfg.Token,
		OnError: func(err error, c telebot.Context) { log.Error("telegram update failed", slog.Any("error", err)) },
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.WebhookAddr,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{Timeout: cfg.Timeout}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot: tb,
		i18n:    deps.I18n,
		log:     log,
		baseCtx: context.Background(),
	}
	b.router = NewHandlerRouter(deps, b.context, log)

	if deps.RateLimit != nil {
		deps.RateLimit.WithBaseContext(b.context)
		tb.Use(deps.RateLimit.Handle)
	}
	tb.Handle(telebot.OnText, b.router.Route)
	tb.Handle(telebot.OnCallback, b.router.Route)

	return b, nil
}

// NewHandlerRouter builds the router with the middleware chain and every command route.
func NewHandlerRouter(deps Deps, base func() context.Context, log *slog.Logger) *Router {
	r := NewRouter(log)

	r.Use(RecoveryMiddleware(log, deps.ErrHandler))
	r.Use(CorrelationMiddleware(base, log))
	r.Use(ErrorHandlingMiddleware(deps.ErrHandler))
	r.Use(middleware.Idempotency(deps.Idempotency, log))
	r.Use(AuthMiddleware(deps.Users, log))
	r.Use(middleware.Metrics)

	start := handlers.NewStartHandler(deps.Users, deps.I18n, log)
	help := handlers.NewHelpHandler(deps.I18n)
	balance := handlers.NewBalanceHandler(deps.Users, deps.I18n)
	task := handlers.NewTaskHandler(deps.Users, deps.Tasks, deps.I18n, nil, log)
	shop := handlers.NewShopHandler(deps.Purchaser, deps.I18n)

	r.RegisterCommand(CommandStart, start)
	r.RegisterCommand(CommandHelp, help)
	r.RegisterCommand(CommandBalance, balance)
	r.RegisterCommand(CommandTask, task)
	r.RegisterCommand(CommandShop, shop)
	r.RegisterCommand(CommandAdmin, handlers.NewAdminHandler(deps.Stats, deps.IsAdmin, deps.I18n))

	buttons := map[string]handlers.Handler{
		"buttons.task":    task,
		"buttons.balance": balance,
		"buttons.shop":    shop,
		"buttons.help":    help,
	}
	for _, lang := range deps.I18n.Languages() {
		t := deps.I18n.Translator(lang)
		for _, key := range keyboard.MenuButtonKeys {
			r.RegisterText(t.T(key), key[len("buttons."):], buttons[key])
		}
	}

	r.RegisterCallback(keyboard.CallbackBuy+keyboard.CallbackDataSeparator, handlers.NewPurchaseCallback(deps.Purchaser, deps.I18n, log))
	r.SetDefault(handlers.NewUnknownHandler(deps.I18n))

	return r
}

// Start publishes the command menu and runs the update loop until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.baseCtx = ctx
	b.mu.Unlock()

	if err := publishCommands(b.telebot, b.i18n); err != nil {
		b.log.WarnContext(ctx, "command menu not published", slog.Any("error", err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.telebot.Start()
	}()

	b.log.InfoContext(ctx, "telegram bot started", slog.String("username", b.telebot.Me.Username))

	select {
	case <-ctx.Done():
		b.log.Info("stopping telegram bot...")
		b.telebot.Stop()
		<-done
	case <-done:
	}
	return nil
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as notifications and health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) context() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.baseCtx
}
