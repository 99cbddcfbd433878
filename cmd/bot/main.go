package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/narvelay/daily-tasks-bot/internal/billing"
	"github.com/narvelay/daily-tasks-bot/internal/bot"
	"github.com/narvelay/daily-tasks-bot/internal/catalog"
	"github.com/narvelay/daily-tasks-bot/internal/database"
	apperrors "github.com/narvelay/daily-tasks-bot/internal/errors"
	"github.com/narvelay/daily-tasks-bot/internal/health"
	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/idempotency"
	"github.com/narvelay/daily-tasks-bot/internal/jobs"
	jobhandlers "github.com/narvelay/daily-tasks-bot/internal/jobs/handlers"
	"github.com/narvelay/daily-tasks-bot/internal/lifecycle"
	"github.com/narvelay/daily-tasks-bot/internal/middleware"
	"github.com/narvelay/daily-tasks-bot/internal/payment/cryptopay"
	"github.com/narvelay/daily-tasks-bot/internal/ratelimit"
	"github.com/narvelay/daily-tasks-bot/internal/reconcile"
	"github.com/narvelay/daily-tasks-bot/internal/repository"
	"github.com/narvelay/daily-tasks-bot/internal/scheduler"
	"github.com/narvelay/daily-tasks-bot/internal/tasks"
	"github.com/narvelay/daily-tasks-bot/internal/user"
	"github.com/narvelay/daily-tasks-bot/internal/userlock"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
	"github.com/narvelay/daily-tasks-bot/pkg/graceful"
	"github.com/narvelay/daily-tasks-bot/pkg/logger"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
	"github.com/narvelay/daily-tasks-bot/pkg/redis"
)

const (
	userLockTTL       = 10 * time.Second
	statsInterval     = time.Minute
	housekeepInterval = 10 * time.Minute
	requeueInterval   = 5 * time.Minute
	rateLimitMaxAge   = 24 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.AppEnv}); err != nil {
			fmt.Fprintf(os.Stderr, "init sentry: %v\n", err)
			cfg.Sentry.Enabled = false
		}
	}

	log := logger.New(*cfg)
	config.WatchLogLevel(v, log, logger.SetLevel)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("daily tasks bot stopped with error", slog.Any("error", err))
		if cfg.Sentry.Enabled {
			sentry.Flush(2 * time.Second)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting daily tasks bot", slog.String("mode", cfg.Bot.Mode), slog.String("http_addr", cfg.Server.Addr))

	shutdown := lifecycle.NewShutdown(log)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdown.Execute(stopCtx); err != nil {
			log.Error("shutdown finished with errors", slog.Any("error", err))
		}
	}()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })

	if err := database.NewMigrator(db, log).Up(); err != nil {
		return err
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	shutdown.Register("redis", func(context.Context) error { return rc.Close() })

	userRepo := repository.NewUserRepository(db, log)
	invoiceRepo := repository.NewInvoiceRepository(db, log)
	taskRepo := repository.NewTaskRepository(db)

	cat, err := catalog.FromConfig(*cfg)
	if err != nil {
		return err
	}

	locker := userlock.NewRedisLocker(rc.Client, userLockTTL, log)
	users := user.NewService(userRepo, locker, cfg.Rewards.Amount, cfg.Rewards.Cooldown, log)
	gateway := cryptopay.New(cfg.CryptoPay, log)
	purchases := billing.NewService(cat, gateway, invoiceRepo, log)

	translations, err := i18n.Load(cfg.Bot.Language)
	if err != nil {
		return err
	}

	rules, err := ratelimit.NewRules(cfg.RateLimit, cfg.Admins)
	if err != nil {
		return err
	}
	memLimiter := ratelimit.NewMemoryLimiter()
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rc.Client, log), memLimiter, log)

	deps := bot.Deps{
		Users:       users,
		Purchaser:   purchases,
		Tasks:       tasks.New(ctx, taskRepo, cfg.Tasks, log),
		Stats:       invoiceRepo,
		I18n:        translations,
		Idempotency: idempotency.NewManager(idempotency.NewRedisStore(rc.Client, log), log),
		ErrHandler:  apperrors.NewHandler(log, cfg.Sentry.Enabled),
		IsAdmin:     cfg.IsAdmin,
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimit = middleware.NewRateLimitMiddleware(limiter, rules, translations, log)
	}

	b, err := bot.New(cfg.Bot, deps, log)
	if err != nil {
		return err
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	queue := jobs.NewManager(redisOpt, log)
	shutdown.Register("jobs-client", func(context.Context) error { return queue.Close() })

	worker := jobs.NewWorker(redisOpt, cfg.Notify.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypePaymentCredited,
		jobhandlers.NewPaymentNotificationHandler(b.Telebot(), invoiceRepo, translations, log))

	reconciler := reconcile.New(invoiceRepo, gateway, locker, jobs.NewQueueNotifier(queue, cfg.Notify.MaxRetry), cfg.Reconcile, log)

	sched, err := scheduler.New(ctx, log)
	if err != nil {
		return err
	}
	if err := registerJobs(sched, cfg, reconciler, invoiceRepo, rc, memLimiter, log); err != nil {
		return err
	}

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", database.Checker{DB: db})
	checker.AddCheck("redis", rc)
	checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))
	checker.AddCheck("cryptopay", gateway)

	router := mux.NewRouter()
	router.Use(logger.Middleware, middleware.HTTPLogging(log))
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Handle("/healthz", health.LiveHandler()).Methods(http.MethodGet)
	router.Handle("/readyz", checker.ReadyHandler()).Methods(http.MethodGet)

	httpServer := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	if cfg.Sentry.Enabled {
		shutdown.Register("sentry", func(context.Context) error {
			if !sentry.Flush(2 * time.Second) {
				return errors.New("sentry flush timed out")
			}
			return nil
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Start(gctx) })
	g.Go(func() error {
		if err := worker.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		worker.Shutdown()
		return nil
	})
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return httpServer.ListenAndServe(gctx) })

	err = g.Wait()
	log.Info("daily tasks bot shutting down")
	return err
}

func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	reconciler *reconcile.Reconciler,
	invoices repository.InvoiceRepository,
	rc *redis.Client,
	memLimiter *ratelimit.MemoryLimiter,
	log *slog.Logger,
) error {
	if err := sched.Every("reconcile", cfg.Reconcile.Interval, func(ctx context.Context) error {
		_, err := reconciler.RunOnce(ctx)
		return err
	}); err != nil {
		return err
	}

	// A notification counts as given up once asynq has made every attempt.
	maxAttempts := cfg.Notify.MaxRetry + 1
	if err := sched.Every("notification-requeue", requeueInterval, func(ctx context.Context) error {
		_, err := reconciler.RequeueNotifications(ctx, maxAttempts)
		return err
	}); err != nil {
		return err
	}

	stats := metrics.NewStatsCollector(snapshotSource{invoices})
	if err := sched.Every("business-gauges", statsInterval, stats.Collect); err != nil {
		return err
	}

	rateLimitCleaner := ratelimit.NewCleaner(rc.Client, log, rateLimitMaxAge)
	idempotencyCleaner := idempotency.NewCleaner(rc.Client, log)

	return sched.Every("redis-housekeeping", housekeepInterval, func(ctx context.Context) error {
		memLimiter.Cleanup(rateLimitMaxAge)
		if _, err := rateLimitCleaner.Sweep(ctx); err != nil {
			return err
		}
		_, err := idempotencyCleaner.Sweep(ctx)
		return err
	})
}

// snapshotSource feeds the business gauges from the invoice repository.
type snapshotSource struct {
	invoices repository.InvoiceRepository
}

func (s snapshotSource) Snapshot(ctx context.Context) (metrics.Snapshot, error) {
	st, err := s.invoices.Stats(ctx)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return metrics.Snapshot{
		Users:           st.Users,
		PendingInvoices: st.PendingInvoices,
		PaidInvoices:    st.PaidInvoices,
		CoinsSold:       st.CoinsSold,
	}, nil
}
