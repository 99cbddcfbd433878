// Package scheduler runs the periodic background jobs: invoice reconciliation,
// business gauges and Redis housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is one periodic unit of work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler wraps a gocron scheduler whose jobs never overlap with themselves.
type Scheduler struct {
	cron gocron.Scheduler
	ctx  context.Context
	log  *slog.Logger
}

// New creates a stopped scheduler. Jobs receive ctx.
func New(ctx context.Context, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{log: log.With(slog.String("component", "gocron"))}),
		gocron.WithStopTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{cron: cron, ctx: ctx, log: log}, nil
}

// Every schedules job at a fixed interval, starting immediately.
// A run that outlasts the interval delays the next one instead of overlapping it.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %q: interval must be positive", name)
	}

	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, job),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}

	s.log.Info("job scheduled", slog.String("name", name), slog.Duration("interval", interval))
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	if s.ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := job(s.ctx); err != nil {
		s.log.ErrorContext(s.ctx, "scheduled job failed",
			slog.String("name", name),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return
	}
	s.log.DebugContext(s.ctx, "scheduled job finished", slog.String("name", name), slog.Duration("duration", time.Since(start)))
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()

	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	s.log.Info("scheduler stopped")
	return nil
}
