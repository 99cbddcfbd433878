// Package user implements user registration and the task reward rule.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/repository"
	"github.com/narvelay/daily-tasks-bot/internal/userlock"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
)

// ErrBusy is returned when another balance operation for the same user is in flight.
var ErrBusy = errors.New("user has an operation in progress")

// RewardResult describes what a task request earned.
type RewardResult struct {
	Granted bool
	Amount  int64
	Balance int64
	// NextAt is when the next reward becomes available.
	NextAt time.Time
}

// Remaining returns how long until the next reward, relative to now.
func (r RewardResult) Remaining(now time.Time) time.Duration {
	if d := r.NextAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RewardDue reports whether a reward may be granted at now given the previous reward time.
func RewardDue(last *time.Time, now time.Time, cooldown time.Duration) bool {
	return last == nil || !now.Before(last.Add(cooldown))
}

// Service provides business operations over users.
type Service struct {
	repo     repository.UserRepository
	locker   userlock.Locker
	amount   int64
	cooldown time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a new Service instance.
func NewService(repo repository.UserRepository, locker userlock.Locker, amount int64, cooldown time.Duration, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		repo:     repo,
		locker:   locker,
		amount:   amount,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate fetches a user by telegram ID or creates a new profile when missing.
func (s *Service) GetOrCreate(ctx context.Context, telegramUser *telebot.User) (*domain.User, error) {
	if telegramUser == nil {
		return nil, errors.New("telegram user is nil")
	}

	user, err := s.repo.FindByID(ctx, telegramUser.ID)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, repository.ErrNotFound) {
		s.logError(ctx, "get_or_create.find", telegramUser.ID, err)
		return nil, fmt.Errorf("get user: %w", err)
	}

	newUser := &domain.User{
		ID:           telegramUser.ID,
		Username:     telegramUser.Username,
		FullName:     fullName(telegramUser),
		LanguageCode: telegramUser.LanguageCode,
		CreatedAt:    s.now(),
	}

	inserted, err := s.repo.Create(ctx, newUser)
	if err != nil {
		s.logError(ctx, "get_or_create.create", telegramUser.ID, err)
		return nil, fmt.Errorf("create user: %w", err)
	}
	if inserted {
		s.log.InfoContext(ctx, "user registered", slog.Int64("telegram_id", newUser.ID))
	}

	// Re-read so a concurrent registration that won the insert is returned as stored.
	user, err = s.repo.FindByID(ctx, telegramUser.ID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Balance returns the current coin balance.
func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		s.logError(ctx, "balance", userID, err)
		return 0, fmt.Errorf("get user: %w", err)
	}
	return user.Balance, nil
}

// ClaimTaskReward records a task request and credits the reward when the cooldown has elapsed.
// It returns ErrBusy while another balance operation for the user holds the lock.
func (s *Service) ClaimTaskReward(ctx context.Context, userID int64) (RewardResult, error) {
	release, err := s.locker.Lock(ctx, userID)
	switch {
	case errors.Is(err, userlock.ErrLocked):
		metrics.RecordReward("busy")
		return RewardResult{}, ErrBusy
	case err != nil:
		// The conditional update keeps the claim correct without the lock.
		s.log.WarnContext(ctx, "user lock unavailable, continuing", slog.Int64("telegram_id", userID), slog.Any("error", err))
	default:
		defer release()
	}

	now := s.now()
	claim, err := s.repo.ClaimReward(ctx, userID, s.amount, now, s.cooldown)
	if err != nil {
		metrics.RecordReward("error")
		s.logError(ctx, "claim_reward", userID, err)
		return RewardResult{}, fmt.Errorf("claim reward: %w", err)
	}

	result := RewardResult{Granted: claim.Granted, Balance: claim.Balance}
	if claim.LastRewardAt != nil {
		result.NextAt = claim.LastRewardAt.Add(s.cooldown)
	}
	if claim.Granted {
		result.Amount = s.amount
		metrics.RecordReward("granted")
		s.log.InfoContext(ctx, "task reward granted",
			slog.Int64("telegram_id", userID),
			slog.Int64("amount", s.amount),
			slog.Int64("balance", claim.Balance),
		)
	} else {
		metrics.RecordReward("cooldown")
	}

	return result, nil
}

func fullName(u *telebot.User) string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

func (s *Service) logError(ctx context.Context, operation string, telegramID int64, err error) {
	if err == nil {
		return
	}

	s.log.ErrorContext(ctx, "user service operation failed",
		slog.String("operation", operation),
		slog.Int64("telegram_id", telegramID),
		slog.Any("error", err),
	)
}
