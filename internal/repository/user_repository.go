package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
)

// RewardClaim is the outcome of a reward attempt.
type RewardClaim struct {
	Granted      bool
	Balance      int64
	LastRewardAt *time.Time
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// Create inserts the user unless a row with the same id exists and
	// reports whether this call inserted it.
	Create(ctx context.Context, user *domain.User) (bool, error)
	// ClaimReward records a task request at now and credits amount only when the
	// previous reward is older than cooldown. The check and the credit are one statement.
	ClaimReward(ctx context.Context, id, amount int64, now time.Time, cooldown time.Duration) (RewardClaim, error)
}

type userRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sql.DB, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}

	return &userRepository{
		db:  db,
		log: log,
	}
}

// FindByID retrieves a user by Telegram identifier.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `
		SELECT id, username, full_name, language_code, balance, last_reward_at, last_task_at, created_at
		FROM users
		WHERE id = $1
	`

	var (
		user                 domain.User
		lastReward, lastTask sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.LanguageCode,
		&user.Balance,
		&lastReward,
		&lastTask,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		r.log.Error("failed to fetch user", slog.Int64("telegram_id", id), slog.Any("error", err))
		return nil, fmt.Errorf("select user: %w", err)
	}

	user.LastRewardAt = nullTime(lastReward)
	user.LastTaskAt = nullTime(lastTask)

	return &user, nil
}

// Create persists a new user record. A concurrent insert of the same id is not an error.
func (r *userRepository) Create(ctx context.Context, user *domain.User) (bool, error) {
	const query = `
		INSERT INTO users (id, username, full_name, language_code, balance, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (id) DO NOTHING
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.FullName,
		user.LanguageCode,
		user.CreatedAt,
	)
	if err != nil {
		r.log.Error("failed to create user", slog.Int64("telegram_id", user.ID), slog.Any("error", err))
		return false, fmt.Errorf("insert user: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert user rows affected: %w", err)
	}
	return inserted == 1, nil
}

func (r *userRepository) ClaimReward(ctx context.Context, id, amount int64, now time.Time, cooldown time.Duration) (RewardClaim, error) {
	const (
		touch = `UPDATE users SET last_task_at = $2 WHERE id = $1`
		grant = `
			UPDATE users
			SET balance = balance + $2, last_reward_at = $3
			WHERE id = $1 AND (last_reward_at IS NULL OR last_reward_at <= $4)
			RETURNING balance
		`
		current = `SELECT balance, last_reward_at FROM users WHERE id = $1`
		ledger  = `INSERT INTO ledger_entries (user_id, amount, kind, created_at) VALUES ($1, $2, $3, $4)`
	)

	var claim RewardClaim
	err := withTx(ctx, r.db, r.log, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, touch, id, now)
		if err != nil {
			return fmt.Errorf("touch last task: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}

		err = tx.QueryRowContext(ctx, grant, id, amount, now, now.Add(-cooldown)).Scan(&claim.Balance)
		switch {
		case err == nil:
			claim.Granted = true
			at := now
			claim.LastRewardAt = &at
			if _, err := tx.ExecContext(ctx, ledger, id, amount, string(domain.LedgerReward), now); err != nil {
				return fmt.Errorf("insert reward ledger entry: %w", err)
			}
			return nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("grant reward: %w", err)
		}

		var last sql.NullTime
		if err := tx.QueryRowContext(ctx, current, id).Scan(&claim.Balance, &last); err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		claim.LastRewardAt = nullTime(last)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("failed to claim reward", slog.Int64("telegram_id", id), slog.Any("error", err))
		}
		return RewardClaim{}, err
	}

	return claim, nil
}
