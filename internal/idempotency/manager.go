// Package idempotency suppresses duplicate processing of the same Telegram update.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrRequestInProgress means another delivery of the same update is being handled.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

const defaultLockTTL = time.Minute

// Operation is the work guarded by a key.
type Operation func(ctx context.Context) error

// Result reports whether the operation ran or was recognized as a duplicate.
type Result struct {
	Duplicate bool
}

// Manager runs operations at most once per key within the key's TTL.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

// NewManager builds a Manager on top of store.
func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		lockTTL: defaultLockTTL,
		log:     log,
	}
}

// Execute runs fn unless key was already completed or is being processed.
// A failed fn releases the key so a redelivery can try again.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	locked, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}

	if !locked {
		status, err := m.store.Status(ctx, key)
		if err != nil {
			return nil, err
		}
		if status == StatusCompleted {
			return &Result{Duplicate: true}, nil
		}
		return nil, ErrRequestInProgress
	}

	if err := fn(ctx); err != nil {
		if relErr := m.store.Release(context.WithoutCancel(ctx), key); relErr != nil {
			m.log.WarnContext(ctx, "idempotency key not released", slog.String("key", key), slog.Any("error", relErr))
		}
		return nil, err
	}

	if err := m.store.Complete(context.WithoutCancel(ctx), key, ttl); err != nil {
		m.log.WarnContext(ctx, "idempotency key not completed", slog.String("key", key), slog.Any("error", err))
	}

	return &Result{Duplicate: false}, nil
}
