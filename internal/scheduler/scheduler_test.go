package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvery_RunsRepeatedly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, testLogger())
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.Every("tick", 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("failures are logged, not fatal")
	}))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestEvery_NeverOverlaps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, testLogger())
	require.NoError(t, err)

	var (
		running atomic.Int32
		maxSeen atomic.Int32
		runs    atomic.Int32
	)
	require.NoError(t, s.Every("slow", 5*time.Millisecond, func(context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		runs.Add(1)
		time.Sleep(30 * time.Millisecond)
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestEvery_RejectsZeroInterval(t *testing.T) {
	s, err := New(context.Background(), testLogger())
	require.NoError(t, err)
	assert.Error(t, s.Every("bad", 0, func(context.Context) error { return nil }))
}
