package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (Manager, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(NewRedisStore(client, log), log), mr, client
}

func TestManager_RunsOncePerKey(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	calls := 0
	op := func(context.Context) error {
		calls++
		return nil
	}

	res, err := m.Execute(ctx, "msg:1:10", time.Hour, op)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	res, err = m.Execute(ctx, "msg:1:10", time.Hour, op)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, calls)
}

func TestManager_FailureReleasesKey(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := m.Execute(ctx, "k", time.Hour, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ran := false
	res, err := m.Execute(ctx, "k", time.Hour, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, ran)
}

func TestManager_InProgress(t *testing.T) {
	m, mr, _ := newTestManager(t)
	require.NoError(t, mr.Set(keyPrefix+"k", StatusProcessing))

	_, err := m.Execute(context.Background(), "k", time.Hour, func(context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrRequestInProgress)
}

func TestManager_KeyExpires(t *testing.T) {
	m, mr, _ := newTestManager(t)
	ctx := context.Background()
	op := func(context.Context) error { return nil }

	_, err := m.Execute(ctx, "cb", 5*time.Second, op)
	require.NoError(t, err)

	mr.FastForward(6 * time.Second)

	res, err := m.Execute(ctx, "cb", 5*time.Second, op)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestCleaner_DeletesKeysWithoutTTL(t *testing.T) {
	_, mr, client := newTestManager(t)
	require.NoError(t, mr.Set(keyPrefix+"orphan", StatusCompleted))
	require.NoError(t, mr.Set(keyPrefix+"live", StatusCompleted))
	mr.SetTTL(keyPrefix+"live", time.Hour)

	removed, err := NewCleaner(client, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, mr.Exists(keyPrefix+"orphan"))
	assert.True(t, mr.Exists(keyPrefix+"live"))
}

func TestGenerateKey(t *testing.T) {
	a := GenerateKey("cb", int64(1), 10, "buy:pack1")
	assert.Equal(t, a, GenerateKey("cb", int64(1), 10, "buy:pack1"))
	assert.NotEqual(t, a, GenerateKey("cb", int64(1), 10, "buy:pack2"))
	assert.Len(t, a, 32)
}
