package userlock

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second, testLogger())
	ctx := context.Background()

	release, err := locker.Lock(ctx, 7)
	require.NoError(t, err)
	assert.True(t, mr.Exists("user:lock:7"))

	_, err = locker.Lock(ctx, 7)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := locker.Lock(ctx, 8)
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, mr.Exists("user:lock:7"))

	again, err := locker.Lock(ctx, 7)
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second, testLogger())
	ctx := context.Background()

	stale, err := locker.Lock(ctx, 1)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, 1)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("user:lock:1"))

	fresh()
	assert.False(t, mr.Exists("user:lock:1"))
}

func TestRedisLocker_BackendError(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second, testLogger())
	mr.Close()

	_, err := locker.Lock(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestMemoryLocker_SingleHolderUnderContention(t *testing.T) {
	locker := NewMemoryLocker()

	var (
		wg      sync.WaitGroup
		holders int32
		maxSeen int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(context.Background(), 42)
			if err != nil {
				return
			}
			n := atomic.AddInt32(&holders, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			atomic.AddInt32(&holders, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
}
