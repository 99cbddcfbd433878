package middleware_test

import (
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/bot/handlers"
	"github.com/narvelay/daily-tasks-bot/internal/idempotency"
	"github.com/narvelay/daily-tasks-bot/internal/middleware"
	"github.com/narvelay/daily-tasks-bot/internal/testutil"
)

func newIdempotent(t *testing.T, h handlers.Handler) handlers.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := testutil.Logger()
	manager := idempotency.NewManager(idempotency.NewRedisStore(client, log), log)
	return middleware.Idempotency(manager, log)(h)
}

func TestIdempotency_CallbackDoubleTapHandledOnce(t *testing.T) {
	var calls int
	h := newIdempotent(t, func(telebot.Context) error {
		calls++
		return nil
	})

	require.NoError(t, h(testutil.NewCallbackContext(buyer, 10, "buy:pack1")))

	again := testutil.NewCallbackContext(buyer, 10, "buy:pack1")
	require.NoError(t, h(again))

	assert.Equal(t, 1, calls)
	assert.Len(t, again.Responses(), 1)
}

func TestIdempotency_DifferentButtonsOnSameMessageBothRun(t *testing.T) {
	var calls int
	h := newIdempotent(t, func(telebot.Context) error {
		calls++
		return nil
	})

	require.NoError(t, h(testutil.NewCallbackContext(buyer, 10, "buy:pack1")))
	require.NoError(t, h(testutil.NewCallbackContext(buyer, 10, "buy:pack2")))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_FailedUpdateCanBeRedelivered(t *testing.T) {
	var calls int
	failure := errors.New("gateway down")
	h := newIdempotent(t, func(telebot.Context) error {
		calls++
		if calls == 1 {
			return failure
		}
		return nil
	})

	assert.ErrorIs(t, h(testutil.NewTextContext(buyer, 5, "/task")), failure)
	require.NoError(t, h(testutil.NewTextContext(buyer, 5, "/task")))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_NilManagerPassesThrough(t *testing.T) {
	var calls int
	h := middleware.Idempotency(nil, testutil.Logger())(func(telebot.Context) error {
		calls++
		return nil
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, h(testutil.NewTextContext(buyer, 5, "/task")))
	}
	assert.Equal(t, 2, calls)
}
