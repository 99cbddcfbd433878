package errors

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_WrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewExternalAPIError("cryptopay", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "cryptopay")
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(NewPaymentError("create invoice", cause)))
	assert.False(t, IsRetryable(cause))
}

func TestHandler_UserMessages(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false)

	msg, retryable := h.Handle(context.Background(), NewRateLimitError(30))
	assert.Equal(t, "Слишком много запросов. Попробуйте через 30 секунд", msg)
	assert.False(t, retryable)

	msg, retryable = h.Handle(context.Background(), stderrors.New("boom"))
	assert.Equal(t, defaultUserMessage, msg)
	assert.False(t, retryable)

	msg, _ = h.Handle(context.Background(), nil)
	assert.Empty(t, msg)
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return NewValidationError("bad")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return NewDatabaseError(stderrors.New("timeout"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test")
	cb.now = func() time.Time { return now }

	failing := stderrors.New("down")
	for i := 0; i < MinRequests; i++ {
		_ = cb.Call(func() error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(TimeoutDuration)
	for i := 0; i < HalfOpenMaxRequests; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoresUncountedErrors(t *testing.T) {
	cb := NewCircuitBreaker("test-uncounted")
	notFound := stderrors.New("not found")
	ignore := func(err error) bool { return !stderrors.Is(err, notFound) }

	for i := 0; i < MinRequests*2; i++ {
		err := cb.Call(func() error { return notFound }, ignore)
		assert.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, StateClosed, cb.State())
}
