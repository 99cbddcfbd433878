package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		now = now.Add(10 * time.Second)
	}

	result, err := limiter.Check(ctx, "k", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, 40, result.RetryAfter(now))

	now = now.Add(41 * time.Second)
	_, err = limiter.Check(ctx, "k", 2, time.Minute)
	assert.NoError(t, err)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter()
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Check(context.Background(), "a", 5, time.Minute)
	now = now.Add(10 * time.Minute)
	_, _ = limiter.Check(context.Background(), "b", 5, time.Minute)

	assert.Equal(t, 1, limiter.Cleanup(5*time.Minute))
}

func TestRules(t *testing.T) {
	rules, err := NewRules(config.RateLimitConfig{
		PerUser:   config.RateLimitRule{Limit: 20, Window: "1m"},
		Commands:  map[string]config.RateLimitRule{"buy": {Limit: 5, Window: "1m"}},
		Whitelist: []int64{7},
	}, []int64{42})
	require.NoError(t, err)

	assert.True(t, rules.IsWhitelisted(7))
	assert.True(t, rules.IsWhitelisted(42))
	assert.False(t, rules.IsWhitelisted(8))
	assert.Equal(t, Rule{Limit: 20, Window: time.Minute}, rules.PerUserLimit())

	buy, ok := rules.CommandLimit("buy")
	require.True(t, ok)
	assert.Equal(t, 5, buy.Limit)

	_, ok = rules.CommandLimit("task")
	assert.False(t, ok)
}

func TestRules_RejectsBadWindow(t *testing.T) {
	_, err := NewRules(config.RateLimitConfig{
		PerUser: config.RateLimitRule{Limit: 20, Window: "soon"},
	}, nil)
	assert.Error(t, err)
}
