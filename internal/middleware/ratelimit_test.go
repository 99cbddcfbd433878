package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/i18n"
	"github.com/narvelay/daily-tasks-bot/internal/middleware"
	"github.com/narvelay/daily-tasks-bot/internal/ratelimit"
	"github.com/narvelay/daily-tasks-bot/internal/testutil"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
	"github.com/narvelay/daily-tasks-bot/pkg/logger"
)

const adminID = 1

var buyer = &telebot.User{ID: 42, LanguageCode: "ru"}

func newRules(t *testing.T) *ratelimit.Rules {
	t.Helper()
	rules, err := ratelimit.NewRules(config.RateLimitConfig{
		Enabled: true,
		PerUser: config.RateLimitRule{Limit: 100, Window: "1m"},
		Commands: map[string]config.RateLimitRule{
			"buy": {Limit: 2, Window: "1m"},
		},
	}, []int64{adminID})
	require.NoError(t, err)
	return rules
}

func newRateLimit(t *testing.T, limiter ratelimit.Limiter) *middleware.RateLimitMiddleware {
	t.Helper()
	tr, err := i18n.Load("ru")
	require.NoError(t, err)
	return middleware.NewRateLimitMiddleware(limiter, newRules(t), tr, testutil.Logger())
}

func redisBackedLimiter(t *testing.T) ratelimit.Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := testutil.Logger()
	return ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(client, log), ratelimit.NewMemoryLimiter(), log)
}

func countingHandler(calls *int) telebot.HandlerFunc {
	return func(telebot.Context) error {
		*calls++
		return nil
	}
}

func TestRateLimit_RejectsPressesOverBuyLimit(t *testing.T) {
	var calls int
	handle := newRateLimit(t, redisBackedLimiter(t)).Handle(countingHandler(&calls))

	var rejected *testutil.FakeContext
	for i := 0; i < 3; i++ {
		c := testutil.NewCallbackContext(buyer, 10+i, "buy:pack1")
		require.NoError(t, handle(c))
		rejected = c
	}

	assert.Equal(t, 2, calls)
	responses := rejected.Responses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Text, "Слишком много запросов")
	assert.Empty(t, rejected.Replies())
}

func TestRateLimit_CommandLimitDoesNotApplyToOtherUpdates(t *testing.T) {
	var calls int
	handle := newRateLimit(t, redisBackedLimiter(t)).Handle(countingHandler(&calls))

	for i := 0; i < 4; i++ {
		require.NoError(t, handle(testutil.NewTextContext(buyer, i+1, "/balance")))
	}
	assert.Equal(t, 4, calls)
}

func TestRateLimit_AdminIsExempt(t *testing.T) {
	var calls int
	handle := newRateLimit(t, redisBackedLimiter(t)).Handle(countingHandler(&calls))

	admin := &telebot.User{ID: adminID, LanguageCode: "ru"}
	for i := 0; i < 4; i++ {
		c := testutil.NewCallbackContext(admin, 10+i, "buy:pack1")
		require.NoError(t, handle(c))
		assert.Empty(t, c.Responses())
	}
	assert.Equal(t, 4, calls)
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (*ratelimit.Result, error) {
	return nil, errors.New("redis: connection refused")
}

func TestRateLimit_LimiterErrorLetsUpdateThrough(t *testing.T) {
	var calls int
	handle := newRateLimit(t, failingLimiter{}).Handle(countingHandler(&calls))

	c := testutil.NewCallbackContext(buyer, 10, "buy:pack1")
	require.NoError(t, handle(c))
	assert.Equal(t, 1, calls)
	assert.Empty(t, c.Responses())
}

type recordingLimiter struct {
	ctxs []context.Context
}

func (l *recordingLimiter) Check(ctx context.Context, _ string, limit int, _ time.Duration) (*ratelimit.Result, error) {
	l.ctxs = append(l.ctxs, ctx)
	return &ratelimit.Result{Allowed: true, Remaining: limit - 1}, nil
}

func TestRateLimit_UsesBaseContextWithCorrelationID(t *testing.T) {
	limiter := &recordingLimiter{}
	mw := newRateLimit(t, limiter)

	base, cancel := context.WithCancel(context.Background())
	mw.WithBaseContext(func() context.Context { return base })

	var calls int
	c := testutil.NewTextContext(buyer, 7, "/task")
	require.NoError(t, mw.Handle(countingHandler(&calls))(c))
	require.NotEmpty(t, limiter.ctxs)

	ctx := limiter.ctxs[0]
	assert.Equal(t, "tg-7", logger.CorrelationIDFromContext(ctx))

	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
