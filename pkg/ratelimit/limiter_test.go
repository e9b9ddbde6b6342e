package ratelimit_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/infra/scheduler"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newLimiter(t *testing.T, clock *fakeClock, rules []ratelimit.Rule, opts ratelimit.Options) *ratelimit.Limiter {
	t.Helper()
	logger := quietLogger()
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	opts.Scheduler = sched
	opts.TimeProvider = clock.Now
	l, err := ratelimit.New(logger, rules, opts)
	require.NoError(t, err)
	return l
}

func TestLimiter_WindowCorrectness(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "api", Path: "/api/*", Window: time.Minute, MaxRequests: 3},
	}, ratelimit.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.CheckLimit(ctx, "10.0.0.1", "", "/api/items", "GET")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 3-(i+1), res.Remaining)
		clock.Advance(5 * time.Second)
	}

	res, err := l.CheckLimit(ctx, "10.0.0.1", "", "/api/items", "GET")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, ratelimit.ReasonExceeded, res.Reason)
	assert.Equal(t, "api", res.Rule)
	assert.Equal(t, 45, res.RetryAfter)
	assert.Equal(t, 0, res.Remaining)
}

func TestLimiter_AuthScenario(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "auth", Path: "/api/v1/auth/*", Window: 900 * time.Second, MaxRequests: 5},
	}, ratelimit.Options{})
	ctx := context.Background()

	var results []ratelimit.Result
	for i := 0; i < 6; i++ {
		res, err := l.CheckLimit(ctx, "user-42", "auth", "", "")
		require.NoError(t, err)
		results = append(results, res)
		clock.Advance(2 * time.Second)
	}

	for i := 0; i < 5; i++ {
		assert.True(t, results[i].Allowed, "attempt %d", i+1)
	}
	assert.False(t, results[5].Allowed)
	assert.InDelta(t, 900, results[5].RetryAfter, 15)
}

func TestLimiter_WindowReset(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "api", Window: time.Minute, MaxRequests: 2},
	}, ratelimit.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.CheckLimit(ctx, "c", "api", "", "")
		require.NoError(t, err)
	}
	clock.Advance(time.Minute)

	res, err := l.CheckLimit(ctx, "c", "api", "", "")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	st, err := l.Status(ctx, "c")
	require.NoError(t, err)
	require.Len(t, st.Rules, 1)
	assert.Equal(t, 1, st.Rules[0].Count)
	assert.False(t, st.Rules[0].Blocked)
}

func TestLimiter_BlacklistEscalation(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "login", Window: time.Hour, MaxRequests: 1},
		{Name: "reset", Window: time.Hour, MaxRequests: 1},
	}, ratelimit.Options{BlacklistThreshold: 3, BlacklistDuration: 10 * time.Minute})
	ctx := context.Background()

	_, _ = l.CheckLimit(ctx, "bad", "login", "", "")
	_, _ = l.CheckLimit(ctx, "bad", "reset", "", "")

	res, _ := l.CheckLimit(ctx, "bad", "login", "", "")
	assert.Equal(t, ratelimit.ReasonExceeded, res.Reason)
	res, _ = l.CheckLimit(ctx, "bad", "reset", "", "")
	assert.Equal(t, ratelimit.ReasonExceeded, res.Reason)

	blacklisted, err := l.IsBlacklisted(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, blacklisted, "two violations stay below the threshold")

	res, _ = l.CheckLimit(ctx, "bad", "login", "", "")
	assert.Equal(t, ratelimit.ReasonExceeded, res.Reason)

	blacklisted, err = l.IsBlacklisted(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, blacklisted)

	clock.Advance(2 * time.Hour)
	res, err = l.CheckLimit(ctx, "bad", "login", "", "")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "expired blacklist no longer applies")

	clock.Advance(-2*time.Hour + time.Minute)
	res, err = l.CheckLimit(ctx, "bad", "login", "", "")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, ratelimit.ReasonBlacklisted, res.Reason)
	assert.Equal(t, 9*60, res.RetryAfter)

	st, err := l.Status(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, st.Blacklisted)
	require.NotNil(t, st.BlacklistExpiresAt)
}

func TestLimiter_BlacklistBeatsWhitelist(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, nil, ratelimit.Options{InitialWhitelist: []string{"ops"}})
	ctx := context.Background()

	res, err := l.CheckLimit(ctx, "ops", "", "/", "GET")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, l.AddToBlacklist(ctx, "ops", time.Minute))
	res, err = l.CheckLimit(ctx, "ops", "", "/", "GET")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, ratelimit.ReasonBlacklisted, res.Reason)

	removed, err := l.RemoveFromBlacklist(ctx, "ops")
	require.NoError(t, err)
	assert.True(t, removed)

	res, err = l.CheckLimit(ctx, "ops", "", "/", "GET")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_WhitelistBypassesRules(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "api", Window: time.Minute, MaxRequests: 1},
	}, ratelimit.Options{})
	ctx := context.Background()
	require.NoError(t, l.AddToWhitelist(ctx, "partner"))

	for i := 0; i < 5; i++ {
		res, err := l.CheckLimit(ctx, "partner", "api", "", "")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	removed, err := l.RemoveFromWhitelist(ctx, "partner")
	require.NoError(t, err)
	assert.True(t, removed)

	res, _ := l.CheckLimit(ctx, "partner", "api", "", "")
	assert.True(t, res.Allowed)
	res, _ = l.CheckLimit(ctx, "partner", "api", "", "")
	assert.False(t, res.Allowed)
}

func TestLimiter_BreachCallbackFiresOncePerTransition(t *testing.T) {
	clock := newFakeClock()
	var calls int32
	var gotIdentifier atomic.Value
	l := newLimiter(t, clock, []ratelimit.Rule{
		{
			Name:        "upload",
			Window:      time.Minute,
			MaxRequests: 1,
			OnLimitReached: func(identifier string, rule ratelimit.Rule) {
				atomic.AddInt32(&calls, 1)
				gotIdentifier.Store(identifier)
			},
		},
	}, ratelimit.Options{BlacklistThreshold: 100})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.CheckLimit(ctx, "u1", "upload", "", "")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "u1", gotIdentifier.Load())

	clock.Advance(time.Minute)
	for i := 0; i < 3; i++ {
		_, _ = l.CheckLimit(ctx, "u1", "upload", "", "")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLimiter_RuleResolution(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "auth", Path: "/api/v1/auth/*", Window: time.Minute, MaxRequests: 2},
		{Name: "api", Path: "/api/*", Window: time.Minute, MaxRequests: 100},
		{Name: "upload", Path: "/api/v1/uploads", Methods: []string{"POST"}, Window: time.Minute, MaxRequests: 1},
	}, ratelimit.Options{})
	ctx := context.Background()

	res, err := l.CheckLimit(ctx, "c", "", "/api/v1/auth/login", "POST")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "auth", res.Rule, "most constrained rule is reported")
	assert.Equal(t, 1, res.Remaining)

	res, err = l.CheckLimit(ctx, "c", "", "/api/v1/uploads", "GET")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "api", res.Rule)

	res, err = l.CheckLimit(ctx, "c", "", "/health", "GET")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Rule)

	_, err = l.CheckLimit(ctx, "c", "missing", "", "")
	assert.ErrorIs(t, err, ratelimit.ErrRuleNotFound)

	_, err = l.CheckLimit(ctx, "", "", "/", "GET")
	assert.ErrorIs(t, err, ratelimit.ErrEmptyIdentifier)
}

func TestLimiter_ConcurrentRequestsCannotOvershoot(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "api", Window: time.Minute, MaxRequests: 10},
	}, ratelimit.Options{BlacklistThreshold: 1000})
	ctx := context.Background()

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.CheckLimit(ctx, "burst", "api", "", "")
			if assert.NoError(t, err) && res.Allowed {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed)
}

func TestLimiter_SweepRemovesStaleRecords(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, clock, []ratelimit.Rule{
		{Name: "api", Window: time.Minute, MaxRequests: 10},
	}, ratelimit.Options{})
	ctx := context.Background()

	_, _ = l.CheckLimit(ctx, "a", "api", "", "")
	clock.Advance(90 * time.Second)
	_, _ = l.CheckLimit(ctx, "b", "api", "", "")
	clock.Advance(45 * time.Second)

	removed, err := l.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	st, err := l.Status(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, st.Rules)
	st, err = l.Status(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, st.Rules, 1)
}

func TestNew_RejectsInvalidRules(t *testing.T) {
	logger := quietLogger()
	_, err := ratelimit.New(logger, []ratelimit.Rule{
		{Name: "a", Window: time.Minute, MaxRequests: 1},
		{Name: "a", Window: time.Minute, MaxRequests: 2},
	}, ratelimit.Options{})
	assert.ErrorIs(t, err, ratelimit.ErrDuplicateRule)

	_, err = ratelimit.New(logger, []ratelimit.Rule{{Name: "b", MaxRequests: 1}}, ratelimit.Options{})
	assert.ErrorIs(t, err, ratelimit.ErrInvalidRule)
}
