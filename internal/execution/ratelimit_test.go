package execution

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T, client *fakeClient) (*RateLimiter, *fakeCounterStore, *fakeClock) {
	t.Helper()

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(client))

	counters := newFakeCounterStore()
	clock := newFakeClock()

	limiter := NewRateLimiter(counters, registry, RateLimiterConfig{
		ThrottleCooldown:     60 * time.Second,
		UnavailableThreshold: 3,
		UnavailablePause:     5 * time.Minute,
	}, testLogger())
	limiter.now = clock.Now
	limiter.sleep = clock.Sleep
	return limiter, counters, clock
}

func TestRateLimiterAcquireAndRecord(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	limiter, counters, _ := testLimiter(t, client)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, "test"))
	require.NoError(t, limiter.Record(ctx, "test"))

	counter, err := counters.Get(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.MinuteCount)
	assert.Equal(t, 1, counter.HourCount)
	assert.Equal(t, 1, counter.DayCount)
}

func TestRateLimiterWaitsAtMinuteCap(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	client.limits = provider.RateLimits{PerMinute: 2, PerHour: 100, PerDay: 1000}
	limiter, counters, clock := testLimiter(t, client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.Acquire(ctx, "test"))
		require.NoError(t, limiter.Record(ctx, "test"))
	}

	before := clock.Now()
	require.NoError(t, limiter.Acquire(ctx, "test"))
	require.NoError(t, limiter.Record(ctx, "test"))

	// The third acquire had to wait out the minute window.
	assert.True(t, clock.Now().Sub(before) >= 30*time.Second,
		"expected a wait for the window reset, got %s", clock.Now().Sub(before))

	counter, err := counters.Get(ctx, "test")
	require.NoError(t, err)
	assert.LessOrEqual(t, counter.MinuteCount, 2)
}

func TestRateLimiterSmoothsNearCap(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	client.limits = provider.RateLimits{PerMinute: 10, PerHour: 1000, PerDay: 10000}
	limiter, _, clock := testLimiter(t, client)
	ctx := context.Background()

	// Burn through 9 of 10 slots; the tenth crosses the smoothing threshold.
	for i := 0; i < 9; i++ {
		require.NoError(t, limiter.Acquire(ctx, "test"))
		require.NoError(t, limiter.Record(ctx, "test"))
	}

	sleepsBefore := len(clock.sleeps)
	require.NoError(t, limiter.Acquire(ctx, "test"))
	require.NoError(t, limiter.Record(ctx, "test"))

	assert.Greater(t, len(clock.sleeps), sleepsBefore,
		"expected a smoothing delay before the last slot")
}

func TestRateLimiterForceCooldownBlocksAcquire(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	limiter, _, clock := testLimiter(t, client)
	ctx := context.Background()

	limiter.ForceCooldown("test")

	before := clock.Now()
	require.NoError(t, limiter.Acquire(ctx, "test"))

	assert.True(t, clock.Now().Sub(before) >= 60*time.Second,
		"expected acquire to wait out the cooldown")
}

func TestRateLimiterPausesAfterConsecutiveUnavailable(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	limiter, _, clock := testLimiter(t, client)
	ctx := context.Background()

	// Two failures stay below the threshold of three.
	limiter.NoteUnavailable("test")
	limiter.NoteUnavailable("test")

	sleepsBefore := len(clock.sleeps)
	require.NoError(t, limiter.Acquire(ctx, "test"))
	require.NoError(t, limiter.Record(ctx, "test"))
	assert.Equal(t, sleepsBefore, len(clock.sleeps))

	// The third crosses it and pauses the provider.
	limiter.NoteUnavailable("test")

	before := clock.Now()
	require.NoError(t, limiter.Acquire(ctx, "test"))
	assert.True(t, clock.Now().Sub(before) >= 5*time.Minute,
		"expected acquire to wait out the unavailable pause, waited %s", clock.Now().Sub(before))
}

func TestRateLimiterHealthyCallResetsUnavailableCount(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	limiter, _, clock := testLimiter(t, client)
	ctx := context.Background()

	limiter.NoteUnavailable("test")
	limiter.NoteUnavailable("test")
	limiter.NoteHealthy("test")
	limiter.NoteUnavailable("test")
	limiter.NoteUnavailable("test")

	// Four failures total, but never three in a row.
	sleepsBefore := len(clock.sleeps)
	require.NoError(t, limiter.Acquire(ctx, "test"))
	assert.Equal(t, sleepsBefore, len(clock.sleeps))
}

func TestRateLimiterRecoversDurableSpend(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	client.limits = provider.RateLimits{PerMinute: 2, PerHour: 100, PerDay: 1000}

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(client))
	counters := newFakeCounterStore()
	clock := newFakeClock()
	ctx := context.Background()

	first := NewRateLimiter(counters, registry, RateLimiterConfig{ThrottleCooldown: time.Minute}, testLogger())
	first.now = clock.Now
	first.sleep = clock.Sleep
	require.NoError(t, first.Acquire(ctx, "test"))
	require.NoError(t, first.Record(ctx, "test"))
	require.NoError(t, first.Acquire(ctx, "test"))
	require.NoError(t, first.Record(ctx, "test"))

	// A fresh limiter over the same store inherits the spend and must wait.
	second := NewRateLimiter(counters, registry, RateLimiterConfig{ThrottleCooldown: time.Minute}, testLogger())
	second.now = clock.Now
	second.sleep = clock.Sleep

	before := clock.Now()
	require.NoError(t, second.Acquire(ctx, "test"))
	assert.True(t, clock.Now().Sub(before) >= 30*time.Second,
		"expected the restarted limiter to respect persisted counters")
}

func TestRateLimiterUnknownProvider(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	limiter, _, _ := testLimiter(t, client)

	err := limiter.Acquire(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRateLimiterCancellationDuringWait(t *testing.T) {
	t.Parallel()

	client := newFakeClient("test")
	client.limits = provider.RateLimits{PerMinute: 1, PerHour: 100, PerDay: 1000}
	limiter, _, _ := testLimiter(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, limiter.Acquire(ctx, "test"))
	require.NoError(t, limiter.Record(ctx, "test"))

	cancel()
	err := limiter.Acquire(ctx, "test")
	assert.ErrorIs(t, err, context.Canceled)
}