package execution

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoller(clock *fakeClock) *Poller {
	p := NewPoller(PollerConfig{
		InitialInterval: 5 * time.Second,
		MaxInterval:     60 * time.Second,
		MaxWait:         5 * time.Minute,
	}, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	p.now = clock.Now
	p.sleep = clock.Sleep
	return p
}

func TestPollUntilCompleteSucceeds(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakeClient("test")
	polls := 0
	client.pollFn = func(ctx context.Context, handle string) (provider.Status, error) {
		polls++
		if polls < 3 {
			return provider.Status{State: provider.StateProcessing, Progress: polls * 30}, nil
		}
		return provider.Status{State: provider.StateCompleted}, nil
	}
	client.resolveFn = func(ctx context.Context, handle string) (string, error) {
		return "http://cdn.example.com/clip.mp4", nil
	}

	outcome, err := testPoller(clock).PollUntilComplete(context.Background(), testLogger(), client, "h-1")

	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, outcome.Result)
	assert.Equal(t, "http://cdn.example.com/clip.mp4", outcome.ResultURL)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestPollUntilCompletePropagatesProviderFailureImmediately(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakeClient("test")
	client.pollFn = func(ctx context.Context, handle string) (provider.Status, error) {
		return provider.Status{State: provider.StateFailed, Error: "nsfw filter triggered"}, nil
	}

	outcome, err := testPoller(clock).PollUntilComplete(context.Background(), testLogger(), client, "h-1")

	require.Error(t, err)
	assert.Equal(t, PollFailed, outcome.Result)
	assert.Equal(t, "nsfw filter triggered", outcome.Reason)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, provider.KindGenerationFailed, provider.KindOf(err))
}

func TestPollUntilCompleteTimesOut(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakeClient("test")
	client.pollFn = func(ctx context.Context, handle string) (provider.Status, error) {
		return provider.Status{State: provider.StateProcessing}, nil
	}

	outcome, err := testPoller(clock).PollUntilComplete(context.Background(), testLogger(), client, "h-1")

	require.NoError(t, err)
	assert.Equal(t, PollTimedOut, outcome.Result)
	assert.GreaterOrEqual(t, outcome.Elapsed, 5*time.Minute)
}

func TestPollUntilCompleteWidensInterval(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakeClient("test")
	client.pollFn = func(ctx context.Context, handle string) (provider.Status, error) {
		return provider.Status{State: provider.StateProcessing}, nil
	}

	_, err := testPoller(clock).PollUntilComplete(context.Background(), testLogger(), client, "h-1")
	require.NoError(t, err)

	// 5s until 30s elapsed, 10s until 60s, 20s until 120s, then widening
	// continues up to the cap.
	sleeps := clock.sleeps
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 5*time.Second, sleeps[0])

	seen := make(map[time.Duration]bool)
	for _, d := range sleeps {
		seen[d] = true
		assert.LessOrEqual(t, d, 60*time.Second)
	}
	assert.True(t, seen[10*time.Second], "expected the interval to widen to 10s")
	assert.True(t, seen[20*time.Second], "expected the interval to widen to 20s")
}

func TestPollUntilCompleteAbsorbsTransientPollErrors(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakeClient("test")
	polls := 0
	client.pollFn = func(ctx context.Context, handle string) (provider.Status, error) {
		polls++
		if polls == 1 {
			return provider.Status{}, provider.Errorf(provider.KindTransientNetwork, "test", "connection reset")
		}
		return provider.Status{State: provider.StateCompleted}, nil
	}

	outcome, err := testPoller(clock).PollUntilComplete(context.Background(), testLogger(), client, "h-1")

	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, outcome.Result)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestPollUntilCompleteFailsOnTerminalPollError(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	client := newFakeClient("test")
	client.pollFn = func(ctx context.Context, handle string) (provider.Status, error) {
		return provider.Status{}, provider.Errorf(provider.KindRequestRejected, "test", "unknown job")
	}

	outcome, err := testPoller(clock).PollUntilComplete(context.Background(), testLogger(), client, "h-1")

	require.Error(t, err)
	assert.Equal(t, PollFailed, outcome.Result)
}
