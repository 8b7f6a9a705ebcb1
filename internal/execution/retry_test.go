package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	t.Parallel()

	calls := 0
	result, err := WithRetry(context.Background(), fastRetryConfig(), testLogger(), nil, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	result, err := WithRetry(context.Background(), fastRetryConfig(), testLogger(), nil, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, provider.Errorf(provider.KindTransientNetwork, "test", "connection reset")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnTerminalError(t *testing.T) {
	t.Parallel()

	terminal := provider.Errorf(provider.KindRequestRejected, "test", "bad payload")
	calls := 0
	_, err := WithRetry(context.Background(), fastRetryConfig(), testLogger(), nil, func(ctx context.Context) (string, error) {
		calls++
		return "", terminal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, provider.KindRequestRejected, provider.KindOf(err))
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	cfg := fastRetryConfig()
	calls := 0
	_, err := WithRetry(context.Background(), cfg, testLogger(), nil, func(ctx context.Context) (string, error) {
		calls++
		return "", provider.Errorf(provider.KindProviderUnavailable, "test", "still down")
	})

	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, calls)
	// Classification survives the exhaustion wrapper.
	assert.Equal(t, provider.KindProviderUnavailable, provider.KindOf(err))
}

func TestWithRetryNotifiesObserver(t *testing.T) {
	t.Parallel()

	var kinds []provider.ErrorKind
	observe := func(attempt int, kind provider.ErrorKind, err error, delay time.Duration) {
		kinds = append(kinds, kind)
	}

	calls := 0
	_, err := WithRetry(context.Background(), fastRetryConfig(), testLogger(), observe, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", provider.Errorf(provider.KindProviderThrottle, "test", "slow down")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Len(t, kinds, 1)
	assert.Equal(t, provider.KindProviderThrottle, kinds[0])
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}, testLogger(), nil, func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", provider.Errorf(provider.KindTransientNetwork, "test", "flaky")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, 2*time.Second, cfg.backoffDelay(0))
	assert.Equal(t, 4*time.Second, cfg.backoffDelay(1))
	assert.Equal(t, 8*time.Second, cfg.backoffDelay(2))
	assert.Equal(t, 10*time.Second, cfg.backoffDelay(3))
	assert.Equal(t, 10*time.Second, cfg.backoffDelay(8))
}
