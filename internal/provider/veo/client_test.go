package veo

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Constructing a real genai client requires network credentials, so these
// tests cover the pure parts of the adapter: pricing, capabilities, and
// error classification.

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	c := &Client{model: defaultModel, logger: testLogger()}

	assert.InDelta(t, 8*costPerSecondUSD, c.EstimateCost(provider.Request{DurationSeconds: 8}), 0.0001)

	// Duration past the clip ceiling is priced at the clamped length.
	assert.InDelta(t, float64(maxClipSeconds)*costPerSecondUSD,
		c.EstimateCost(provider.Request{DurationSeconds: 30}), 0.0001)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	c := &Client{model: defaultModel, logger: testLogger()}

	assert.Equal(t, ProviderName, c.Name())
	assert.Equal(t, maxClipSeconds, c.MaxDurationSeconds())
	assert.False(t, c.SupportsAudio())
	assert.True(t, c.SupportsReferenceImages())
	assert.Positive(t, c.RateLimits().PerMinute)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("API error code drives the kind", func(t *testing.T) {
		t.Parallel()

		err := classify(genai.APIError{Code: 429, Message: "quota exceeded"})
		assert.Equal(t, provider.KindProviderThrottle, provider.KindOf(err))

		err = classify(genai.APIError{Code: 400, Message: "bad prompt"})
		assert.Equal(t, provider.KindRequestRejected, provider.KindOf(err))

		err = classify(genai.APIError{Code: 503, Message: "overloaded"})
		assert.Equal(t, provider.KindProviderUnavailable, provider.KindOf(err))
	})

	t.Run("transport errors are transient", func(t *testing.T) {
		t.Parallel()

		err := classify(errors.New("dial tcp: connection refused"))
		assert.Equal(t, provider.KindTransientNetwork, provider.KindOf(err))
	})
}
