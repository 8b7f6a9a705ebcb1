package kling

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/reelgen/internal/config"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitClampsDuration(t *testing.T) {
	t.Parallel()

	var gotBody submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(taskEnvelope{TaskID: "kl_1", Status: "submitted"})
	}))
	defer server.Close()

	client, err := New(config.HTTPProviderConfig{APIKey: "k", BaseURL: server.URL}, testLogger())
	require.NoError(t, err)

	handle, err := client.Submit(context.Background(), provider.Request{
		Prompt:          "p",
		DurationSeconds: 15,
	})

	require.NoError(t, err)
	assert.Equal(t, "kl_1", handle)
	assert.Equal(t, maxClipSeconds, gotBody.Duration, "duration past the provider ceiling is clamped")
	assert.Equal(t, "standard", gotBody.Mode)
}

func TestPollStatusAndResult(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(taskEnvelope{
			TaskID:   "kl_1",
			Status:   "succeed",
			Progress: 100,
			VideoURL: "https://cdn.klingai.dev/v/kl_1.mp4",
		})
	}))
	defer server.Close()

	client, err := New(config.HTTPProviderConfig{APIKey: "k", BaseURL: server.URL}, testLogger())
	require.NoError(t, err)

	status, err := client.PollStatus(context.Background(), "kl_1")
	require.NoError(t, err)
	assert.Equal(t, provider.StateCompleted, status.State)

	url, err := client.ResolveResultURL(context.Background(), "kl_1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.klingai.dev/v/kl_1.mp4", url)
}

func TestFailedTaskCarriesError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(taskEnvelope{
			TaskID: "kl_2",
			Status: "failed",
			Error:  "content policy violation",
		})
	}))
	defer server.Close()

	client, err := New(config.HTTPProviderConfig{APIKey: "k", BaseURL: server.URL}, testLogger())
	require.NoError(t, err)

	status, err := client.PollStatus(context.Background(), "kl_2")
	require.NoError(t, err)
	assert.Equal(t, provider.StateFailed, status.State)
	assert.Equal(t, "content policy violation", status.Error)
}

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	client, err := New(config.HTTPProviderConfig{APIKey: "k"}, testLogger())
	require.NoError(t, err)

	// Duration past the clip ceiling is priced at the clamped length.
	assert.InDelta(t, 10.0/60.0*0.40, client.EstimateCost(provider.Request{
		DurationSeconds: 15,
		Resolution:      "1080p",
	}), 0.0001)

	assert.InDelta(t, 8.0/60.0*0.15, client.EstimateCost(provider.Request{
		DurationSeconds: 8,
		Resolution:      "720p",
	}), 0.0001)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	client, err := New(config.HTTPProviderConfig{APIKey: "k"}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, ProviderName, client.Name())
	assert.Equal(t, 10, client.MaxDurationSeconds())
	assert.False(t, client.SupportsAudio())
	assert.True(t, client.SupportsReferenceImages())
	assert.Equal(t, provider.RateLimits{PerMinute: 10, PerHour: 300, PerDay: 3000}, client.RateLimits())
}
