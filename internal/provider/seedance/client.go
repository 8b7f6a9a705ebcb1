// Package seedance implements the provider capability set against the
// Seedance 2.0 video generation API (JSON over HTTP).
package seedance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/reelgen/internal/config"
	"github.com/phrazzld/reelgen/internal/provider"
)

// ProviderName is the identifier this adapter registers under.
const ProviderName = "seedance"

// defaultBaseURL is used when no base URL is configured.
const defaultBaseURL = "https://api.seedance.dev"

// costPerMinuteUSD is Seedance's published per-minute pricing by resolution.
var costPerMinuteUSD = map[string]float64{
	"720p":  0.10,
	"1080p": 0.30,
	"2k":    0.80,
}

// Client talks to the Seedance generation API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Seedance client from configuration.
func New(cfg config.HTTPProviderConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("seedance API key cannot be empty")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("provider", ProviderName)),
	}, nil
}

// Name returns the provider identifier string.
func (c *Client) Name() string { return ProviderName }

// submitRequest is the Seedance wire format for a generation request.
type submitRequest struct {
	Prompt          string `json:"prompt"`
	NegativePrompt  string `json:"negative_prompt,omitempty"`
	Duration        int    `json:"duration"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	MotionIntensity string `json:"motion_intensity,omitempty"`
	CameraMovement  string `json:"camera_movement,omitempty"`
	AudioPrompt     string `json:"audio_prompt,omitempty"`
	ReferenceImage  string `json:"reference_image,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit sends a generation request and returns the provider job handle.
func (c *Client) Submit(ctx context.Context, req provider.Request) (string, error) {
	duration := req.DurationSeconds
	if max := c.MaxDurationSeconds(); duration > max {
		duration = max
	}

	body := submitRequest{
		Prompt:          req.Prompt,
		NegativePrompt:  req.NegativePrompt,
		Duration:        duration,
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		MotionIntensity: req.MotionIntensity,
		CameraMovement:  req.CameraMovement,
		AudioPrompt:     req.AudioPrompt,
		ReferenceImage:  req.ReferenceImagePath,
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/generations", body, &resp); err != nil {
		return "", err
	}

	if resp.JobID == "" {
		return "", provider.Errorf(provider.KindUnknown, ProviderName, "submit response missing job_id")
	}

	c.logger.DebugContext(ctx, "job submitted", "provider_job_id", resp.JobID)
	return resp.JobID, nil
}

// statusResponse is the Seedance wire format for a status check.
type statusResponse struct {
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	ETASeconds int    `json:"eta_seconds"`
	Error      string `json:"error"`
}

// PollStatus checks the remote state of a submitted job.
func (c *Client) PollStatus(ctx context.Context, handle string) (provider.Status, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/generations/"+handle, nil, &resp); err != nil {
		return provider.Status{}, err
	}

	state, err := mapState(resp.Status)
	if err != nil {
		return provider.Status{}, provider.NewError(provider.KindUnknown, ProviderName, err)
	}

	return provider.Status{
		State:      state,
		Progress:   resp.Progress,
		ETASeconds: resp.ETASeconds,
		Error:      resp.Error,
	}, nil
}

type resultResponse struct {
	URL string `json:"url"`
}

// ResolveResultURL returns the download URL for a completed job.
func (c *Client) ResolveResultURL(ctx context.Context, handle string) (string, error) {
	var resp resultResponse
	if err := c.do(ctx, http.MethodGet, "/v1/generations/"+handle+"/result", nil, &resp); err != nil {
		return "", err
	}

	if resp.URL == "" {
		return "", provider.Errorf(provider.KindUnknown, ProviderName, "result response missing url")
	}

	return resp.URL, nil
}

// RateLimits returns Seedance's published quota.
func (c *Client) RateLimits() provider.RateLimits {
	return provider.RateLimits{PerMinute: 30, PerHour: 1000, PerDay: 10000}
}

// EstimateCost estimates the generation cost in USD from duration and
// resolution pricing.
func (c *Client) EstimateCost(req provider.Request) float64 {
	rate, ok := costPerMinuteUSD[req.Resolution]
	if !ok {
		rate = costPerMinuteUSD["1080p"]
	}
	return float64(req.DurationSeconds) / 60.0 * rate
}

// MaxDurationSeconds is the longest clip Seedance generates.
func (c *Client) MaxDurationSeconds() int { return 15 }

// SupportsAudio reports native audio generation.
func (c *Client) SupportsAudio() bool { return true }

// SupportsReferenceImages reports reference image support.
func (c *Client) SupportsReferenceImages() bool { return true }

// do performs one JSON round trip, classifying transport and HTTP-status
// failures into provider error kinds.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return provider.NewError(provider.KindRequestRejected, ProviderName,
				fmt.Errorf("failed to encode request: %w", err))
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return provider.NewError(provider.KindRequestRejected, ProviderName, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.NewError(provider.KindTransientNetwork, ProviderName, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		kind := provider.KindFromHTTPStatus(httpResp.StatusCode)
		payload, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return provider.Errorf(kind, ProviderName, "%s %s returned %d: %s",
			method, path, httpResp.StatusCode, bytes.TrimSpace(payload))
	}

	if out != nil {
		if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
			return provider.NewError(provider.KindUnknown, ProviderName,
				fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return nil
}

// mapState translates a Seedance status string to the neutral job state.
func mapState(s string) (provider.JobState, error) {
	switch s {
	case "queued", "pending":
		return provider.StateQueued, nil
	case "processing", "running":
		return provider.StateProcessing, nil
	case "completed", "succeeded":
		return provider.StateCompleted, nil
	case "failed":
		return provider.StateFailed, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
