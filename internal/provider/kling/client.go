// Package kling implements the provider capability set against the Kling
// video generation API (JSON over HTTP).
package kling

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
const ProviderName = "kling"

const defaultBaseURL = "https://api.klingai.dev"

// maxClipSeconds is Kling's clip-length ceiling; longer requests are clamped.
const maxClipSeconds = 10

// costPerMinuteUSD is Kling's published per-minute pricing by resolution.
var costPerMinuteUSD = map[string]float64{
	"720p":  0.15,
	"1080p": 0.40,
}

// Client talks to the Kling generation API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Kling client from configuration.
func New(cfg config.HTTPProviderConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("kling API key cannot be empty")
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

type submitRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Duration       int    `json:"duration"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Mode           string `json:"mode"`
	ReferenceImage string `json:"reference_image,omitempty"`
}

type taskEnvelope struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"task_status"`
	Progress int    `json:"progress"`
	Error    string `json:"task_status_msg"`
	VideoURL string `json:"video_url"`
}

// Submit sends a generation request and returns the provider task handle.
func (c *Client) Submit(ctx context.Context, req provider.Request) (string, error) {
	duration := req.DurationSeconds
	if duration > maxClipSeconds {
		duration = maxClipSeconds
	}

	body := submitRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Duration:       duration,
		AspectRatio:    req.AspectRatio,
		Mode:           "standard",
		ReferenceImage: req.ReferenceImagePath,
	}

	var resp taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/videos/text2video", body, &resp); err != nil {
		return "", err
	}

	if resp.TaskID == "" {
		return "", provider.Errorf(provider.KindUnknown, ProviderName, "submit response missing task_id")
	}

	c.logger.DebugContext(ctx, "task submitted", "task_id", resp.TaskID)
	return resp.TaskID, nil
}

// PollStatus checks the remote state of a submitted task.
func (c *Client) PollStatus(ctx context.Context, handle string) (provider.Status, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/videos/text2video/"+handle, nil, &resp); err != nil {
		return provider.Status{}, err
	}

	state, err := mapState(resp.Status)
	if err != nil {
		return provider.Status{}, provider.NewError(provider.KindUnknown, ProviderName, err)
	}

	status := provider.Status{
		State:    state,
		Progress: resp.Progress,
	}
	if state == provider.StateFailed {
		status.Error = resp.Error
	}

	return status, nil
}

// ResolveResultURL returns the download URL for a completed task. Kling
// embeds the URL in the task document rather than a separate endpoint.
func (c *Client) ResolveResultURL(ctx context.Context, handle string) (string, error) {
	var resp taskEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/videos/text2video/"+handle, nil, &resp); err != nil {
		return "", err
	}

	if resp.VideoURL == "" {
		return "", provider.Errorf(provider.KindUnknown, ProviderName, "task %s has no video_url", handle)
	}

	return resp.VideoURL, nil
}

// RateLimits returns Kling's published quota.
func (c *Client) RateLimits() provider.RateLimits {
	return provider.RateLimits{PerMinute: 10, PerHour: 300, PerDay: 3000}
}

// EstimateCost estimates the generation cost in USD. Duration is clamped
// the same way Submit clamps it.
func (c *Client) EstimateCost(req provider.Request) float64 {
	rate, ok := costPerMinuteUSD[req.Resolution]
	if !ok {
		rate = costPerMinuteUSD["1080p"]
	}

	duration := req.DurationSeconds
	if duration > maxClipSeconds {
		duration = maxClipSeconds
	}

	return float64(duration) / 60.0 * rate
}

// MaxDurationSeconds is the longest clip Kling generates.
func (c *Client) MaxDurationSeconds() int { return maxClipSeconds }

// SupportsAudio reports native audio generation.
func (c *Client) SupportsAudio() bool { return false }

// SupportsReferenceImages reports reference image support.
func (c *Client) SupportsReferenceImages() bool { return true }

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

func mapState(s string) (provider.JobState, error) {
	switch s {
	case "submitted", "queued":
		return provider.StateQueued, nil
	case "processing":
		return provider.StateProcessing, nil
	case "succeed", "succeeded", "completed":
		return provider.StateCompleted, nil
	case "failed":
		return provider.StateFailed, nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}
