// Package veo implements the provider capability set against Google's Veo
// video generation models via the genai SDK's long-running operations.
package veo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/reelgen/internal/config"
	"github.com/phrazzld/reelgen/internal/provider"
	"google.golang.org/genai"
)

// ProviderName is the identifier this adapter registers under.
const ProviderName = "veo"

// defaultModel is used when no model is configured.
const defaultModel = "veo-2.0-generate-001"

// costPerSecondUSD is the published Veo per-second generation price.
const costPerSecondUSD = 0.35

// maxClipSeconds is the longest clip Veo generates per request.
const maxClipSeconds = 8

// Client drives Veo generation through the genai SDK.
type Client struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// New creates a Veo client from configuration.
func New(ctx context.Context, cfg config.VeoProviderConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("veo API key cannot be empty")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client: client,
		model:  model,
		logger: logger.With(slog.String("provider", ProviderName)),
	}, nil
}

// Name returns the provider identifier string.
func (c *Client) Name() string { return ProviderName }

// Submit starts a video generation operation and returns the operation name
// as the job handle.
func (c *Client) Submit(ctx context.Context, req provider.Request) (string, error) {
	duration := req.DurationSeconds
	if duration > maxClipSeconds {
		duration = maxClipSeconds
	}

	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		AspectRatio:     req.AspectRatio,
		NegativePrompt:  req.NegativePrompt,
		DurationSeconds: genai.Ptr(int32(duration)),
	}

	op, err := c.client.Models.GenerateVideos(ctx, c.model, req.Prompt, nil, cfg)
	if err != nil {
		return "", classify(err)
	}

	if op.Name == "" {
		return "", provider.Errorf(provider.KindUnknown, ProviderName, "operation has no name")
	}

	c.logger.DebugContext(ctx, "generation operation started", "operation", op.Name)
	return op.Name, nil
}

// PollStatus refreshes the operation and maps it to the neutral job state.
// The operations API only distinguishes running from done, so progress is
// reported as 0 or 100.
func (c *Client) PollStatus(ctx context.Context, handle string) (provider.Status, error) {
	op, err := c.refresh(ctx, handle)
	if err != nil {
		return provider.Status{}, err
	}

	if !op.Done {
		return provider.Status{State: provider.StateProcessing}, nil
	}

	if op.Error != nil {
		return provider.Status{
			State: provider.StateFailed,
			Error: fmt.Sprintf("%v", op.Error),
		}, nil
	}

	return provider.Status{State: provider.StateCompleted, Progress: 100}, nil
}

// ResolveResultURL returns the generated video's download URI.
func (c *Client) ResolveResultURL(ctx context.Context, handle string) (string, error) {
	op, err := c.refresh(ctx, handle)
	if err != nil {
		return "", err
	}

	if !op.Done || op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return "", provider.Errorf(provider.KindUnknown, ProviderName,
			"operation %s has no generated video", handle)
	}

	video := op.Response.GeneratedVideos[0].Video
	if video == nil || video.URI == "" {
		return "", provider.Errorf(provider.KindUnknown, ProviderName,
			"operation %s returned a video without a URI", handle)
	}

	return video.URI, nil
}

// RateLimits returns the Veo quota for a standard API tier.
func (c *Client) RateLimits() provider.RateLimits {
	return provider.RateLimits{PerMinute: 10, PerHour: 120, PerDay: 400}
}

// EstimateCost estimates the generation cost in USD from per-second pricing.
func (c *Client) EstimateCost(req provider.Request) float64 {
	duration := req.DurationSeconds
	if duration > maxClipSeconds {
		duration = maxClipSeconds
	}
	return float64(duration) * costPerSecondUSD
}

// MaxDurationSeconds is the longest clip Veo generates per request.
func (c *Client) MaxDurationSeconds() int { return maxClipSeconds }

// SupportsAudio reports native audio generation.
func (c *Client) SupportsAudio() bool { return false }

// SupportsReferenceImages reports reference image support (image-to-video).
func (c *Client) SupportsReferenceImages() bool { return true }

// refresh fetches the current state of an operation by name.
func (c *Client) refresh(ctx context.Context, handle string) (*genai.GenerateVideosOperation, error) {
	op := &genai.GenerateVideosOperation{Name: handle}

	op, err := c.client.Operations.GetVideosOperation(ctx, op, nil)
	if err != nil {
		return nil, classify(err)
	}

	return op, nil
}

// classify maps a genai SDK error to a provider error kind using the API
// error's HTTP code when available.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := provider.KindFromHTTPStatus(apiErr.Code)
		if kind == provider.KindUnknown {
			kind = provider.KindProviderUnavailable
		}
		return provider.NewError(kind, ProviderName, err)
	}

	// Everything below the API layer (DNS, TLS, resets) is transport.
	return provider.NewError(provider.KindTransientNetwork, ProviderName, err)
}
