// Package provider defines the capability surface that every video
// generation provider adapter implements, along with the error-kind
// taxonomy the execution core uses for retry classification. The core is
// provider-agnostic; each adapter translates this surface to its own wire
// protocol.
package provider

import (
	"context"
)

// JobState represents the remote lifecycle of a submitted generation job as
// reported by the provider.
type JobState string

// Remote job states. Timed-out is a synthetic state owned by the poller,
// never reported by a provider, so it does not appear here.
const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// Terminal reports whether the provider will make no further progress on a
// job in this state.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Request is a provider-neutral generation request. Adapters map it onto
// their own request format and clamp fields they do not support.
type Request struct {
	Prompt             string         `json:"prompt"`
	NegativePrompt     string         `json:"negative_prompt,omitempty"`
	DurationSeconds    int            `json:"duration_seconds"`
	AspectRatio        string         `json:"aspect_ratio,omitempty"`
	Resolution         string         `json:"resolution,omitempty"`
	MotionIntensity    string         `json:"motion_intensity,omitempty"`
	CameraMovement     string         `json:"camera_movement,omitempty"`
	AudioPrompt        string         `json:"audio_prompt,omitempty"`
	ReferenceImagePath string         `json:"reference_image,omitempty"`
	Params             map[string]any `json:"params,omitempty"`
}

// Status is one point-in-time view of a remote job.
type Status struct {
	State      JobState `json:"state"`
	Progress   int      `json:"progress"`
	ETASeconds int      `json:"eta_seconds,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// RateLimits is a provider's published request quota per window.
type RateLimits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

// Client is the uniform capability set the executor consumes. One
// implementation exists per provider, selected by configuration.
type Client interface {
	// Name returns the provider identifier string.
	Name() string

	// Submit sends a generation request and returns the provider-assigned
	// job handle. Failures carry an ErrorKind for retry classification.
	Submit(ctx context.Context, req Request) (string, error)

	// PollStatus checks the remote state of a previously submitted job.
	PollStatus(ctx context.Context, handle string) (Status, error)

	// ResolveResultURL returns the download URL for a completed job.
	ResolveResultURL(ctx context.Context, handle string) (string, error)

	// RateLimits returns the provider's request quota configuration.
	RateLimits() RateLimits

	// EstimateCost estimates the generation cost for the request in USD.
	// Providers report actual cost out of band; this estimate feeds budget
	// planning and queue stats only.
	EstimateCost(req Request) float64

	// MaxDurationSeconds is the longest clip the provider can generate.
	MaxDurationSeconds() int

	// SupportsAudio reports whether the provider generates audio natively.
	SupportsAudio() bool

	// SupportsReferenceImages reports whether the provider accepts
	// reference images for character consistency.
	SupportsReferenceImages() bool
}
