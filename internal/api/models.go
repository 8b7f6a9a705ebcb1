package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
)

// EnqueueJobsRequest is the body for POST /units/{unitID}/jobs.
type EnqueueJobsRequest struct {
	Jobs []EnqueueJobEntry `json:"jobs" validate:"required,min=1,max=999,dive"`
}

// EnqueueJobEntry describes one clip to enqueue. Provider may be empty,
// in which case the configured default provider is used.
type EnqueueJobEntry struct {
	SceneID   string    `json:"scene_id"   validate:"required,max=128"`
	ClipIndex int       `json:"clip_index" validate:"gte=0,lte=998"`
	Provider  string    `json:"provider"   validate:"omitempty,max=64"`
	PromptRef uuid.UUID `json:"prompt_ref" validate:"required"`
}

// ExecuteRequest is the body for POST /units/{unitID}/execute.
type ExecuteRequest struct {
	Resume bool `json:"resume"`
}

// JobResponse is the client-facing view of a job.
type JobResponse struct {
	ID            uuid.UUID        `json:"id"`
	UnitID        uuid.UUID        `json:"unit_id"`
	SceneID       string           `json:"scene_id"`
	ClipIndex     int              `json:"clip_index"`
	Provider      string           `json:"provider"`
	PromptRef     uuid.UUID        `json:"prompt_ref"`
	Status        domain.JobStatus `json:"status"`
	ArtifactPath  string           `json:"artifact_path,omitempty"`
	CostUSD       float64          `json:"cost_usd"`
	GenerationSec float64          `json:"generation_seconds"`
	LastError     string           `json:"last_error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// ToJobResponse converts a domain job to its API representation. The
// provider-side handle is deliberately not exposed.
func ToJobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:            job.ID,
		UnitID:        job.UnitID,
		SceneID:       job.SceneID,
		ClipIndex:     job.ClipIndex,
		Provider:      job.Provider,
		PromptRef:     job.PromptRef,
		Status:        job.Status,
		ArtifactPath:  job.ArtifactPath,
		CostUSD:       job.CostUSD,
		GenerationSec: job.GenerationSec,
		LastError:     job.LastError,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}
}

// JobListResponse is the body for job listing endpoints.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ExecuteResponse acknowledges an accepted batch execution.
type ExecuteResponse struct {
	UnitID  uuid.UUID `json:"unit_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

// ProviderResponse describes one registered provider's capabilities.
type ProviderResponse struct {
	Name                   string `json:"name"`
	MaxDurationSeconds     int    `json:"max_duration_seconds"`
	SupportsAudio          bool   `json:"supports_audio"`
	SupportsReferenceImage bool   `json:"supports_reference_images"`
	RequestsPerMinute      int    `json:"requests_per_minute"`
	RequestsPerHour        int    `json:"requests_per_hour"`
	RequestsPerDay         int    `json:"requests_per_day"`
}

// CostComparisonResponse prices a unit's queue against every provider.
type CostComparisonResponse struct {
	UnitID uuid.UUID          `json:"unit_id"`
	Totals map[string]float64 `json:"totals_usd"`
}

// MetricResponse is the client-facing view of a job metric row.
type MetricResponse struct {
	Event      domain.MetricEvent `json:"event"`
	DurationMS int64              `json:"duration_ms"`
	CostUSD    float64            `json:"cost_usd"`
	Detail     interface{}        `json:"detail,omitempty"`
	RecordedAt time.Time          `json:"recorded_at"`
}
