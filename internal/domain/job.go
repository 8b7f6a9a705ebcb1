package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a generation job.
type JobStatus string

// Possible job status values. Transitions are monotonic along
// queued -> running -> {complete|failed}; skipped is only reachable
// from queued.
const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
	JobStatusSkipped  JobStatus = "skipped"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusComplete, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition occurs from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusComplete, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// Job-specific validation errors
var (
	// ErrJobIDEmpty is returned when a job ID is empty or nil.
	ErrJobIDEmpty = errors.New("job ID cannot be empty")

	// ErrJobUnitIDEmpty is returned when a job's unit ID is empty or nil.
	ErrJobUnitIDEmpty = errors.New("job unit ID cannot be empty")

	// ErrJobSceneIDEmpty is returned when a job's scene ID is empty.
	ErrJobSceneIDEmpty = errors.New("job scene ID cannot be empty")

	// ErrJobClipIndexNegative is returned when a job's clip index is negative.
	ErrJobClipIndexNegative = errors.New("job clip index cannot be negative")

	// ErrJobProviderEmpty is returned when a job's provider is empty.
	ErrJobProviderEmpty = errors.New("job provider cannot be empty")

	// ErrJobPromptRefEmpty is returned when a job's prompt reference is empty.
	ErrJobPromptRefEmpty = errors.New("job prompt reference cannot be empty")
)

// Job represents one clip generation request against an external provider.
// The prompt payload itself is authored upstream; the job carries only a
// reference to it. A job is owned exclusively by the executor and mutated
// only through the store's atomic status update.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	UnitID        uuid.UUID  `json:"unit_id"`
	SceneID       string     `json:"scene_id"`
	ClipIndex     int        `json:"clip_index"`
	Provider      string     `json:"provider"`
	PromptRef     uuid.UUID  `json:"prompt_ref"`
	Status        JobStatus  `json:"status"`
	ProviderJobID string     `json:"provider_job_id,omitempty"`
	ArtifactPath  string     `json:"artifact_path,omitempty"`
	CostUSD       float64    `json:"cost_usd"`
	GenerationSec float64    `json:"generation_seconds"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a queued Job for the given unit, scene, clip index, and
// provider. It generates a new UUID for the job ID and sets the creation
// timestamp. Returns an error if validation fails.
func NewJob(unitID uuid.UUID, sceneID string, clipIndex int, provider string, promptRef uuid.UUID) (*Job, error) {
	job := &Job{
		ID:        uuid.New(),
		UnitID:    unitID,
		SceneID:   sceneID,
		ClipIndex: clipIndex,
		Provider:  provider,
		PromptRef: promptRef,
		Status:    JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrJobIDEmpty
	}

	if j.UnitID == uuid.Nil {
		return ErrJobUnitIDEmpty
	}

	if j.SceneID == "" {
		return ErrJobSceneIDEmpty
	}

	if j.ClipIndex < 0 {
		return ErrJobClipIndexNegative
	}

	if j.Provider == "" {
		return ErrJobProviderEmpty
	}

	if j.PromptRef == uuid.Nil {
		return ErrJobPromptRefEmpty
	}

	if !j.Status.Valid() {
		return ErrInvalidStatus
	}

	return nil
}

// CanTransitionTo reports whether moving from the job's current status to
// next respects the monotonic lifecycle.
func (j *Job) CanTransitionTo(next JobStatus) bool {
	switch j.Status {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusSkipped
	case JobStatusRunning:
		return next == JobStatusComplete || next == JobStatusFailed
	default:
		// Terminal states admit no further transitions.
		return false
	}
}

// TransitionTo mutates the job's status after checking the lifecycle rules,
// stamping the relevant timestamp. Callers persist the change through the
// store's atomic update, which re-checks the prior status.
func (j *Job) TransitionTo(next JobStatus) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}
	if !j.CanTransitionTo(next) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	switch next {
	case JobStatusRunning:
		j.StartedAt = &now
	case JobStatusComplete, JobStatusFailed, JobStatusSkipped:
		j.CompletedAt = &now
	}

	j.Status = next
	return nil
}
