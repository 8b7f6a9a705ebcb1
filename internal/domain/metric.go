package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MetricEvent identifies which state transition a metric row records.
type MetricEvent string

// Metric event values, one per observable transition in a job's execution.
const (
	MetricEventSubmission MetricEvent = "submission"
	MetricEventPoll       MetricEvent = "poll"
	MetricEventDownload   MetricEvent = "download"
	MetricEventRetry      MetricEvent = "retry"
)

// Metric-specific validation errors
var (
	// ErrMetricIDEmpty is returned when a metric ID is empty or nil.
	ErrMetricIDEmpty = errors.New("metric ID cannot be empty")

	// ErrMetricJobIDEmpty is returned when a metric's job ID is empty or nil.
	ErrMetricJobIDEmpty = errors.New("metric job ID cannot be empty")

	// ErrMetricEventInvalid is returned when a metric event is not a known value.
	ErrMetricEventInvalid = errors.New("invalid metric event")
)

// JobMetric is one append-only measurement of a job state transition.
// Metrics are recorded whether or not the job ultimately succeeds; they
// exist precisely to diagnose failures.
type JobMetric struct {
	ID         uuid.UUID       `json:"id"`
	JobID      uuid.UUID       `json:"job_id"`
	Event      MetricEvent     `json:"event"`
	DurationMS int64           `json:"duration_ms"`
	CostUSD    float64         `json:"cost_usd"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// NewJobMetric creates a metric record for the given job and event.
// Returns an error if validation fails.
func NewJobMetric(jobID uuid.UUID, event MetricEvent, duration time.Duration, costUSD float64, detail json.RawMessage) (*JobMetric, error) {
	metric := &JobMetric{
		ID:         uuid.New(),
		JobID:      jobID,
		Event:      event,
		DurationMS: duration.Milliseconds(),
		CostUSD:    costUSD,
		Detail:     detail,
		RecordedAt: time.Now().UTC(),
	}

	if err := metric.Validate(); err != nil {
		return nil, err
	}

	return metric, nil
}

// Validate checks if the JobMetric has valid data.
func (m *JobMetric) Validate() error {
	if m.ID == uuid.Nil {
		return ErrMetricIDEmpty
	}

	if m.JobID == uuid.Nil {
		return ErrMetricJobIDEmpty
	}

	switch m.Event {
	case MetricEventSubmission, MetricEventPoll, MetricEventDownload, MetricEventRetry:
	default:
		return ErrMetricEventInvalid
	}

	return nil
}
