package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionReport summarizes one batch execution of a unit's queue.
// A completed run always carries totals and the per-kind failure breakdown,
// even when some jobs failed.
type ExecutionReport struct {
	UnitID            uuid.UUID      `json:"unit_id"`
	TotalJobs         int            `json:"total_jobs"`
	Completed         int            `json:"completed"`
	Failed            int            `json:"failed"`
	Skipped           int            `json:"skipped"`
	TimedOut          int            `json:"timed_out"`
	TotalGenerationS  float64        `json:"total_generation_seconds"`
	TotalCostUSD      float64        `json:"total_cost_usd"`
	AvgCostPerClipUSD float64        `json:"average_cost_per_clip_usd"`
	FailedJobIDs      []uuid.UUID    `json:"failed_job_ids"`
	ErrorKindCounts   map[string]int `json:"error_kind_counts"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
}

// QueueStats summarizes the state of a unit's queue, with cost and duration
// estimates for the jobs it still holds.
type QueueStats struct {
	UnitID                uuid.UUID `json:"unit_id"`
	TotalJobs             int       `json:"total_jobs"`
	Queued                int       `json:"queued"`
	Running               int       `json:"running"`
	Complete              int       `json:"complete"`
	Failed                int       `json:"failed"`
	Skipped               int       `json:"skipped"`
	EstimatedCostUSD      float64   `json:"estimated_cost_usd"`
	EstimatedDurationMins float64   `json:"estimated_duration_minutes"`
}
