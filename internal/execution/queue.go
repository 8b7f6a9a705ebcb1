package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/phrazzld/reelgen/internal/store"
)

// JobSpec describes one clip to enqueue.
type JobSpec struct {
	UnitID    uuid.UUID `json:"unit_id"`
	SceneID   string    `json:"scene_id"`
	ClipIndex int       `json:"clip_index"`
	Provider  string    `json:"provider"`
	PromptRef uuid.UUID `json:"prompt_ref"`
}

// Queue handles job intake, queue statistics, and manifest export. Intake
// for a unit is all-or-nothing: either every job lands or none do.
type Queue struct {
	db        *sql.DB
	jobs      store.JobStore
	artifacts store.ArtifactStore
	registry  *provider.Registry
	estimator *CostEstimator
	logger    *slog.Logger
}

// NewQueue creates the intake service.
func NewQueue(db *sql.DB, jobs store.JobStore, artifacts store.ArtifactStore, registry *provider.Registry, estimator *CostEstimator, log *slog.Logger) *Queue {
	return &Queue{
		db:        db,
		jobs:      jobs,
		artifacts: artifacts,
		registry:  registry,
		estimator: estimator,
		logger:    log,
	}
}

// Enqueue validates and persists a batch of job specs in one transaction.
// Every spec must name a registered provider; the whole batch is rejected
// on the first invalid spec.
func (q *Queue) Enqueue(ctx context.Context, specs []JobSpec) ([]*domain.Job, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no jobs to enqueue", domain.ErrValidation)
	}

	jobs := make([]*domain.Job, 0, len(specs))
	for _, spec := range specs {
		if _, err := q.registry.Get(spec.Provider); err != nil {
			return nil, fmt.Errorf("%w: scene %s clip %d: %v",
				domain.ErrUnknownProvider, spec.SceneID, spec.ClipIndex, err)
		}
		job, err := domain.NewJob(spec.UnitID, spec.SceneID, spec.ClipIndex, spec.Provider, spec.PromptRef)
		if err != nil {
			return nil, fmt.Errorf("spec for scene %s clip %d: %w", spec.SceneID, spec.ClipIndex, err)
		}
		jobs = append(jobs, job)
	}

	err := store.RunInTransaction(ctx, q.db, func(ctx context.Context, tx *sql.Tx) error {
		return q.jobs.WithTx(tx).CreateMultiple(ctx, jobs)
	})
	if err != nil {
		return nil, err
	}

	q.logger.Info("jobs enqueued",
		"unit_id", specs[0].UnitID,
		"count", len(jobs))

	return jobs, nil
}

// Stats summarizes the queue state for a unit, with cost and duration
// estimates for the jobs still waiting to run.
func (q *Queue) Stats(ctx context.Context, unitID uuid.UUID) (*domain.QueueStats, error) {
	counts, err := q.jobs.CountByStatus(ctx, unitID)
	if err != nil {
		return nil, err
	}

	stats := &domain.QueueStats{
		UnitID:   unitID,
		Queued:   counts[domain.JobStatusQueued],
		Running:  counts[domain.JobStatusRunning],
		Complete: counts[domain.JobStatusComplete],
		Failed:   counts[domain.JobStatusFailed],
		Skipped:  counts[domain.JobStatusSkipped],
	}
	for _, n := range counts {
		stats.TotalJobs += n
	}

	pending, err := q.jobs.ListByUnit(ctx, unitID, domain.JobStatusQueued)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		cost, contentSeconds, err := q.estimator.EstimateJobs(ctx, pending)
		if err != nil {
			// Estimates are advisory; a missing payload should not hide
			// the counts.
			q.logger.Warn("queue cost estimate unavailable",
				"unit_id", unitID,
				"error", err)
		} else {
			stats.EstimatedCostUSD = cost
			stats.EstimatedDurationMins = contentSeconds / 60
		}
	}

	return stats, nil
}

// ExportManifest is the JSON document Export writes: everything a
// downstream assembly step needs to stitch a unit's clips.
type ExportManifest struct {
	UnitID      uuid.UUID      `json:"unit_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Clips       []ManifestClip `json:"clips"`
}

// ManifestClip is one clip entry in an export manifest.
type ManifestClip struct {
	SceneID        string           `json:"scene_id"`
	ClipIndex      int              `json:"clip_index"`
	Status         domain.JobStatus `json:"status"`
	Provider       string           `json:"provider"`
	LocalPath      string           `json:"local_path,omitempty"`
	DurationSec    float64          `json:"duration_seconds,omitempty"`
	ChecksumSHA256 string           `json:"checksum_sha256,omitempty"`
}

// Export writes the unit's clip manifest to w in dispatch order. Jobs
// without artifacts are listed with their status so gaps are visible.
func (q *Queue) Export(ctx context.Context, unitID uuid.UUID, w io.Writer) error {
	jobs, err := q.jobs.ListByUnit(ctx, unitID, "")
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return store.ErrJobNotFound
	}

	artifacts, err := q.artifacts.ListByUnit(ctx, unitID)
	if err != nil {
		return err
	}
	byJob := make(map[uuid.UUID]*domain.Artifact, len(artifacts))
	for _, a := range artifacts {
		byJob[a.JobID] = a
	}

	manifest := ExportManifest{
		UnitID:      unitID,
		GeneratedAt: time.Now().UTC(),
		Clips:       make([]ManifestClip, 0, len(jobs)),
	}
	for _, job := range jobs {
		clip := ManifestClip{
			SceneID:   job.SceneID,
			ClipIndex: job.ClipIndex,
			Status:    job.Status,
			Provider:  job.Provider,
		}
		if a, ok := byJob[job.ID]; ok {
			clip.LocalPath = a.LocalPath
			clip.DurationSec = a.DurationSec
			clip.ChecksumSHA256 = a.ChecksumSHA256
		}
		manifest.Clips = append(manifest.Clips, clip)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}
