package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
)

// JobStore defines the interface for job persistence.
// Jobs are mutated only through UpdateStatus, which is atomic with respect
// to concurrent executors: the update names the status it expects to
// replace, and only one writer can win that race.
type JobStore interface {
	// CreateMultiple saves a batch of jobs. Run it within a transaction via
	// WithTx and RunInTransaction so intake is all-or-nothing.
	CreateMultiple(ctx context.Context, jobs []*domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListByUnit retrieves all jobs for a unit in dispatch order
	// (scene, then clip index). A non-empty status filters the listing.
	ListByUnit(ctx context.Context, unitID uuid.UUID, status domain.JobStatus) ([]*domain.Job, error)

	// UpdateStatus atomically moves a job from expected prior status to the
	// state carried on job, persisting provider handle, artifact path, cost,
	// timing, and last error alongside. Returns ErrStaleStatus if the row is
	// no longer in prior, ErrJobNotFound if it does not exist.
	UpdateStatus(ctx context.Context, job *domain.Job, prior domain.JobStatus) error

	// CountByStatus returns the number of jobs per status for a unit.
	CountByStatus(ctx context.Context, unitID uuid.UUID) (map[domain.JobStatus]int, error)

	// ResetStale returns a job left running by a dead process to queued,
	// clearing the untrusted provider handle and start time. This is the
	// one sanctioned move against the monotonic lifecycle and exists only
	// for crash recovery. Returns ErrStaleStatus if the job is not running.
	ResetStale(ctx context.Context, id uuid.UUID) error

	// Requeue returns a failed job to queued by explicit operator action,
	// clearing the recorded error and handle. Returns ErrStaleStatus if
	// the job is not failed.
	Requeue(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new JobStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) JobStore
}
