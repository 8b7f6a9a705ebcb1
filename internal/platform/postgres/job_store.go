package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/platform/logger"
	"github.com/phrazzld/reelgen/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a new JobStore instance that uses the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

// jobColumns is the canonical select list for job rows.
const jobColumns = `id, unit_id, scene_id, clip_index, provider, prompt_ref,
	status, provider_job_id, artifact_path, cost_usd, generation_seconds,
	last_error, created_at, started_at, completed_at`

// CreateMultiple saves a batch of jobs. Callers wrap it in a transaction so
// a unit's intake is all-or-nothing.
func (s *PostgresJobStore) CreateMultiple(ctx context.Context, jobs []*domain.Job) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO jobs (id, unit_id, scene_id, clip_index, provider, prompt_ref,
			status, cost_usd, generation_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		_, err := s.db.ExecContext(ctx, query,
			job.ID,
			job.UnitID,
			job.SceneID,
			job.ClipIndex,
			job.Provider,
			job.PromptRef,
			job.Status,
			job.CostUSD,
			job.GenerationSec,
			job.CreatedAt,
		)
		if err != nil {
			log.Error("failed to insert job",
				"job_id", job.ID,
				"unit_id", job.UnitID,
				"error", err)
			return MapError(err)
		}
	}

	return nil
}

// GetByID retrieves a job by its unique ID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}

	return job, nil
}

// ListByUnit retrieves jobs for a unit in dispatch order (scene, then clip
// index). A non-empty status restricts the listing.
func (s *PostgresJobStore) ListByUnit(ctx context.Context, unitID uuid.UUID, status domain.JobStatus) ([]*domain.Job, error) {
	log := logger.FromContext(ctx)

	var rows *sql.Rows
	var err error

	if status != "" {
		query := `SELECT ` + jobColumns + `
			FROM jobs WHERE unit_id = $1 AND status = $2
			ORDER BY scene_id ASC, clip_index ASC`
		rows, err = s.db.QueryContext(ctx, query, unitID, status)
	} else {
		query := `SELECT ` + jobColumns + `
			FROM jobs WHERE unit_id = $1
			ORDER BY scene_id ASC, clip_index ASC`
		rows, err = s.db.QueryContext(ctx, query, unitID)
	}

	if err != nil {
		log.Error("failed to query jobs by unit",
			"unit_id", unitID,
			"status", status,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// UpdateStatus atomically moves a job out of the expected prior status.
// The WHERE clause pins the prior status, so of two concurrent writers
// exactly one sees RowsAffected == 1; the other gets ErrStaleStatus.
func (s *PostgresJobStore) UpdateStatus(ctx context.Context, job *domain.Job, prior domain.JobStatus) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1, provider_job_id = $2, artifact_path = $3,
			cost_usd = $4, generation_seconds = $5, last_error = $6,
			started_at = $7, completed_at = $8
		WHERE id = $9 AND status = $10
	`

	result, err := s.db.ExecContext(ctx, query,
		job.Status,
		nullString(job.ProviderJobID),
		nullString(job.ArtifactPath),
		job.CostUSD,
		job.GenerationSec,
		nullString(job.LastError),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.ID,
		prior,
	)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", job.ID,
			"status", job.Status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the job does not exist or another writer moved it first.
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, job.ID).Scan(&exists)
		if checkErr != nil {
			return MapError(checkErr)
		}
		if !exists {
			return store.ErrJobNotFound
		}
		return store.ErrStaleStatus
	}

	return nil
}

// ResetStale returns a running job to queued, clearing the provider handle
// and start time. Crash recovery only; normal transitions never go backwards.
func (s *PostgresJobStore) ResetStale(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, provider_job_id = NULL, started_at = NULL
		WHERE id = $2 AND status = $3
	`
	return s.resetTo(ctx, query, id, domain.JobStatusRunning)
}

// Requeue returns a failed job to queued by operator action, clearing the
// recorded error and handle so the next run starts clean.
func (s *PostgresJobStore) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, provider_job_id = NULL, last_error = NULL,
			started_at = NULL, completed_at = NULL
		WHERE id = $2 AND status = $3
	`
	return s.resetTo(ctx, query, id, domain.JobStatusFailed)
}

func (s *PostgresJobStore) resetTo(ctx context.Context, query string, id uuid.UUID, prior domain.JobStatus) error {
	result, err := s.db.ExecContext(ctx, query, domain.JobStatusQueued, id, prior)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists)
		if checkErr != nil {
			return MapError(checkErr)
		}
		if !exists {
			return store.ErrJobNotFound
		}
		return store.ErrStaleStatus
	}

	return nil
}

// CountByStatus returns the number of jobs per status for a unit.
func (s *PostgresJobStore) CountByStatus(ctx context.Context, unitID uuid.UUID) (map[domain.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs WHERE unit_id = $1 GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var providerJobID, artifactPath, lastError sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.UnitID,
		&job.SceneID,
		&job.ClipIndex,
		&job.Provider,
		&job.PromptRef,
		&job.Status,
		&providerJobID,
		&artifactPath,
		&job.CostUSD,
		&job.GenerationSec,
		&lastError,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ProviderJobID = providerJobID.String
	job.ArtifactPath = artifactPath.String
	job.LastError = lastError.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
