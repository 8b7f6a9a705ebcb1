package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/platform/logger"
	"github.com/phrazzld/reelgen/internal/store"
)

// PostgresArtifactStore implements the store.ArtifactStore interface using
// PostgreSQL.
type PostgresArtifactStore struct {
	db store.DBTX
}

// NewPostgresArtifactStore creates a new PostgresArtifactStore.
func NewPostgresArtifactStore(db store.DBTX) *PostgresArtifactStore {
	return &PostgresArtifactStore{db: db}
}

// WithTx returns a new ArtifactStore instance that uses the provided
// transaction.
func (s *PostgresArtifactStore) WithTx(tx *sql.Tx) store.ArtifactStore {
	return &PostgresArtifactStore{db: tx}
}

// Create inserts a verified artifact record.
func (s *PostgresArtifactStore) Create(ctx context.Context, artifact *domain.Artifact) error {
	log := logger.FromContext(ctx)

	if err := artifact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO artifacts (id, job_id, source_url, local_path, size_bytes,
			checksum_sha256, duration_seconds, downloaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		artifact.ID,
		artifact.JobID,
		artifact.SourceURL,
		artifact.LocalPath,
		artifact.SizeBytes,
		artifact.ChecksumSHA256,
		artifact.DurationSec,
		artifact.DownloadedAt,
	)
	if err != nil {
		log.Error("failed to insert artifact",
			"artifact_id", artifact.ID,
			"job_id", artifact.JobID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByJobID retrieves the artifact for a job.
func (s *PostgresArtifactStore) GetByJobID(ctx context.Context, jobID uuid.UUID) (*domain.Artifact, error) {
	query := `
		SELECT id, job_id, source_url, local_path, size_bytes,
			checksum_sha256, duration_seconds, downloaded_at
		FROM artifacts WHERE job_id = $1
	`

	var artifact domain.Artifact
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&artifact.ID,
		&artifact.JobID,
		&artifact.SourceURL,
		&artifact.LocalPath,
		&artifact.SizeBytes,
		&artifact.ChecksumSHA256,
		&artifact.DurationSec,
		&artifact.DownloadedAt,
	)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrArtifactNotFound
		}
		return nil, MapError(err)
	}

	return &artifact, nil
}

// ListByUnit retrieves all artifacts for a unit's jobs in clip order.
func (s *PostgresArtifactStore) ListByUnit(ctx context.Context, unitID uuid.UUID) ([]*domain.Artifact, error) {
	query := `
		SELECT a.id, a.job_id, a.source_url, a.local_path, a.size_bytes,
			a.checksum_sha256, a.duration_seconds, a.downloaded_at
		FROM artifacts a
		JOIN jobs j ON j.id = a.job_id
		WHERE j.unit_id = $1
		ORDER BY j.scene_id ASC, j.clip_index ASC
	`

	rows, err := s.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var artifacts []*domain.Artifact
	for rows.Next() {
		var artifact domain.Artifact
		if err := rows.Scan(
			&artifact.ID,
			&artifact.JobID,
			&artifact.SourceURL,
			&artifact.LocalPath,
			&artifact.SizeBytes,
			&artifact.ChecksumSHA256,
			&artifact.DurationSec,
			&artifact.DownloadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		artifacts = append(artifacts, &artifact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact rows: %w", err)
	}

	return artifacts, nil
}
