package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
)

// ArtifactStore defines the interface for artifact record persistence.
// Records are insert-only; an artifact is immutable once written.
type ArtifactStore interface {
	// Create inserts a verified artifact record.
	// Returns ErrDuplicate if the job already has an artifact.
	Create(ctx context.Context, artifact *domain.Artifact) error

	// GetByJobID retrieves the artifact for a job.
	// Returns ErrArtifactNotFound if none exists.
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*domain.Artifact, error)

	// ListByUnit retrieves all artifacts belonging to a unit's jobs,
	// ordered by scene and clip index.
	ListByUnit(ctx context.Context, unitID uuid.UUID) ([]*domain.Artifact, error)

	// WithTx returns a new ArtifactStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) ArtifactStore
}
