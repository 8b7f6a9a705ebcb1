package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
)

// MetricStore defines the interface for append-only metric persistence.
type MetricStore interface {
	// Record appends one metric row. Failures to record metrics must not
	// fail the job they describe; callers log and continue.
	Record(ctx context.Context, metric *domain.JobMetric) error

	// ListByJob retrieves all metrics for a job in recording order.
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.JobMetric, error)

	// WithTx returns a new MetricStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) MetricStore
}

// ReportStore persists the final report of each batch execution so operator
// tooling can fetch the last outcome per unit.
type ReportStore interface {
	// Save upserts the report for the unit it describes.
	Save(ctx context.Context, report *domain.ExecutionReport) error

	// GetByUnit retrieves the most recent report for a unit.
	// Returns ErrReportNotFound if the unit has never been executed.
	GetByUnit(ctx context.Context, unitID uuid.UUID) (*domain.ExecutionReport, error)
}
