package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/platform/logger"
	"github.com/phrazzld/reelgen/internal/store"
)

// PostgresReportStore implements the store.ReportStore interface using
// PostgreSQL. The report body is stored as JSONB; one row per unit holds
// the most recent execution outcome.
type PostgresReportStore struct {
	db store.DBTX
}

// NewPostgresReportStore creates a new PostgresReportStore.
func NewPostgresReportStore(db store.DBTX) *PostgresReportStore {
	return &PostgresReportStore{db: db}
}

// Save upserts the report for the unit it describes.
func (s *PostgresReportStore) Save(ctx context.Context, report *domain.ExecutionReport) error {
	log := logger.FromContext(ctx)

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO execution_reports (unit_id, report, finished_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (unit_id) DO UPDATE SET
			report = EXCLUDED.report,
			finished_at = EXCLUDED.finished_at
	`

	if _, err := s.db.ExecContext(ctx, query, report.UnitID, body, report.FinishedAt); err != nil {
		log.Error("failed to save execution report",
			"unit_id", report.UnitID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByUnit retrieves the most recent report for a unit.
func (s *PostgresReportStore) GetByUnit(ctx context.Context, unitID uuid.UUID) (*domain.ExecutionReport, error) {
	query := `SELECT report FROM execution_reports WHERE unit_id = $1`

	var body []byte
	if err := s.db.QueryRowContext(ctx, query, unitID).Scan(&body); err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrReportNotFound
		}
		return nil, MapError(err)
	}

	var report domain.ExecutionReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}

	return &report, nil
}
