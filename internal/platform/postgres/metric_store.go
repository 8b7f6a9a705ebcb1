package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/platform/logger"
	"github.com/phrazzld/reelgen/internal/store"
)

// PostgresMetricStore implements the store.MetricStore interface using
// PostgreSQL. Metric rows are append-only.
type PostgresMetricStore struct {
	db store.DBTX
}

// NewPostgresMetricStore creates a new PostgresMetricStore.
func NewPostgresMetricStore(db store.DBTX) *PostgresMetricStore {
	return &PostgresMetricStore{db: db}
}

// WithTx returns a new MetricStore instance that uses the provided
// transaction.
func (s *PostgresMetricStore) WithTx(tx *sql.Tx) store.MetricStore {
	return &PostgresMetricStore{db: tx}
}

// Record appends one metric row.
func (s *PostgresMetricStore) Record(ctx context.Context, metric *domain.JobMetric) error {
	log := logger.FromContext(ctx)

	if err := metric.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO job_metrics (id, job_id, event, duration_ms, cost_usd, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	detail := metric.Detail
	if len(detail) == 0 {
		detail = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, query,
		metric.ID,
		metric.JobID,
		metric.Event,
		metric.DurationMS,
		metric.CostUSD,
		detail,
		metric.RecordedAt,
	)
	if err != nil {
		log.Error("failed to record metric",
			"metric_id", metric.ID,
			"job_id", metric.JobID,
			"event", metric.Event,
			"error", err)
		return MapError(err)
	}

	return nil
}

// ListByJob retrieves all metrics for a job in recording order.
func (s *PostgresMetricStore) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.JobMetric, error) {
	query := `
		SELECT id, job_id, event, duration_ms, cost_usd, detail, recorded_at
		FROM job_metrics WHERE job_id = $1
		ORDER BY recorded_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var metrics []*domain.JobMetric
	for rows.Next() {
		var metric domain.JobMetric
		var detail []byte
		if err := rows.Scan(
			&metric.ID,
			&metric.JobID,
			&metric.Event,
			&metric.DurationMS,
			&metric.CostUSD,
			&detail,
			&metric.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		metric.Detail = detail
		metrics = append(metrics, &metric)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric rows: %w", err)
	}

	return metrics, nil
}
