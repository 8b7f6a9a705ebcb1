package postgres

import (
	"context"

	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/platform/logger"
	"github.com/phrazzld/reelgen/internal/store"
)

// PostgresRateLimitStore implements the store.RateLimitStore interface
// using PostgreSQL. One row exists per provider; rows are upserted, never
// deleted.
type PostgresRateLimitStore struct {
	db store.DBTX
}

// NewPostgresRateLimitStore creates a new PostgresRateLimitStore.
func NewPostgresRateLimitStore(db store.DBTX) *PostgresRateLimitStore {
	return &PostgresRateLimitStore{db: db}
}

// Get retrieves the counter for a provider.
func (s *PostgresRateLimitStore) Get(ctx context.Context, providerName string) (*domain.RateLimitCounter, error) {
	query := `
		SELECT provider, minute_count, hour_count, day_count,
			minute_resets_at, hour_resets_at, day_resets_at, updated_at
		FROM rate_limit_counters WHERE provider = $1
	`

	var counter domain.RateLimitCounter
	err := s.db.QueryRowContext(ctx, query, providerName).Scan(
		&counter.Provider,
		&counter.MinuteCount,
		&counter.HourCount,
		&counter.DayCount,
		&counter.MinuteResetsAt,
		&counter.HourResetsAt,
		&counter.DayResetsAt,
		&counter.UpdatedAt,
	)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrCounterNotFound
		}
		return nil, MapError(err)
	}

	return &counter, nil
}

// Upsert writes the counter state, creating the row on first use.
func (s *PostgresRateLimitStore) Upsert(ctx context.Context, counter *domain.RateLimitCounter) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO rate_limit_counters (provider, minute_count, hour_count, day_count,
			minute_resets_at, hour_resets_at, day_resets_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider) DO UPDATE SET
			minute_count = EXCLUDED.minute_count,
			hour_count = EXCLUDED.hour_count,
			day_count = EXCLUDED.day_count,
			minute_resets_at = EXCLUDED.minute_resets_at,
			hour_resets_at = EXCLUDED.hour_resets_at,
			day_resets_at = EXCLUDED.day_resets_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		counter.Provider,
		counter.MinuteCount,
		counter.HourCount,
		counter.DayCount,
		counter.MinuteResetsAt,
		counter.HourResetsAt,
		counter.DayResetsAt,
		counter.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to upsert rate limit counter",
			"provider", counter.Provider,
			"error", err)
		return MapError(err)
	}

	return nil
}
