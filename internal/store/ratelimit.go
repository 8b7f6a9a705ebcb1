package store

import (
	"context"

	"github.com/phrazzld/reelgen/internal/domain"
)

// RateLimitStore defines the interface for durable rate-limit counters.
// Counters survive restarts so a relaunched process does not forget how
// much quota it has already spent.
type RateLimitStore interface {
	// Get retrieves the counter for a provider.
	// Returns ErrCounterNotFound if the provider has never issued a call.
	Get(ctx context.Context, providerName string) (*domain.RateLimitCounter, error)

	// Upsert writes the counter state, creating the row on first use.
	Upsert(ctx context.Context, counter *domain.RateLimitCounter) error
}
