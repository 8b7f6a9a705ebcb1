package execution

import (
	"context"
	"fmt"

	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/provider"
)

// CostEstimator prices a set of jobs using each provider's own published
// rates. Estimates feed queue stats and budget planning; actual spend is
// whatever the provider bills out of band.
type CostEstimator struct {
	registry *provider.Registry
	payloads PayloadSource
}

// NewCostEstimator creates an estimator over the registered providers.
func NewCostEstimator(registry *provider.Registry, payloads PayloadSource) *CostEstimator {
	return &CostEstimator{registry: registry, payloads: payloads}
}

// EstimateJobs returns the estimated total cost in USD and the total
// requested content seconds for the given jobs, priced against each job's
// own provider.
func (e *CostEstimator) EstimateJobs(ctx context.Context, jobs []*domain.Job) (costUSD, contentSeconds float64, err error) {
	for _, job := range jobs {
		client, gerr := e.registry.Get(job.Provider)
		if gerr != nil {
			return 0, 0, gerr
		}
		req, lerr := e.payloads.Load(ctx, job.PromptRef)
		if lerr != nil {
			return 0, 0, fmt.Errorf("estimating job %s: %w", job.ID, lerr)
		}
		costUSD += client.EstimateCost(req)
		contentSeconds += float64(req.DurationSeconds)
	}
	return costUSD, contentSeconds, nil
}

// CompareProviders prices the same set of jobs against every registered
// provider, so an operator can see what routing the whole unit elsewhere
// would cost. Providers that cannot generate a requested duration are
// priced at their clamped maximum, matching how their adapters submit.
func (e *CostEstimator) CompareProviders(ctx context.Context, jobs []*domain.Job) (map[string]float64, error) {
	totals := make(map[string]float64)

	for _, job := range jobs {
		req, err := e.payloads.Load(ctx, job.PromptRef)
		if err != nil {
			return nil, fmt.Errorf("comparing job %s: %w", job.ID, err)
		}
		for _, name := range e.registry.Names() {
			client, err := e.registry.Get(name)
			if err != nil {
				return nil, err
			}
			totals[name] += client.EstimateCost(req)
		}
	}

	return totals, nil
}
