package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/reelgen/internal/provider"
)

// PollerConfig controls the adaptive polling cadence.
type PollerConfig struct {
	// InitialInterval is the delay between the first polls.
	InitialInterval time.Duration

	// MaxInterval caps how far the interval widens.
	MaxInterval time.Duration

	// MaxWait is the total polling budget per job. Exceeding it yields a
	// timed-out outcome without a provider-side verdict.
	MaxWait time.Duration
}

// PollResult is the poller's verdict on one job.
type PollResult string

const (
	// PollSucceeded means the provider reported completion and a result
	// URL was resolved.
	PollSucceeded PollResult = "succeeded"

	// PollFailed means the provider reported a terminal failure, or status
	// checks failed in a way that cannot be retried.
	PollFailed PollResult = "failed"

	// PollTimedOut means the local polling budget ran out. The remote job
	// may still complete; the handle stays queryable.
	PollTimedOut PollResult = "timed_out"
)

// PollOutcome describes how polling ended.
type PollOutcome struct {
	Result    PollResult
	ResultURL string
	Reason    string
	Attempts  int
	Elapsed   time.Duration
}

// Poller watches a submitted job until it reaches a terminal state or the
// polling budget runs out. The interval starts tight and doubles at
// widening thresholds, so short clips finish promptly while long
// generations do not burn quota on status checks.
type Poller struct {
	cfg   PollerConfig
	retry RetryConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller. retryCfg governs the result-URL resolution
// after the provider reports completion; polling itself absorbs transient
// status errors without a separate retry budget.
func NewPoller(cfg PollerConfig, retryCfg RetryConfig) *Poller {
	return &Poller{
		cfg:   cfg,
		retry: retryCfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// firstWidenAfter is the elapsed time at which the interval first doubles.
// Each later widening happens at double the previous threshold.
const firstWidenAfter = 30 * time.Second

// PollUntilComplete polls the job behind handle until it completes, fails,
// or exceeds the polling budget. A provider-reported failure propagates
// immediately; no retry can change a terminal remote verdict. Transient
// status-check errors are absorbed and polling continues, since the budget
// already bounds how long a flaky provider can hold a slot.
func (p *Poller) PollUntilComplete(ctx context.Context, log *slog.Logger, client provider.Client, handle string) (PollOutcome, error) {
	start := p.now()
	interval := p.cfg.InitialInterval
	nextWidenAt := firstWidenAfter
	attempts := 0

	for {
		elapsed := p.now().Sub(start)
		if elapsed >= p.cfg.MaxWait {
			return PollOutcome{
				Result:   PollTimedOut,
				Reason:   "polling budget exceeded; remote job may still complete",
				Attempts: attempts,
				Elapsed:  elapsed,
			}, nil
		}

		if err := p.sleep(ctx, interval); err != nil {
			return PollOutcome{Attempts: attempts, Elapsed: p.now().Sub(start)}, err
		}

		attempts++
		status, err := client.PollStatus(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return PollOutcome{Attempts: attempts, Elapsed: p.now().Sub(start)}, ctx.Err()
			}
			kind := provider.KindOf(err)
			if !kind.Retryable() {
				return PollOutcome{
					Result:   PollFailed,
					Reason:   err.Error(),
					Attempts: attempts,
					Elapsed:  p.now().Sub(start),
				}, err
			}
			log.Warn("status poll failed, continuing",
				"handle", handle,
				"attempt", attempts,
				"kind", string(kind),
				"error", err)
		} else {
			switch status.State {
			case provider.StateCompleted:
				url, rerr := WithRetry(ctx, p.retry, log, nil, func(ctx context.Context) (string, error) {
					return client.ResolveResultURL(ctx, handle)
				})
				if rerr != nil {
					return PollOutcome{
						Result:   PollFailed,
						Reason:   rerr.Error(),
						Attempts: attempts,
						Elapsed:  p.now().Sub(start),
					}, rerr
				}
				return PollOutcome{
					Result:    PollSucceeded,
					ResultURL: url,
					Attempts:  attempts,
					Elapsed:   p.now().Sub(start),
				}, nil
			case provider.StateFailed:
				reason := status.Error
				if reason == "" {
					reason = "provider reported generation failure"
				}
				return PollOutcome{
					Result:   PollFailed,
					Reason:   reason,
					Attempts: attempts,
					Elapsed:  p.now().Sub(start),
				}, provider.Errorf(provider.KindGenerationFailed, client.Name(), "%s", reason)
			default:
				log.Debug("job still in progress",
					"handle", handle,
					"state", string(status.State),
					"progress", status.Progress,
					"attempt", attempts)
			}
		}

		elapsed = p.now().Sub(start)
		for elapsed >= nextWidenAt && interval < p.cfg.MaxInterval {
			interval *= 2
			if interval > p.cfg.MaxInterval {
				interval = p.cfg.MaxInterval
			}
			nextWidenAt *= 2
		}
	}
}
