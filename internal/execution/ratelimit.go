package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/phrazzld/reelgen/internal/store"
)

// smoothingThreshold is the fraction of the per-minute cap at which the
// limiter starts spreading requests across the remaining window instead of
// letting a burst hit the cap and stall.
const smoothingThreshold = 0.9

// RateLimiter gates outbound provider calls against per-minute, per-hour,
// and per-day caps. Counters are durable: they are loaded from and written
// back to the store around every reservation, so a restarted process
// resumes with its quota spend intact.
//
// Serialization is per provider. A slow wait on one provider never blocks
// acquisition on another.
type RateLimiter struct {
	counters store.RateLimitStore
	registry *provider.Registry
	logger   *slog.Logger
	cfg      RateLimiterConfig

	mu    sync.Mutex
	gates map[string]*providerGate

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// RateLimiterConfig tunes the limiter's reactions to provider error
// signals.
type RateLimiterConfig struct {
	// ThrottleCooldown is the pause forced after a provider reports
	// throttling, regardless of what local counters say.
	ThrottleCooldown time.Duration

	// UnavailableThreshold is the number of consecutive
	// provider-unavailable failures that pauses a provider's acquisition.
	// Zero disables the escalation.
	UnavailableThreshold int

	// UnavailablePause is how long acquisition stays paused once the
	// unavailable threshold is crossed.
	UnavailablePause time.Duration
}

// providerGate serializes acquisition for a single provider and carries
// its in-memory reservation state.
type providerGate struct {
	mu            sync.Mutex
	reserved      int
	cooldownUntil time.Time
	unavailable   int
}

// NewRateLimiter creates a limiter backed by durable counters. Caps come
// from each registered provider's own published limits.
func NewRateLimiter(counters store.RateLimitStore, registry *provider.Registry, cfg RateLimiterConfig, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		counters: counters,
		registry: registry,
		logger:   log,
		cfg:      cfg,
		gates:    make(map[string]*providerGate),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func (r *RateLimiter) gate(providerName string) *providerGate {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[providerName]
	if !ok {
		g = &providerGate{}
		r.gates[providerName] = g
	}
	return g
}

// Acquire blocks until a request slot is available for the provider, then
// reserves it. A successful return guarantees the pending request will not
// push any window past its cap. The reservation is in-memory and
// optimistic; Record finalizes it into the durable counters once the call
// is actually issued.
func (r *RateLimiter) Acquire(ctx context.Context, providerName string) error {
	client, err := r.registry.Get(providerName)
	if err != nil {
		return err
	}
	limits := client.RateLimits()

	g := r.gate(providerName)
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := r.now()

		if wait := g.cooldownUntil.Sub(now); wait > 0 {
			r.logger.Info("rate limiter in forced cooldown",
				"provider", providerName,
				"wait", wait.String())
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		counter, err := r.loadCounter(ctx, providerName, now)
		if err != nil {
			return err
		}
		if counter.RollExpired(now) {
			if err := r.counters.Upsert(ctx, counter); err != nil {
				return fmt.Errorf("persisting rolled rate-limit windows: %w", err)
			}
		}

		// Effective counts include reservations not yet recorded.
		minute := counter.MinuteCount + g.reserved
		hour := counter.HourCount + g.reserved
		day := counter.DayCount + g.reserved

		if wait, capped := capWait(now, minute, limits.PerMinute, counter.MinuteResetsAt); capped {
			r.logger.Info("per-minute cap reached, waiting for window reset",
				"provider", providerName,
				"wait", wait.String())
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if wait, capped := capWait(now, hour, limits.PerHour, counter.HourResetsAt); capped {
			r.logger.Info("per-hour cap reached, waiting for window reset",
				"provider", providerName,
				"wait", wait.String())
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if wait, capped := capWait(now, day, limits.PerDay, counter.DayResetsAt); capped {
			r.logger.Warn("per-day cap reached, waiting for window reset",
				"provider", providerName,
				"wait", wait.String())
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		// Capacity is guaranteed at this point; near the cap the slot is
		// still delayed to spread the tail of the budget over the window.
		if delay := smoothingDelay(now, minute, limits.PerMinute, counter.MinuteResetsAt); delay > 0 {
			r.logger.Debug("smoothing request pacing near per-minute cap",
				"provider", providerName,
				"minute_count", minute,
				"delay", delay.String())
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		g.reserved++
		return nil
	}
}

// Record finalizes one issued request into the durable counters, releasing
// the reservation Acquire took. It is also safe to call for requests that
// bypassed Acquire, such as a one-off reconciliation poll.
func (r *RateLimiter) Record(ctx context.Context, providerName string) error {
	g := r.gate(providerName)
	g.mu.Lock()
	defer g.mu.Unlock()

	now := r.now()
	counter, err := r.loadCounter(ctx, providerName, now)
	if err != nil {
		return err
	}
	counter.RollExpired(now)
	counter.Record(now)

	if g.reserved > 0 {
		g.reserved--
	}

	if err := r.counters.Upsert(ctx, counter); err != nil {
		return fmt.Errorf("persisting rate-limit counters: %w", err)
	}
	return nil
}

// ForceCooldown pauses all acquisition for the provider. Called when the
// provider reports throttling; its signal overrides local counters.
func (r *RateLimiter) ForceCooldown(providerName string) {
	g := r.gate(providerName)
	until := r.now().Add(r.cfg.ThrottleCooldown)

	g.mu.Lock()
	if until.After(g.cooldownUntil) {
		g.cooldownUntil = until
	}
	g.mu.Unlock()

	r.logger.Warn("provider reported throttling, forcing cooldown",
		"provider", providerName,
		"cooldown", r.cfg.ThrottleCooldown.String())
}

// NoteUnavailable records one provider-unavailable response. Once the
// configured number of consecutive failures is reached, acquisition for
// the provider is paused and an alert is logged; the counter resets so a
// provider that stays dead re-escalates after each pause.
func (r *RateLimiter) NoteUnavailable(providerName string) {
	g := r.gate(providerName)

	g.mu.Lock()
	g.unavailable++
	count := g.unavailable
	escalate := r.cfg.UnavailableThreshold > 0 && count >= r.cfg.UnavailableThreshold
	if escalate {
		until := r.now().Add(r.cfg.UnavailablePause)
		if until.After(g.cooldownUntil) {
			g.cooldownUntil = until
		}
		g.unavailable = 0
	}
	g.mu.Unlock()

	if escalate {
		r.logger.Error("provider unavailable too many times in a row, pausing submissions",
			"provider", providerName,
			"consecutive_failures", count,
			"pause", r.cfg.UnavailablePause.String())
	}
}

// NoteHealthy resets the provider's consecutive-unavailable count after a
// call that reached the provider and succeeded.
func (r *RateLimiter) NoteHealthy(providerName string) {
	g := r.gate(providerName)
	g.mu.Lock()
	g.unavailable = 0
	g.mu.Unlock()
}

func (r *RateLimiter) loadCounter(ctx context.Context, providerName string, now time.Time) (*domain.RateLimitCounter, error) {
	counter, err := r.counters.Get(ctx, providerName)
	if err == nil {
		return counter, nil
	}
	if !errors.Is(err, store.ErrCounterNotFound) {
		return nil, fmt.Errorf("loading rate-limit counters: %w", err)
	}
	return domain.NewRateLimitCounter(providerName, now)
}

// capWait reports whether count has reached cap and, if so, how long to
// wait for the window to reset. A non-positive cap means unlimited.
func capWait(now time.Time, count, cap int, resetsAt time.Time) (time.Duration, bool) {
	if cap <= 0 || count < cap {
		return 0, false
	}
	wait := resetsAt.Sub(now)
	if wait <= 0 {
		// Window already expired; loop will roll it on the next pass.
		wait = time.Millisecond
	}
	return wait, true
}

// smoothingDelay spreads the tail of the per-minute budget across the time
// left in the window once usage crosses the smoothing threshold.
func smoothingDelay(now time.Time, count, cap int, resetsAt time.Time) time.Duration {
	if cap <= 0 || float64(count) < smoothingThreshold*float64(cap) {
		return 0
	}
	remaining := cap - count
	if remaining <= 0 {
		return 0
	}
	window := resetsAt.Sub(now)
	if window <= 0 {
		return 0
	}
	return window / time.Duration(remaining+1)
}
