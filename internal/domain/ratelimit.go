package domain

import (
	"errors"
	"time"
)

// ErrCounterProviderEmpty is returned when a rate-limit counter has no provider.
var ErrCounterProviderEmpty = errors.New("rate limit counter provider cannot be empty")

// RateLimitCounter tracks how many requests have been issued to one provider
// within the current minute, hour, and day windows, along with each window's
// next reset time. Counters are created once per provider at first use and
// rolled over in place; they are never deleted. The configured caps live with
// the provider adapter, not the counter.
type RateLimitCounter struct {
	Provider       string    `json:"provider"`
	MinuteCount    int       `json:"minute_count"`
	HourCount      int       `json:"hour_count"`
	DayCount       int       `json:"day_count"`
	MinuteResetsAt time.Time `json:"minute_resets_at"`
	HourResetsAt   time.Time `json:"hour_resets_at"`
	DayResetsAt    time.Time `json:"day_resets_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewRateLimitCounter creates a zeroed counter for the provider with all
// three windows starting at now.
func NewRateLimitCounter(provider string, now time.Time) (*RateLimitCounter, error) {
	if provider == "" {
		return nil, ErrCounterProviderEmpty
	}

	return &RateLimitCounter{
		Provider:       provider,
		MinuteResetsAt: now.Add(time.Minute),
		HourResetsAt:   now.Add(time.Hour),
		DayResetsAt:    now.Add(24 * time.Hour),
		UpdatedAt:      now,
	}, nil
}

// RollExpired zeroes each window whose reset time has passed and advances
// its reset timestamp, leaving unexpired windows intact. Rolling an already
// rolled window is a no-op, which keeps concurrent resets idempotent.
// Returns true if any window was rolled.
func (c *RateLimitCounter) RollExpired(now time.Time) bool {
	rolled := false

	if !now.Before(c.MinuteResetsAt) {
		c.MinuteCount = 0
		c.MinuteResetsAt = now.Add(time.Minute)
		rolled = true
	}

	if !now.Before(c.HourResetsAt) {
		c.HourCount = 0
		c.HourResetsAt = now.Add(time.Hour)
		rolled = true
	}

	if !now.Before(c.DayResetsAt) {
		c.DayCount = 0
		c.DayResetsAt = now.Add(24 * time.Hour)
		rolled = true
	}

	if rolled {
		c.UpdatedAt = now
	}

	return rolled
}

// Record increments all three window counts for one issued request.
func (c *RateLimitCounter) Record(now time.Time) {
	c.MinuteCount++
	c.HourCount++
	c.DayCount++
	c.UpdatedAt = now
}
