package reservation

import (
	"time"

	"rental-availability-backend/internal/recommend"
)

// Config is the engine's tunable policy.
type Config struct {
	HoldTimeout         time.Duration
	MinimumTurnaround   time.Duration
	RejectPastIntervals bool
	// StrictResources makes availability and conflict queries fail for ids
	// the catalog does not know. Reservations always fail for them.
	StrictResources bool
	Alternatives    recommend.Options
}

// DefaultConfig returns a 5 minute hold, no turnaround buffer and the
// default alternative search.
func DefaultConfig() Config {
	return Config{
		HoldTimeout:  5 * time.Minute,
		Alternatives: recommend.DefaultOptions(),
	}
}

func (c Config) withDefaults() Config {
	if c.HoldTimeout <= 0 {
		c.HoldTimeout = DefaultConfig().HoldTimeout
	}
	if c.MinimumTurnaround < 0 {
		c.MinimumTurnaround = 0
	}
	return c
}
