package auction

import "time"

type Config struct {
	// MinimumDuration is the shortest auction CreateAuction accepts
	MinimumDuration time.Duration
	// SoftCloseWindow: a bid closer than this to EndTime resets EndTime to now+SoftCloseWindow
	SoftCloseWindow time.Duration
	// LastCallDuration is the sudden-death window after EndTime
	LastCallDuration time.Duration
	// CleanupGrace is how long a closed auction stays in the registry
	CleanupGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinimumDuration:  60 * time.Second,
		SoftCloseWindow:  5 * time.Minute,
		LastCallDuration: 10 * time.Second,
		CleanupGrace:     60 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MinimumDuration <= 0 {
		c.MinimumDuration = d.MinimumDuration
	}
	if c.SoftCloseWindow <= 0 {
		c.SoftCloseWindow = d.SoftCloseWindow
	}
	if c.LastCallDuration <= 0 {
		c.LastCallDuration = d.LastCallDuration
	}
	if c.CleanupGrace <= 0 {
		c.CleanupGrace = d.CleanupGrace
	}
	return c
}
