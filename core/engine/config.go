package engine

import (
	"fmt"
	"time"
)

// Config holds the loop-level knobs of the dispatch engine.
type Config struct {
	// RetryCount is the number of additional submit attempts per task.
	RetryCount int `json:"retry_count"`
	// RetryDelaySeconds is the pause between attempts of the same task.
	RetryDelaySeconds float64 `json:"retry_delay_seconds"`
	// StatsEvery logs interim statistics every N dispatched tasks.
	StatsEvery int `json:"stats_every"`
	// Release enables the periodic location-release side call.
	Release ReleaseConfig `json:"release"`
}

// ReleaseConfig controls the periodic release of location occupancy.
type ReleaseConfig struct {
	Enabled         bool `json:"enabled"`
	All             bool `json:"all"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.RetryDelaySeconds == 0 {
		c.RetryDelaySeconds = 1
	}
	if c.StatsEvery <= 0 {
		c.StatsEvery = 10
	}
	if c.Release.IntervalSeconds <= 0 {
		c.Release.IntervalSeconds = 1800
	}
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.RetryCount < 0 {
		return fmt.Errorf("retry_count must be >= 0, got %d", c.RetryCount)
	}
	if c.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry_delay_seconds must be >= 0, got %v", c.RetryDelaySeconds)
	}
	return nil
}

// RetryDelay returns the inter-attempt delay as a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds * float64(time.Second))
}

// ReleaseInterval returns the release interval as a duration.
func (c Config) ReleaseInterval() time.Duration {
	return time.Duration(c.Release.IntervalSeconds) * time.Second
}
