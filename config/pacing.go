package config

import (
	"fmt"
	"time"

	"github.com/warehousekit/dispatchd/core/pacing"
)

// Pacing mode names.
const (
	ModeCount  = "count"
	ModeWindow = "window"
)

// PacingConfig selects and tunes the run pacer. In count mode the run stops
// after Target successful dispatches. In window mode tasks are spread evenly
// over fixed windows for the run duration, Rate tasks per pickup per window.
type PacingConfig struct {
	Mode                string  `json:"mode"`
	Target              int     `json:"target"`
	FailureDelaySeconds float64 `json:"failure_delay_seconds"`
	DurationMinutes     float64 `json:"duration_minutes"`
	Rate                int     `json:"rate"`
	WindowMinutes       float64 `json:"window_minutes"`
}

// SetDefaults applies sane defaults.
func (c *PacingConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ModeCount
	}
	if c.FailureDelaySeconds <= 0 {
		c.FailureDelaySeconds = pacing.DefaultFailureDelay.Seconds()
	}
	if c.WindowMinutes <= 0 {
		c.WindowMinutes = 60
	}
}

// Validate checks mode specific fields.
func (c PacingConfig) Validate() error {
	switch c.Mode {
	case ModeCount:
		if c.Target <= 0 {
			return fmt.Errorf("target must be positive in count mode, got %d", c.Target)
		}
	case ModeWindow:
		if c.DurationMinutes <= 0 {
			return fmt.Errorf("duration_minutes must be positive in window mode, got %v", c.DurationMinutes)
		}
		if c.Rate <= 0 {
			return fmt.Errorf("rate must be positive in window mode, got %d", c.Rate)
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// FailureDelay returns the post-failure backoff as a duration.
func (c PacingConfig) FailureDelay() time.Duration {
	return time.Duration(c.FailureDelaySeconds * float64(time.Second))
}

// Window returns the window length as a duration.
func (c PacingConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes * float64(time.Minute))
}

// Duration returns the total run duration as a duration.
func (c PacingConfig) Duration() time.Duration {
	return time.Duration(c.DurationMinutes * float64(time.Minute))
}
