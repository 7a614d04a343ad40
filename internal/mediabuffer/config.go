package mediabuffer

import (
	"time"
)

const (
	// OneYear is one year in seconds.
	OneYear = 365 * 24 * 60 * 60

	DefaultDurationRetryDelay = 2 * time.Second
	DefaultDurationTolerance  = 0.1
	DefaultLiveDurationFloor  = float64(1 << 32)
	DefaultLiveDurationMargin = float64(OneYear)
	DefaultMaxMergeBytes      = 16 << 20
)

// Config tunes the engine. Zero fields take their defaults.
type Config struct {
	// DurationRetryDelay separates duration update attempts that did not
	// fully succeed.
	DurationRetryDelay time.Duration

	// DurationTolerance is how far, in seconds, the applied duration may be
	// from the requested one and still count as success.
	DurationTolerance float64

	// LiveDurationFloor and LiveDurationMargin define the duration used when
	// the content end is unknown: max(floor, duration+margin). Some platforms
	// misbehave with an infinite duration, hence a large finite value.
	LiveDurationFloor  float64
	LiveDurationMargin float64

	// MaxMergeBytes caps the payload of one coalesced append. Negative means
	// no cap.
	MaxMergeBytes int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		DurationRetryDelay: DefaultDurationRetryDelay,
		DurationTolerance:  DefaultDurationTolerance,
		LiveDurationFloor:  DefaultLiveDurationFloor,
		LiveDurationMargin: DefaultLiveDurationMargin,
		MaxMergeBytes:      DefaultMaxMergeBytes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DurationRetryDelay <= 0 {
		c.DurationRetryDelay = d.DurationRetryDelay
	}
	if c.DurationTolerance <= 0 {
		c.DurationTolerance = d.DurationTolerance
	}
	if c.LiveDurationFloor <= 0 {
		c.LiveDurationFloor = d.LiveDurationFloor
	}
	if c.LiveDurationMargin <= 0 {
		c.LiveDurationMargin = d.LiveDurationMargin
	}
	if c.MaxMergeBytes == 0 {
		c.MaxMergeBytes = d.MaxMergeBytes
	}
	return c
}

// LiveDuration returns the duration applied for content whose end is not
// known yet.
func (c Config) LiveDuration(duration float64) float64 {
	c = c.withDefaults()
	return max(c.LiveDurationFloor, duration+c.LiveDurationMargin)
}
