package clock

import (
	"time"
)

// Settings tunes the audio render driver. Zero or negative tuning fields
// take defaults. The offsets are taken as given, zero meaning none, so start
// from DefaultSettings to get the usual latency offsets.
type Settings struct {
	// KP is the proportional gain, in speed units per second of error.
	KP           float64
	MinSyncSpeed float64
	MaxSyncSpeed float64
	// MaxErrorSecondsBeforeJump is the error beyond which the driver
	// re-anchors instead of correcting.
	MaxErrorSecondsBeforeJump float64
	// RenderSmoothingLagSeconds is the initial look-behind; it grows up to
	// MaxRenderSmoothingLagSeconds when history runs out.
	RenderSmoothingLagSeconds    float64
	MaxRenderSmoothingLagSeconds float64
	ErrorWindow                  int
	// Offsets from the smoothed audio render position, in song milliseconds.
	PlayerExperienceOffsetMs float64
	VideoRenderOffsetMs      float64
	// SeekDeltaMultiple is how many expected per-refresh deltas a position
	// may deviate before it counts as a seek.
	SeekDeltaMultiple float64
}

func DefaultSettings() Settings {
	return Settings{
		KP:                           0.5,
		MinSyncSpeed:                 0.98,
		MaxSyncSpeed:                 1.02,
		MaxErrorSecondsBeforeJump:    0.060,
		RenderSmoothingLagSeconds:    0.020,
		MaxRenderSmoothingLagSeconds: 0.250,
		ErrorWindow:                  DefaultErrorWindow,
		PlayerExperienceOffsetMs:     -40,
		VideoRenderOffsetMs:          -20,
		SeekDeltaMultiple:            2,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.KP <= 0 {
		s.KP = d.KP
	}
	if s.MinSyncSpeed <= 0 {
		s.MinSyncSpeed = d.MinSyncSpeed
	}
	if s.MaxSyncSpeed <= 0 {
		s.MaxSyncSpeed = d.MaxSyncSpeed
	}
	if s.MaxErrorSecondsBeforeJump <= 0 {
		s.MaxErrorSecondsBeforeJump = d.MaxErrorSecondsBeforeJump
	}
	if s.RenderSmoothingLagSeconds <= 0 {
		s.RenderSmoothingLagSeconds = d.RenderSmoothingLagSeconds
	}
	if s.MaxRenderSmoothingLagSeconds < s.RenderSmoothingLagSeconds {
		s.MaxRenderSmoothingLagSeconds = max(d.MaxRenderSmoothingLagSeconds, s.RenderSmoothingLagSeconds)
	}
	if s.ErrorWindow <= 0 {
		s.ErrorWindow = d.ErrorWindow
	}
	if s.SeekDeltaMultiple <= 0 {
		s.SeekDeltaMultiple = d.SeekDeltaMultiple
	}
	return s
}

// TimeSource returns a monotonic time since an arbitrary epoch.
type TimeSource func() time.Duration

// SystemTime measures from its first call.
func SystemTime() TimeSource {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}

// ManualTime is a TimeSource advanced by hand, for simulations and tests.
type ManualTime struct {
	now time.Duration
}

func (m *ManualTime) Now() time.Duration      { return m.now }
func (m *ManualTime) Advance(d time.Duration) { m.now += d }
func (m *ManualTime) Source() TimeSource      { return m.Now }
