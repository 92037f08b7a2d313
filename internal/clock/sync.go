package clock

import (
	"time"

	"github.com/cbegin/musicclock-go/internal/numeric"
)

// syncController maps wall time onto the render sample clock. It anchors
// an epoch, integrates expected render time at syncSpeed and nudges
// syncSpeed toward the smallest recent error.
type syncController struct {
	settings Settings
	tracker  *MinimumMagnitudeTracker

	synced          bool
	epochWall       time.Duration
	epochSamples    int64
	lastWall        time.Duration
	expectedSeconds float64
	syncSpeed       float64
	lastError       float64
	snaps           int
}

func newSyncController(s Settings) *syncController {
	c := &syncController{settings: s, tracker: NewMinimumMagnitudeTracker(s.ErrorWindow)}
	c.reset()
	return c
}

func (c *syncController) reset() {
	c.synced = false
	c.expectedSeconds = 0
	c.syncSpeed = 1
	c.lastError = 0
	c.tracker.Reset()
}

func (c *syncController) anchor(now time.Duration, samples int64) {
	c.reset()
	c.synced = true
	c.epochWall = now
	c.lastWall = now
	c.epochSamples = samples
}

// update folds in the newest rendered sample count and reports whether the
// error was large enough to re-anchor instead of correcting.
func (c *syncController) update(now time.Duration, latestSamples int64, sampleRate int) bool {
	if !c.synced {
		c.anchor(now, latestSamples)
		return false
	}
	c.expectedSeconds += (now - c.lastWall).Seconds() * c.syncSpeed
	c.lastWall = now

	actual := float64(latestSamples-c.epochSamples) / float64(sampleRate)
	err := actual - c.expectedSeconds
	c.lastError = err
	// The raw error, not the tracked minimum: a real stall shows up in one
	// sample and the window minimum would hide it for ErrorWindow frames.
	if numeric.Abs(err) > c.settings.MaxErrorSecondsBeforeJump {
		c.anchor(now, latestSamples)
		c.lastError = err
		c.snaps++
		return true
	}
	c.tracker.Push(err)
	c.syncSpeed = numeric.Clamp(1+c.settings.KP*c.tracker.Min(), c.settings.MinSyncSpeed, c.settings.MaxSyncSpeed)
	return false
}

func (c *syncController) expectedSamples(sampleRate int) float64 {
	return float64(c.epochSamples) + c.expectedSeconds*float64(sampleRate)
}
