package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumMagnitudeTracker(t *testing.T) {
	tr := NewMinimumMagnitudeTracker(3)
	assert.Zero(t, tr.Min())

	tr.Push(5)
	tr.Push(-2)
	tr.Push(4)
	assert.Equal(t, -2.0, tr.Min())
	assert.Equal(t, 3, tr.Len())

	tr.Push(10)
	tr.Push(12)
	assert.Equal(t, 4.0, tr.Min())

	tr.Reset()
	assert.Zero(t, tr.Len())
	assert.Zero(t, tr.Min())
	assert.Len(t, NewMinimumMagnitudeTracker(0).values, DefaultErrorWindow)
}

func TestSyncControllerSpeedStaysClamped(t *testing.T) {
	for _, kp := range []float64{0.5, 10} {
		s := Settings{KP: kp}.withDefaults()
		for e := -0.059; e <= 0.059; e += 0.002 {
			c := newSyncController(s)
			c.update(0, 0, 48000)
			snapped := c.update(time.Second, int64((1+e)*48000), 48000)
			require.False(t, snapped, "error %v", e)
			assert.GreaterOrEqual(t, c.syncSpeed, s.MinSyncSpeed)
			assert.LessOrEqual(t, c.syncSpeed, s.MaxSyncSpeed)
		}
	}
}

func TestSyncControllerProportionalStep(t *testing.T) {
	c := newSyncController(DefaultSettings())
	c.update(0, 0, 48000)
	c.update(time.Second, 48000+480, 48000)
	assert.InDelta(t, 0.01, c.lastError, 1e-9)
	assert.InDelta(t, 1.005, c.syncSpeed, 1e-9)

	// -25 ms is a spike next to +10 ms: the tracker keeps the smaller one.
	c.update(2*time.Second, 2*48000-960, 48000)
	assert.InDelta(t, -0.025, c.lastError, 1e-9)
	assert.InDelta(t, 0.01, c.tracker.Min(), 1e-9)
	assert.InDelta(t, 1.005, c.syncSpeed, 1e-9)
}

func TestSyncControllerSnapsOnLargeError(t *testing.T) {
	c := newSyncController(DefaultSettings())
	c.update(0, 1000, 48000)
	c.update(10*time.Millisecond, 1000+480, 48000)
	require.True(t, c.update(20*time.Millisecond, 1000+960+4800, 48000))

	assert.Equal(t, 1, c.snaps)
	assert.Equal(t, 1.0, c.syncSpeed)
	assert.InDelta(t, 0.1, c.lastError, 1e-9)
	assert.Equal(t, int64(1000+960+4800), c.epochSamples)
	assert.Equal(t, float64(c.epochSamples), c.expectedSamples(48000))

	// A negative error beyond the threshold snaps too.
	assert.True(t, c.update(120*time.Millisecond, c.epochSamples, 48000))
	assert.Equal(t, 2, c.snaps)
}
