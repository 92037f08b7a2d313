package render

import (
	"math"
	"sync/atomic"
)

const (
	clickSeconds   = 0.03
	accentFreq     = 1760.0
	beatFreq       = 880.0
	defaultClickDB = -12.0
)

// click is a short decaying sine, retriggered on every beat.
type click struct {
	enabled    atomic.Bool
	sampleRate float64
	gain       float64

	phase     float64
	step      float64
	env       float64
	decay     float64
	remaining int
}

func newClick(sampleRate int, enabled bool, gain float64) *click {
	if gain <= 0 {
		gain = math.Pow(10, defaultClickDB/20)
	}
	frames := clickSeconds * float64(sampleRate)
	c := &click{
		sampleRate: float64(sampleRate),
		gain:       gain,
		decay:      math.Exp(math.Log(0.001) / frames),
	}
	c.enabled.Store(enabled)
	return c
}

func (c *click) trigger(accent bool) {
	if !c.enabled.Load() {
		return
	}
	freq := beatFreq
	if accent {
		freq = accentFreq
	}
	c.phase = 0
	c.step = 2 * math.Pi * freq / c.sampleRate
	c.env = 1
	c.remaining = int(clickSeconds * c.sampleRate)
}

func (c *click) next() float32 {
	if c.remaining <= 0 {
		return 0
	}
	v := math.Sin(c.phase) * c.env * c.gain
	c.phase += c.step
	c.env *= c.decay
	c.remaining--
	return float32(v)
}
