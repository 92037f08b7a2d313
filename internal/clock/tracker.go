package clock

import "math"

const DefaultErrorWindow = 20

// MinimumMagnitudeTracker keeps the last N values and reports the one
// closest to zero. A persistent bias shows up in every sample while a spike
// shows up in one, so the minimum follows only the bias.
type MinimumMagnitudeTracker struct {
	values []float64
	next   int
	count  int
}

func NewMinimumMagnitudeTracker(window int) *MinimumMagnitudeTracker {
	if window <= 0 {
		window = DefaultErrorWindow
	}
	return &MinimumMagnitudeTracker{values: make([]float64, window)}
}

func (t *MinimumMagnitudeTracker) Push(v float64) {
	t.values[t.next] = v
	t.next = (t.next + 1) % len(t.values)
	if t.count < len(t.values) {
		t.count++
	}
}

// Min returns the signed value of smallest magnitude, or 0 when empty.
func (t *MinimumMagnitudeTracker) Min() float64 {
	if t.count == 0 {
		return 0
	}
	best := t.values[0]
	for _, v := range t.values[1:t.count] {
		if math.Abs(v) < math.Abs(best) {
			best = v
		}
	}
	return best
}

func (t *MinimumMagnitudeTracker) Len() int { return t.count }

func (t *MinimumMagnitudeTracker) Reset() {
	t.next = 0
	t.count = 0
}
