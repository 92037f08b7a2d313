package songmap

import "sort"

// BeatPoint is an authored musical beat. Authored beats may drift from the
// grid implied by the time signature (swing, rubato markup).
type BeatPoint struct {
	StartTick   int
	LengthTicks int
	BarIndex    int
	BeatInBar   int
	Type        BeatType
}

// BeatMap is optional; when empty, beats are derived from the BarMap.
type BeatMap struct {
	points []BeatPoint
}

func NewBeatMap() *BeatMap { return &BeatMap{} }

func (m *BeatMap) Len() int { return len(m.points) }

func (m *BeatMap) Points() []BeatPoint {
	out := make([]BeatPoint, len(m.points))
	copy(out, m.points)
	return out
}

func (m *BeatMap) AddBeat(startTick int, beatType BeatType) {
	idx := sort.Search(len(m.points), func(i int) bool { return m.points[i].StartTick >= startTick })
	pt := BeatPoint{StartTick: startTick, Type: beatType}
	if idx < len(m.points) && m.points[idx].StartTick == startTick {
		m.points[idx] = pt
		return
	}
	m.points = append(m.points, BeatPoint{})
	copy(m.points[idx+1:], m.points[idx:])
	m.points[idx] = pt
}

// finalize fills in lengths and bar numbering. A downbeat starts a new bar.
func (m *BeatMap) finalize(lengthTicks int) {
	bar, beat := -1, 0
	for i := range m.points {
		p := &m.points[i]
		if i+1 < len(m.points) {
			p.LengthTicks = m.points[i+1].StartTick - p.StartTick
		} else if lengthTicks > p.StartTick {
			p.LengthTicks = lengthTicks - p.StartTick
		} else if i > 0 {
			p.LengthTicks = m.points[i-1].LengthTicks
		}
		if p.Type == BeatDownbeat || bar < 0 {
			bar++
			beat = 0
		}
		p.BarIndex = bar
		p.BeatInBar = beat
		beat++
	}
}

func (m *BeatMap) BeatAtTick(tick int) (BeatPoint, bool) {
	i := sort.Search(len(m.points), func(i int) bool { return m.points[i].StartTick > tick }) - 1
	if i < 0 {
		return BeatPoint{}, false
	}
	return m.points[i], true
}

// FractionalBeatAtTick returns the authored beat index plus progress into it.
func (m *BeatMap) FractionalBeatAtTick(tick float64) (float64, bool) {
	i := sort.Search(len(m.points), func(i int) bool { return float64(m.points[i].StartTick) > tick }) - 1
	if i < 0 {
		return 0, false
	}
	p := m.points[i]
	if p.LengthTicks <= 0 {
		return float64(i), true
	}
	return float64(i) + (tick-float64(p.StartTick))/float64(p.LengthTicks), true
}
