package songmap

import "sort"

// Marker is a named span of the song: a section ("verse", "chorus") or a chord.
type Marker struct {
	Name        string
	StartTick   int
	LengthTicks int
}

func (m Marker) EndTick() int { return m.StartTick + m.LengthTicks }

// MarkerMap holds contiguous named spans. Lengths run to the next marker,
// the last one to the end of the song.
type MarkerMap struct {
	markers []Marker
}

func NewMarkerMap() *MarkerMap { return &MarkerMap{} }

func (m *MarkerMap) Len() int { return len(m.markers) }

func (m *MarkerMap) Markers() []Marker {
	out := make([]Marker, len(m.markers))
	copy(out, m.markers)
	return out
}

func (m *MarkerMap) Add(name string, startTick int) {
	idx := sort.Search(len(m.markers), func(i int) bool { return m.markers[i].StartTick >= startTick })
	mk := Marker{Name: name, StartTick: startTick}
	if idx < len(m.markers) && m.markers[idx].StartTick == startTick {
		m.markers[idx] = mk
		return
	}
	m.markers = append(m.markers, Marker{})
	copy(m.markers[idx+1:], m.markers[idx:])
	m.markers[idx] = mk
}

func (m *MarkerMap) finalize(lengthTicks int) {
	for i := range m.markers {
		mk := &m.markers[i]
		switch {
		case i+1 < len(m.markers):
			mk.LengthTicks = m.markers[i+1].StartTick - mk.StartTick
		case lengthTicks > mk.StartTick:
			mk.LengthTicks = lengthTicks - mk.StartTick
		default:
			mk.LengthTicks = 0
		}
	}
}

// At returns the marker covering tick and its index. A zero-length final
// marker is open-ended.
func (m *MarkerMap) At(tick int) (Marker, int, bool) {
	i := sort.Search(len(m.markers), func(i int) bool { return m.markers[i].StartTick > tick }) - 1
	if i < 0 {
		return Marker{}, -1, false
	}
	mk := m.markers[i]
	if mk.LengthTicks > 0 && tick >= mk.EndTick() {
		return Marker{}, -1, false
	}
	return mk, i, true
}
