package songmap

import (
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
)

type TempoPoint struct {
	Tick                       int
	MicrosecondsPerQuarterNote int

	ms float64
}

func (p TempoPoint) BPM() float64 {
	return 60000000.0 / float64(p.MicrosecondsPerQuarterNote)
}

// Ms returns the time at which this tempo takes effect.
func (p TempoPoint) Ms() float64 { return p.ms }

// TempoMap holds piecewise-constant tempo. Tempo changes are instantaneous
// steps; there are no ramps.
type TempoMap struct {
	ticksPerQuarterNote int
	points              []TempoPoint
	logger              *slog.Logger
	warnedEmpty         atomic.Bool
}

func NewTempoMap(ticksPerQuarterNote int) *TempoMap {
	return &TempoMap{ticksPerQuarterNote: ticksPerQuarterNote, logger: slog.Default()}
}

func (m *TempoMap) msPerTick(usPerQuarterNote int) float64 {
	return float64(usPerQuarterNote) / 1000.0 / float64(m.ticksPerQuarterNote)
}

// AddTempoChange inserts a tempo point, replacing any existing point at the same tick.
func (m *TempoMap) AddTempoChange(tick int, usPerQuarterNote int) error {
	if tick < 0 {
		return errors.Wrapf(ErrInvalidTick, "tempo change at %d", tick)
	}
	if usPerQuarterNote <= 0 {
		return errors.Wrapf(ErrInvalidTempo, "tempo change at %d: %d us/qn", tick, usPerQuarterNote)
	}
	idx := sort.Search(len(m.points), func(i int) bool { return m.points[i].Tick >= tick })
	pt := TempoPoint{Tick: tick, MicrosecondsPerQuarterNote: usPerQuarterNote}
	if idx < len(m.points) && m.points[idx].Tick == tick {
		m.points[idx] = pt
	} else {
		m.points = append(m.points, TempoPoint{})
		copy(m.points[idx+1:], m.points[idx:])
		m.points[idx] = pt
	}
	m.recalc()
	return nil
}

// ensureStartsAtZero copies the first tempo back to tick 0 if the authored
// map starts later.
func (m *TempoMap) ensureStartsAtZero() {
	if len(m.points) == 0 {
		m.points = append(m.points, TempoPoint{MicrosecondsPerQuarterNote: DefaultMicrosecondsPerQuarterNote})
	} else if m.points[0].Tick != 0 {
		first := m.points[0]
		first.Tick = 0
		m.points = append([]TempoPoint{first}, m.points...)
	}
	m.recalc()
}

func (m *TempoMap) recalc() {
	for i := range m.points {
		if i == 0 {
			m.points[0].ms = float64(m.points[0].Tick) * m.msPerTick(m.points[0].MicrosecondsPerQuarterNote)
			continue
		}
		prev := m.points[i-1]
		m.points[i].ms = prev.ms + float64(m.points[i].Tick-prev.Tick)*m.msPerTick(prev.MicrosecondsPerQuarterNote)
	}
}

func (m *TempoMap) Len() int { return len(m.points) }

func (m *TempoMap) Points() []TempoPoint {
	out := make([]TempoPoint, len(m.points))
	copy(out, m.points)
	return out
}

func (m *TempoMap) warnEmpty() {
	if m.warnedEmpty.CompareAndSwap(false, true) {
		m.logger.Warn("tempo map is empty, assuming default tempo", "bpm", DefaultTempoBPM)
	}
}

func (m *TempoMap) pointIndexForTick(tick float64) int {
	i := sort.Search(len(m.points), func(i int) bool { return float64(m.points[i].Tick) > tick }) - 1
	if i < 0 {
		return 0
	}
	return i
}

func (m *TempoMap) TickToMs(tick float64) float64 {
	if len(m.points) == 0 {
		m.warnEmpty()
		return tick * m.msPerTick(DefaultMicrosecondsPerQuarterNote)
	}
	p := m.points[m.pointIndexForTick(tick)]
	return p.ms + (tick-float64(p.Tick))*m.msPerTick(p.MicrosecondsPerQuarterNote)
}

func (m *TempoMap) MsToTick(ms float64) float64 {
	if len(m.points) == 0 {
		m.warnEmpty()
		return ms / m.msPerTick(DefaultMicrosecondsPerQuarterNote)
	}
	i := sort.Search(len(m.points), func(i int) bool { return m.points[i].ms > ms }) - 1
	if i < 0 {
		i = 0
	}
	p := m.points[i]
	return float64(p.Tick) + (ms-p.ms)/m.msPerTick(p.MicrosecondsPerQuarterNote)
}

func (m *TempoMap) TempoPointAtTick(tick int) (TempoPoint, bool) {
	if len(m.points) == 0 {
		m.warnEmpty()
		return TempoPoint{}, false
	}
	return m.points[m.pointIndexForTick(float64(tick))], true
}

// TempoAtTick returns the tempo in beats per minute.
func (m *TempoMap) TempoAtTick(tick int) (float64, bool) {
	p, ok := m.TempoPointAtTick(tick)
	if !ok {
		return DefaultTempoBPM, false
	}
	return p.BPM(), true
}

func (m *TempoMap) MicrosecondsPerQuarterNoteAtTick(tick int) int {
	p, ok := m.TempoPointAtTick(tick)
	if !ok {
		return DefaultMicrosecondsPerQuarterNote
	}
	return p.MicrosecondsPerQuarterNote
}

// TicksPerSecondAtTick is the tick rate at unit speed.
func (m *TempoMap) TicksPerSecondAtTick(tick int) float64 {
	return 1000.0 / m.msPerTick(m.MicrosecondsPerQuarterNoteAtTick(tick))
}
