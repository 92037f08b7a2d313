package songmap

import (
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/cbegin/musicclock-go/internal/numeric"
)

type TimeSignaturePoint struct {
	BarIndex  int
	BeatIndex int
	TimeSignature
	StartTick int
}

// BarMap maps ticks to bars through ordered time-signature points. Bar
// indexes are 0-based from the content start; StartBar is the musical bar
// number printed for index 0 (1 by default, lower when there are count-in bars).
type BarMap struct {
	ticksPerQuarterNote int
	startBar            int
	points              []TimeSignaturePoint
	logger              *slog.Logger
	warnedEmpty         atomic.Bool
}

func NewBarMap(ticksPerQuarterNote int) *BarMap {
	return &BarMap{ticksPerQuarterNote: ticksPerQuarterNote, startBar: 1, logger: slog.Default()}
}

func (m *BarMap) StartBar() int { return m.startBar }

func (m *BarMap) Len() int { return len(m.points) }

func (m *BarMap) Points() []TimeSignaturePoint {
	out := make([]TimeSignaturePoint, len(m.points))
	copy(out, m.points)
	return out
}

// AddTimeSignatureAtBar inserts a signature starting at barIndex, replacing
// one already there. Start ticks of later points are recomputed.
func (m *BarMap) AddTimeSignatureAtBar(barIndex int, ts TimeSignature) error {
	if !ts.valid(m.ticksPerQuarterNote) {
		return errors.Errorf("invalid time signature %d/%d at bar %d", ts.Numerator, ts.Denominator, barIndex)
	}
	idx := sort.Search(len(m.points), func(i int) bool { return m.points[i].BarIndex >= barIndex })
	pt := TimeSignaturePoint{BarIndex: barIndex, TimeSignature: ts}
	if idx < len(m.points) && m.points[idx].BarIndex == barIndex {
		m.points[idx] = pt
	} else {
		m.points = append(m.points, TimeSignaturePoint{})
		copy(m.points[idx+1:], m.points[idx:])
		m.points[idx] = pt
	}
	m.recalc()
	return nil
}

func (m *BarMap) ensureNotEmpty() {
	if len(m.points) == 0 {
		m.points = append(m.points, TimeSignaturePoint{TimeSignature: DefaultTimeSignature})
		m.recalc()
	}
}

func (m *BarMap) recalc() {
	tpq := m.ticksPerQuarterNote
	for i := range m.points {
		p := &m.points[i]
		if i == 0 {
			p.StartTick = p.BarIndex * p.TicksPerBar(tpq)
			p.BeatIndex = p.BarIndex * int(p.Numerator)
			continue
		}
		prev := m.points[i-1]
		bars := p.BarIndex - prev.BarIndex
		p.StartTick = prev.StartTick + bars*prev.TicksPerBar(tpq)
		p.BeatIndex = prev.BeatIndex + bars*int(prev.Numerator)
	}
}

func (m *BarMap) warnEmpty() {
	if m.warnedEmpty.CompareAndSwap(false, true) {
		m.logger.Warn("bar map is empty, assuming default time signature", "numerator", DefaultTimeSignature.Numerator, "denominator", DefaultTimeSignature.Denominator)
	}
}

// pointForTick never fails; an empty map yields a 4/4 point at tick 0.
func (m *BarMap) pointForTick(tick float64) TimeSignaturePoint {
	if len(m.points) == 0 {
		m.warnEmpty()
		return TimeSignaturePoint{TimeSignature: DefaultTimeSignature}
	}
	i := sort.Search(len(m.points), func(i int) bool { return float64(m.points[i].StartTick) > tick }) - 1
	if i < 0 {
		i = 0
	}
	return m.points[i]
}

func (m *BarMap) pointForBar(bar float64) TimeSignaturePoint {
	if len(m.points) == 0 {
		m.warnEmpty()
		return TimeSignaturePoint{TimeSignature: DefaultTimeSignature}
	}
	i := sort.Search(len(m.points), func(i int) bool { return float64(m.points[i].BarIndex) > bar }) - 1
	if i < 0 {
		i = 0
	}
	return m.points[i]
}

func (m *BarMap) TimeSignaturePointAtTick(tick int) (TimeSignaturePoint, bool) {
	if len(m.points) == 0 {
		m.warnEmpty()
		return TimeSignaturePoint{}, false
	}
	return m.pointForTick(float64(tick)), true
}

func (m *BarMap) TimeSignatureAtTick(tick int) (TimeSignature, bool) {
	p, ok := m.TimeSignaturePointAtTick(tick)
	if !ok {
		return DefaultTimeSignature, false
	}
	return p.TimeSignature, true
}

func (m *BarMap) TickToBarBeatTick(tick int) BarBeatTick {
	p := m.pointForTick(float64(tick))
	tpb := p.TicksPerBeat(m.ticksPerQuarterNote)
	bars, tickInBar := numeric.FloorDiv(tick-p.StartTick, tpb*int(p.Numerator))
	return BarBeatTick{
		BarIndex:     p.BarIndex + bars,
		BeatInBar:    tickInBar / tpb,
		TickInBeat:   tickInBar % tpb,
		TickInBar:    tickInBar,
		BeatsPerBar:  int(p.Numerator),
		TicksPerBeat: tpb,
	}
}

// BarBeatTickToTick is the exact inverse of TickToBarBeatTick. beatInBar is 0-based.
func (m *BarMap) BarBeatTickToTick(barIndex, beatInBar, tickInBeat int) int {
	p := m.pointForBar(float64(barIndex))
	tpb := p.TicksPerBeat(m.ticksPerQuarterNote)
	return p.StartTick + (barIndex-p.BarIndex)*tpb*int(p.Numerator) + beatInBar*tpb + tickInBeat
}

func (m *BarMap) TickToFractionalBar(tick float64) float64 {
	p := m.pointForTick(tick)
	return float64(p.BarIndex) + (tick-float64(p.StartTick))/float64(p.TicksPerBar(m.ticksPerQuarterNote))
}

func (m *BarMap) FractionalBarToTick(bar float64) float64 {
	p := m.pointForBar(bar)
	return float64(p.StartTick) + (bar-float64(p.BarIndex))*float64(p.TicksPerBar(m.ticksPerQuarterNote))
}

// TickToFractionalBeat counts beats from the content start, including count-in.
func (m *BarMap) TickToFractionalBeat(tick float64) float64 {
	p := m.pointForTick(tick)
	return float64(p.BeatIndex) + (tick-float64(p.StartTick))/float64(p.TicksPerBeat(m.ticksPerQuarterNote))
}

func (m *BarMap) TickToMusicTimestamp(tick float64) MusicTimestamp {
	p := m.pointForTick(tick)
	tpb := float64(p.TicksPerBeat(m.ticksPerQuarterNote))
	tpBar := tpb * float64(p.Numerator)
	delta := tick - float64(p.StartTick)
	bars := math.Floor(delta / tpBar)
	inBar := delta - bars*tpBar
	return MusicTimestamp{
		Bar:  p.BarIndex + int(bars) + m.startBar,
		Beat: 1 + inBar/tpb,
	}
}

func (m *BarMap) MusicTimestampToTick(ts MusicTimestamp) float64 {
	barIndex := ts.Bar - m.startBar
	p := m.pointForBar(float64(barIndex))
	tpb := float64(p.TicksPerBeat(m.ticksPerQuarterNote))
	return float64(p.StartTick) + float64(barIndex-p.BarIndex)*tpb*float64(p.Numerator) + (ts.Beat-1)*tpb
}
