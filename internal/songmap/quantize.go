package songmap

import "github.com/cbegin/musicclock-go/internal/numeric"

type Subdivision int

const (
	SubdivisionBar Subdivision = iota
	SubdivisionBeat
	SubdivisionWholeNote
	SubdivisionHalfNote
	SubdivisionQuarterNote
	SubdivisionEighthNote
	SubdivisionSixteenthNote
	SubdivisionThirtySecondNote
	SubdivisionDottedHalfNote
	SubdivisionDottedQuarterNote
	SubdivisionDottedEighthNote
	SubdivisionDottedSixteenthNote
	SubdivisionHalfNoteTriplet
	SubdivisionQuarterNoteTriplet
	SubdivisionEighthNoteTriplet
	SubdivisionSixteenthNoteTriplet
)

type QuantizeDirection int

const (
	QuantizeNearest QuantizeDirection = iota
	QuantizeUp
	QuantizeDown
)

// SubdivisionTicks returns the length of sub in ticks under the time
// signature governing tick.
func (m *SongMaps) SubdivisionTicks(sub Subdivision, tick int) int {
	tpq := m.ticksPerQuarterNote
	switch sub {
	case SubdivisionBar:
		return m.bars.pointForTick(float64(tick)).TicksPerBar(tpq)
	case SubdivisionBeat:
		return m.bars.pointForTick(float64(tick)).TicksPerBeat(tpq)
	case SubdivisionWholeNote:
		return tpq * 4
	case SubdivisionHalfNote:
		return tpq * 2
	case SubdivisionQuarterNote:
		return tpq
	case SubdivisionEighthNote:
		return tpq / 2
	case SubdivisionSixteenthNote:
		return tpq / 4
	case SubdivisionThirtySecondNote:
		return tpq / 8
	case SubdivisionDottedHalfNote:
		return tpq * 3
	case SubdivisionDottedQuarterNote:
		return tpq * 3 / 2
	case SubdivisionDottedEighthNote:
		return tpq * 3 / 4
	case SubdivisionDottedSixteenthNote:
		return tpq * 3 / 8
	case SubdivisionHalfNoteTriplet:
		return tpq * 4 / 3
	case SubdivisionQuarterNoteTriplet:
		return tpq * 2 / 3
	case SubdivisionEighthNoteTriplet:
		return tpq / 3
	case SubdivisionSixteenthNoteTriplet:
		return tpq / 6
	}
	return tpq
}

// QuantizeTickToNearestSubdivision snaps tick onto the sub grid anchored at
// the most recent time signature boundary. Nearest breaks ties upward.
func (m *SongMaps) QuantizeTickToNearestSubdivision(tick int, dir QuantizeDirection, sub Subdivision) int {
	interval := m.SubdivisionTicks(sub, tick)
	if interval <= 0 {
		return tick
	}
	base := m.bars.pointForTick(float64(tick)).StartTick
	steps, rem := numeric.FloorDiv(tick-base, interval)
	down := base + steps*interval
	if rem == 0 {
		return down
	}
	up := down + interval
	switch dir {
	case QuantizeUp:
		return up
	case QuantizeDown:
		return down
	}
	if tick-down < up-tick {
		return down
	}
	return up
}
