// Package songmap converts between ticks, milliseconds and musical positions
// (bar, beat, section, chord) for one piece of music.
//
// A SongMaps is authored once (procedurally or from a standard MIDI file),
// finalized, and then shared read-only between any number of clocks.
package songmap

import "github.com/pkg/errors"

const (
	DefaultTicksPerQuarterNote        = 960
	DefaultMicrosecondsPerQuarterNote = 500000
	DefaultTempoBPM                   = 120.0
)

var DefaultTimeSignature = TimeSignature{Numerator: 4, Denominator: 4}

var (
	ErrFinalized    = errors.New("song maps are finalized")
	ErrInvalidTick  = errors.New("tick must not be negative")
	ErrInvalidTempo = errors.New("tempo must be positive")
)

type TimeSignature struct {
	Numerator   int16
	Denominator int16
}

func (ts TimeSignature) TicksPerBeat(ticksPerQuarterNote int) int {
	return ticksPerQuarterNote * 4 / int(ts.Denominator)
}

func (ts TimeSignature) TicksPerBar(ticksPerQuarterNote int) int {
	return ts.TicksPerBeat(ticksPerQuarterNote) * int(ts.Numerator)
}

func (ts TimeSignature) valid(ticksPerQuarterNote int) bool {
	if ts.Numerator <= 0 || ts.Denominator <= 0 {
		return false
	}
	if ts.Denominator&(ts.Denominator-1) != 0 {
		return false
	}
	return (ticksPerQuarterNote*4)%int(ts.Denominator) == 0
}

// MusicTimestamp is a human-facing position: Bar includes the map's start bar
// offset (count-in bars are zero or negative) and Beat is 1-based and fractional.
type MusicTimestamp struct {
	Bar  int
	Beat float64
}

// BarBeatTick is an integer decomposition of a tick. BarIndex is 0-based from
// the content start and negative inside an extrapolated count-in.
type BarBeatTick struct {
	BarIndex     int
	BeatInBar    int
	TickInBeat   int
	TickInBar    int
	BeatsPerBar  int
	TicksPerBeat int
}

type BeatType int

const (
	BeatNormal BeatType = iota
	BeatDownbeat
)

func (b BeatType) String() string {
	if b == BeatDownbeat {
		return "downbeat"
	}
	return "normal"
}
