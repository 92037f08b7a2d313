package clock

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/cbegin/musicclock-go/internal/songmap"
)

// Timebase selects one view of "now".
type Timebase int

const (
	// TimebaseRawAudioRender is the newest producer record, unsmoothed.
	TimebaseRawAudioRender Timebase = iota
	// TimebaseAudioRender is the smoothed render position.
	TimebaseAudioRender
	// TimebasePlayerExperience is what the listener hears.
	TimebasePlayerExperience
	// TimebaseVideoRender is what the frame being drawn should show.
	TimebaseVideoRender

	NumTimebases
)

var timebaseNames = [NumTimebases]string{"raw", "audio", "player", "video"}

func (tb Timebase) Valid() bool { return tb >= 0 && tb < NumTimebases }

func (tb Timebase) String() string {
	if !tb.Valid() {
		return fmt.Sprintf("Timebase(%d)", int(tb))
	}
	return timebaseNames[tb]
}

func ParseTimebase(s string) (Timebase, error) {
	for i, name := range timebaseNames {
		if strings.EqualFold(s, name) {
			return Timebase(i), nil
		}
	}
	return 0, errors.Errorf("unknown timebase %q (want raw, audio, player or video)", s)
}

func mustValid(tb Timebase) {
	if !tb.Valid() {
		panic(fmt.Sprintf("clock: invalid timebase %d", int(tb)))
	}
}

// SongPos is a fully resolved musical position.
type SongPos struct {
	Seconds        float64               `json:"seconds"`
	Tick           float64               `json:"tick"`
	LocalTick      float64               `json:"localTick"`
	Bar            int                   `json:"bar"`
	Beat           float64               `json:"beat"`
	FractionalBar  float64               `json:"fractionalBar"`
	FractionalBeat float64               `json:"fractionalBeat"`
	TempoBPM       float64               `json:"tempoBpm"`
	TimeSignature  songmap.TimeSignature `json:"timeSignature"`
	BeatType       songmap.BeatType      `json:"beatType"`
	Section        string                `json:"section,omitempty"`
	SectionIndex   int                   `json:"sectionIndex"`
}

// WholeBeat is the zero-based beat index in the bar.
func (p SongPos) WholeBeat() int { return int(math.Floor(p.Beat)) - 1 }

func resolveSongPos(maps songmap.Evaluator, tempoMapTick, localTick, ms float64) SongPos {
	it := int(math.Floor(tempoMapTick))
	ts := maps.TickToMusicTimestamp(tempoMapTick)
	sig, ok := maps.TimeSignatureAtTick(it)
	if !ok {
		sig = songmap.DefaultTimeSignature
	}
	bpm, ok := maps.TempoAtTick(it)
	if !ok {
		bpm = songmap.DefaultTempoBPM
	}
	pos := SongPos{
		Seconds:        ms / 1000,
		Tick:           tempoMapTick,
		LocalTick:      localTick,
		Bar:            ts.Bar,
		Beat:           ts.Beat,
		FractionalBar:  maps.TickToFractionalBar(tempoMapTick),
		FractionalBeat: maps.TickToFractionalBeat(tempoMapTick),
		TempoBPM:       bpm,
		TimeSignature:  sig,
		BeatType:       maps.BeatTypeAtTick(it),
		SectionIndex:   -1,
	}
	if sec, idx, ok := maps.SectionAtTick(it); ok {
		pos.Section = sec.Name
		pos.SectionIndex = idx
	}
	return pos
}

// TimebaseState is the per-timebase clock state: the raw tick/ms position,
// the resolved position this frame and last frame, and discontinuity flags.
type TimebaseState struct {
	TempoMapMs   float64
	TempoMapTick float64
	LocalTick    float64

	Current  SongPos
	Previous SongPos
	Seeked   bool
	Looped   bool

	valid bool
}

func (s *TimebaseState) Valid() bool { return s.valid }
