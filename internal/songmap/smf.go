package songmap

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2/smf"
)

type absEvent struct {
	tick int
	msg  smf.Message
}

// LoadSMFFile reads a standard MIDI file and converts its conductor data.
func LoadSMFFile(path string, opts ...Option) (*SongMaps, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading midi file %s", path)
	}
	maps, err := FromSMF(s, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "converting midi file %s", path)
	}
	return maps, nil
}

// FromSMF builds finalized SongMaps from the tempo, meter, marker and cue
// point events of an already parsed file. Markers become sections and cue
// points become chords. Note data is ignored.
func FromSMF(s *smf.SMF, opts ...Option) (*SongMaps, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, errors.New("only metric (ticks per quarter note) time formats are supported")
	}
	maps := NewSongMaps(int(mt.Resolution()), opts...)

	var events []absEvent
	lastTick := 0
	for _, tr := range s.Tracks {
		abs := 0
		for _, ev := range tr {
			abs += int(ev.Delta)
			events = append(events, absEvent{tick: abs, msg: ev.Message})
		}
		lastTick = max(lastTick, abs)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

	var (
		bpm        float64
		num, denom uint8
		text       string
	)
	for _, ev := range events {
		switch {
		case ev.msg.GetMetaTempo(&bpm):
			if bpm <= 0 {
				continue
			}
			us := int(math.Round(60000000.0 / bpm))
			if err := maps.AddTempoChange(ev.tick, us); err != nil {
				return nil, err
			}
		case ev.msg.GetMetaMeter(&num, &denom):
			bar := maps.barIndexAtOrAfter(ev.tick)
			ts := TimeSignature{Numerator: int16(num), Denominator: int16(denom)}
			if err := maps.AddTimeSignatureAtBar(bar, ts); err != nil {
				maps.logger.Warn("skipping time signature", "tick", ev.tick, "err", err)
			}
		case ev.msg.GetMetaMarker(&text):
			if err := maps.AddSection(text, ev.tick); err != nil {
				return nil, err
			}
		case ev.msg.GetMetaCuepoint(&text):
			if err := maps.AddChord(text, ev.tick); err != nil {
				return nil, err
			}
		}
	}
	if lastTick > 0 {
		if err := maps.SetLengthTicks(lastTick); err != nil {
			return nil, err
		}
	}
	maps.Finalize()
	return maps, nil
}

// barIndexAtOrAfter places a meter event that falls mid-bar on the next bar line.
func (m *SongMaps) barIndexAtOrAfter(tick int) int {
	if m.bars.Len() == 0 {
		tpBar := DefaultTimeSignature.TicksPerBar(m.ticksPerQuarterNote)
		return (tick + tpBar - 1) / tpBar
	}
	bbt := m.bars.TickToBarBeatTick(tick)
	if bbt.TickInBar != 0 {
		return bbt.BarIndex + 1
	}
	return bbt.BarIndex
}
