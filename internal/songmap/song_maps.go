package songmap

import (
	"log/slog"

	"github.com/pkg/errors"
)

// Evaluator is the read-only view a clock needs of a piece of music.
type Evaluator interface {
	TicksPerQuarterNote() int
	LengthTicks() int

	TickToMs(tick float64) float64
	MsToTick(ms float64) float64

	TempoAtTick(tick int) (float64, bool)
	TicksPerSecondAtTick(tick int) float64
	TimeSignatureAtTick(tick int) (TimeSignature, bool)
	TickToBarBeatTick(tick int) BarBeatTick
	TickToMusicTimestamp(tick float64) MusicTimestamp
	TickToFractionalBar(tick float64) float64
	TickToFractionalBeat(tick float64) float64
	BeatTypeAtTick(tick int) BeatType

	SectionAtTick(tick int) (Marker, int, bool)
	ChordAtTick(tick int) (Marker, int, bool)
}

// SongMaps bundles the tempo, bar, beat, section and chord maps of one piece
// of music. All maps share one ticks-per-quarter-note resolution.
type SongMaps struct {
	ticksPerQuarterNote int

	tempo    *TempoMap
	bars     *BarMap
	beats    *BeatMap
	sections *MarkerMap
	chords   *MarkerMap

	lengthTicks int
	finalized   bool
	logger      *slog.Logger
}

var _ Evaluator = (*SongMaps)(nil)

type Option func(*SongMaps)

// WithLogger sets where degraded lookups and skipped SMF events are
// reported. The default is slog.Default at construction time.
func WithLogger(l *slog.Logger) Option {
	return func(m *SongMaps) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewSongMaps(ticksPerQuarterNote int, opts ...Option) *SongMaps {
	if ticksPerQuarterNote <= 0 {
		ticksPerQuarterNote = DefaultTicksPerQuarterNote
	}
	m := &SongMaps{
		ticksPerQuarterNote: ticksPerQuarterNote,
		tempo:               NewTempoMap(ticksPerQuarterNote),
		bars:                NewBarMap(ticksPerQuarterNote),
		beats:               NewBeatMap(),
		sections:            NewMarkerMap(),
		chords:              NewMarkerMap(),
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tempo.logger = m.logger
	m.bars.logger = m.logger
	return m
}

// NewDefaultSongMaps returns finalized 120 bpm 4/4 maps, the fallback used
// whenever a clock has no content.
func NewDefaultSongMaps(ticksPerQuarterNote int, opts ...Option) *SongMaps {
	m := NewSongMaps(ticksPerQuarterNote, opts...)
	m.Finalize()
	return m
}

func (m *SongMaps) TicksPerQuarterNote() int { return m.ticksPerQuarterNote }
func (m *SongMaps) Finalized() bool          { return m.finalized }

func (m *SongMaps) Tempo() *TempoMap     { return m.tempo }
func (m *SongMaps) Bars() *BarMap        { return m.bars }
func (m *SongMaps) Beats() *BeatMap      { return m.beats }
func (m *SongMaps) Sections() *MarkerMap { return m.sections }
func (m *SongMaps) Chords() *MarkerMap   { return m.chords }

func (m *SongMaps) checkMutable() error {
	if m.finalized {
		return ErrFinalized
	}
	return nil
}

func (m *SongMaps) AddTempoChange(tick int, usPerQuarterNote int) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	return m.tempo.AddTempoChange(tick, usPerQuarterNote)
}

func (m *SongMaps) AddTempoChangeBPM(tick int, bpm float64) error {
	if bpm <= 0 {
		return errors.Wrapf(ErrInvalidTempo, "tempo change at %d: %v bpm", tick, bpm)
	}
	return m.AddTempoChange(tick, int(60000000.0/bpm+0.5))
}

func (m *SongMaps) AddTimeSignatureAtBar(barIndex int, ts TimeSignature) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	return m.bars.AddTimeSignatureAtBar(barIndex, ts)
}

// SetStartBar sets the musical bar number of bar index 0. Use values below 1
// to label count-in bars.
func (m *SongMaps) SetStartBar(bar int) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.bars.startBar = bar
	return nil
}

func (m *SongMaps) AddBeat(startTick int, beatType BeatType) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	if startTick < 0 {
		return errors.Wrapf(ErrInvalidTick, "beat at %d", startTick)
	}
	m.beats.AddBeat(startTick, beatType)
	return nil
}

func (m *SongMaps) AddSection(name string, startTick int) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	if startTick < 0 {
		return errors.Wrapf(ErrInvalidTick, "section %q at %d", name, startTick)
	}
	m.sections.Add(name, startTick)
	return nil
}

func (m *SongMaps) AddChord(name string, startTick int) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	if startTick < 0 {
		return errors.Wrapf(ErrInvalidTick, "chord %q at %d", name, startTick)
	}
	m.chords.Add(name, startTick)
	return nil
}

func (m *SongMaps) SetLengthTicks(lengthTicks int) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	if lengthTicks < 0 {
		return errors.Wrapf(ErrInvalidTick, "length %d", lengthTicks)
	}
	m.lengthTicks = lengthTicks
	return nil
}

func (m *SongMaps) SetLengthTotalBars(bars int) error {
	return m.SetLengthTicks(m.bars.BarBeatTickToTick(bars, 0, 0))
}

// Finalize fills in defaults (tempo at tick 0, a 4/4 signature, a length of
// at least one bar past the last authored point) and freezes the maps.
// Calling it twice is harmless.
func (m *SongMaps) Finalize() {
	if m.finalized {
		return
	}
	m.tempo.ensureStartsAtZero()
	m.bars.ensureNotEmpty()
	if m.lengthTicks == 0 {
		m.lengthTicks = m.inferLengthTicks()
	}
	m.beats.finalize(m.lengthTicks)
	m.sections.finalize(m.lengthTicks)
	m.chords.finalize(m.lengthTicks)
	m.finalized = true
}

func (m *SongMaps) inferLengthTicks() int {
	last := 0
	for _, p := range m.tempo.points {
		last = max(last, p.Tick)
	}
	for _, p := range m.bars.points {
		last = max(last, p.StartTick)
	}
	for _, p := range m.beats.points {
		last = max(last, p.StartTick)
	}
	for _, mk := range m.sections.markers {
		last = max(last, mk.StartTick)
	}
	for _, mk := range m.chords.markers {
		last = max(last, mk.StartTick)
	}
	bbt := m.bars.TickToBarBeatTick(last)
	return m.bars.BarBeatTickToTick(bbt.BarIndex+1, 0, 0)
}

func (m *SongMaps) LengthTicks() int { return m.lengthTicks }

func (m *SongMaps) LastTick() int {
	if m.lengthTicks == 0 {
		return 0
	}
	return m.lengthTicks - 1
}

func (m *SongMaps) LengthFractionalBars() float64 {
	return m.bars.TickToFractionalBar(float64(m.lengthTicks))
}

func (m *SongMaps) TickToMs(tick float64) float64 { return m.tempo.TickToMs(tick) }
func (m *SongMaps) MsToTick(ms float64) float64   { return m.tempo.MsToTick(ms) }

func (m *SongMaps) TempoAtTick(tick int) (float64, bool) { return m.tempo.TempoAtTick(tick) }

func (m *SongMaps) TicksPerSecondAtTick(tick int) float64 {
	return m.tempo.TicksPerSecondAtTick(tick)
}

func (m *SongMaps) TimeSignatureAtTick(tick int) (TimeSignature, bool) {
	return m.bars.TimeSignatureAtTick(tick)
}

func (m *SongMaps) TickToBarBeatTick(tick int) BarBeatTick { return m.bars.TickToBarBeatTick(tick) }

func (m *SongMaps) BarBeatTickToTick(barIndex, beatInBar, tickInBeat int) int {
	return m.bars.BarBeatTickToTick(barIndex, beatInBar, tickInBeat)
}

func (m *SongMaps) TickToMusicTimestamp(tick float64) MusicTimestamp {
	return m.bars.TickToMusicTimestamp(tick)
}

func (m *SongMaps) MusicTimestampToTick(ts MusicTimestamp) float64 {
	return m.bars.MusicTimestampToTick(ts)
}

func (m *SongMaps) TickToFractionalBar(tick float64) float64 { return m.bars.TickToFractionalBar(tick) }
func (m *SongMaps) FractionalBarToTick(bar float64) float64  { return m.bars.FractionalBarToTick(bar) }

// TickToFractionalBeat prefers authored beats and falls back to the time
// signature grid outside of them.
func (m *SongMaps) TickToFractionalBeat(tick float64) float64 {
	if b, ok := m.beats.FractionalBeatAtTick(tick); ok {
		return b
	}
	return m.bars.TickToFractionalBeat(tick)
}

func (m *SongMaps) BeatTypeAtTick(tick int) BeatType {
	if b, ok := m.beats.BeatAtTick(tick); ok {
		return b.Type
	}
	if m.bars.TickToBarBeatTick(tick).BeatInBar == 0 {
		return BeatDownbeat
	}
	return BeatNormal
}

func (m *SongMaps) SectionAtTick(tick int) (Marker, int, bool) { return m.sections.At(tick) }
func (m *SongMaps) ChordAtTick(tick int) (Marker, int, bool)   { return m.chords.At(tick) }
