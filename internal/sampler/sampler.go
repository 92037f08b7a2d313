// Package sampler turns the clock events of rendered audio blocks into
// position records on a song position history.
package sampler

import (
	"log/slog"
	"math"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

// noTick marks "no position yet". Negative ticks are valid (count-in), so
// the sentinel sits far outside any real song.
const noTick int32 = math.MinInt32

// Sampler is the producer side of a SongPositionHistory. It must be driven
// from a single goroutine, normally the audio render callback.
type Sampler struct {
	history *history.SongPositionHistory
	logger  *slog.Logger

	sampleCount int64

	lastTickProcessed           int32
	lastTempoMapTickProcessed   int32
	lastAdvanceUpToTick         int32
	lastAdvanceUpToTempoMapTick int32

	speed      float32
	transport  history.TransportState
	tempoBPM   float64
	timeSig    songmap.TimeSignature
	nextMarker history.Marker

	pending    history.PositionRecord
	hasPending bool

	written int64
	loops   int64
	seeks   int64
}

func New(h *history.SongPositionHistory, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{history: h, logger: logger}
	s.Reset()
	return s
}

// Reset forgets the last position. The absolute sample count keeps running
// so records stay non-decreasing for existing readers.
func (s *Sampler) Reset() {
	s.lastTickProcessed = noTick
	s.lastTempoMapTickProcessed = noTick
	s.lastAdvanceUpToTick = noTick
	s.lastAdvanceUpToTempoMapTick = noTick
	s.speed = 1
	s.transport = history.TransportStopped
	s.tempoBPM = songmap.DefaultTempoBPM
	s.timeSig = songmap.DefaultTimeSignature
	s.nextMarker = history.MarkerNone
	s.hasPending = false
}

func (s *Sampler) History() *history.SongPositionHistory { return s.history }

// SampleCount is the absolute output frame at the start of the next block.
func (s *Sampler) SampleCount() int64 { return s.sampleCount }

func (s *Sampler) Speed() float32                    { return s.speed }
func (s *Sampler) Transport() history.TransportState { return s.transport }
func (s *Sampler) TempoBPM() float64                 { return s.tempoBPM }
func (s *Sampler) TimeSignature() songmap.TimeSignature {
	return s.timeSig
}

// RecordsWritten, Loops and Seeks are running totals.
func (s *Sampler) RecordsWritten() int64 { return s.written }
func (s *Sampler) Loops() int64          { return s.loops }
func (s *Sampler) Seeks() int64          { return s.seeks }

// SetSongMaps publishes new maps and loop region to every reader of the
// history. Call it from the same goroutine as ProcessBlock.
func (s *Sampler) SetSongMaps(maps songmap.Evaluator, firstTickInLoop, loopLengthTicks int) {
	s.history.Maps().Publish(maps, firstTickInLoop, loopLengthTicks)
}

// ProcessBlock consumes the ordered clock events of one block of numFrames
// output frames and writes the resulting records.
func (s *Sampler) ProcessBlock(events []ClockEvent, numFrames int) {
	for i := range events {
		e := &events[i]
		frame := s.sampleCount + int64(min(max(e.BlockFrameIndex, 0), numFrames))
		switch e.Kind {
		case EventAdvance:
			s.stamp(frame, e.FirstTick, e.TempoMapTick, false)
			s.lastAdvanceUpToTick = e.FirstTick + e.NumTicks
			s.lastAdvanceUpToTempoMapTick = e.TempoMapTick + e.NumTicks
		case EventTempoChange:
			s.tempoBPM = e.TempoBPM
			s.stamp(frame, e.FirstTick, e.TempoMapTick, false)
		case EventTimeSignatureChange:
			s.timeSig = e.TimeSignature
			s.stamp(frame, e.FirstTick, e.TempoMapTick, false)
		case EventSpeedChange:
			if e.Speed == s.speed {
				continue
			}
			s.speed = e.Speed
			s.stampStateChange(frame)
		case EventTransportChange:
			if e.Transport == s.transport {
				continue
			}
			s.transport = e.Transport
			s.stampStateChange(frame)
		case EventLoop:
			s.loops++
			s.discontinuity(frame, e)
		case EventSeek:
			s.seeks++
			s.discontinuity(frame, e)
		}
	}
	s.flush()
	s.sampleCount += int64(numFrames)
}

func (s *Sampler) currentTicks() (int32, int32) {
	if s.lastAdvanceUpToTick != noTick {
		return s.lastAdvanceUpToTick, s.lastAdvanceUpToTempoMapTick
	}
	return s.lastTickProcessed, s.lastTempoMapTickProcessed
}

// Speed and transport changes carry no tick of their own. They are stamped
// at the position the last advance reached, and only once one exists.
func (s *Sampler) stampStateChange(frame int64) {
	if s.lastTickProcessed == noTick {
		return
	}
	tick, tempoMapTick := s.currentTicks()
	s.stamp(frame, tick, tempoMapTick, true)
}

func (s *Sampler) stamp(frame int64, tick, tempoMapTick int32, stateChange bool) {
	if s.hasPending && s.pending.UpToTick == tick && s.pending.SampleCount == frame {
		s.pending.CurrentSpeed = s.speed
		s.pending.TransportState = s.transport
		return
	}
	if !stateChange && tick == s.lastTickProcessed {
		return
	}
	s.flush()
	s.pending = history.PositionRecord{
		SampleCount:    frame,
		UpToTick:       tick,
		TempoMapTick:   tempoMapTick,
		CurrentSpeed:   s.speed,
		TransportState: s.transport,
		Marker:         s.nextMarker,
	}
	s.hasPending = true
	s.nextMarker = history.MarkerNone
	s.lastTickProcessed = tick
	s.lastTempoMapTickProcessed = tempoMapTick
}

func (s *Sampler) discontinuity(frame int64, e *ClockEvent) {
	if s.lastTickProcessed != noTick {
		tick, tempoMapTick := s.currentTicks()
		s.flush()
		s.write(history.PositionRecord{
			SampleCount:    frame,
			UpToTick:       tick,
			TempoMapTick:   tempoMapTick,
			CurrentSpeed:   s.speed,
			TransportState: s.transport,
			Marker:         history.MarkerLastPositionBeforeSeekLoop,
		})
		s.logger.Debug("clock discontinuity", "kind", e.Kind, "fromTick", tick, "toTick", e.FirstTick, "frame", frame)
	}
	s.flush()
	s.nextMarker = history.MarkerFirstPositionAfterSeekLoop
	s.lastTickProcessed = noTick
	s.stamp(frame, e.FirstTick, e.TempoMapTick, false)
	s.lastAdvanceUpToTick = e.FirstTick
	s.lastAdvanceUpToTempoMapTick = e.TempoMapTick
}

func (s *Sampler) flush() {
	if !s.hasPending {
		return
	}
	s.write(s.pending)
	s.hasPending = false
}

func (s *Sampler) write(rec history.PositionRecord) {
	w := s.history.Queue().NextWriteSlot()
	*w.Value() = rec
	w.Release()
	s.written++
}
