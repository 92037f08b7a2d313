// Package render is the in-process audio render graph: a transport that
// walks the song maps sample by sample, reports its clock events to a
// sampler and renders a metronome click.
package render

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/sampler"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

// EventKind identifies transport lifecycle events.
type EventKind int

const (
	EventLoopCompleted EventKind = iota
	EventPlaybackEnded
)

type Options struct {
	// LoopStartTick and LoopLengthTicks define the loop region. A zero
	// length disables looping.
	LoopStartTick   int
	LoopLengthTicks int
	Metronome       bool
	ClickGain       float64
	// StopAtEnd stops the transport at the end of the song when not looping.
	StopAtEnd bool
	OnEvent   func(EventKind)
}

type loopRegion struct {
	start, length int
}

const noSeek = math.MinInt64

// Transport is driven by Process on the audio goroutine. Play, Pause, Stop,
// Seek, SetSpeed, SetLoop and SetSongMaps may be called from any goroutine;
// they take effect at the start of the next block.
type Transport struct {
	maps       *songmap.SongMaps
	sampler    *sampler.Sampler
	sampleRate int

	ticksPerSamp float64
	pos          float64
	tick         int32
	speed        float64
	state        history.TransportState
	loop         loopRegion
	stopAtEnd    bool
	onEvent      func(EventKind)

	segFrame int
	segTick  int32
	events   []sampler.ClockEvent

	reqState atomic.Int32
	reqSeek  atomic.Int64
	reqSpeed atomic.Uint64
	reqLoop  atomic.Pointer[loopRegion]
	reqMaps  atomic.Pointer[songmap.SongMaps]

	curTick  atomic.Int64
	curState atomic.Int32

	click *click
}

func New(maps *songmap.SongMaps, s *sampler.Sampler, sampleRate int) *Transport {
	return NewWithOptions(maps, s, sampleRate, Options{})
}

func NewWithOptions(maps *songmap.SongMaps, s *sampler.Sampler, sampleRate int, opts Options) *Transport {
	if maps == nil {
		maps = songmap.NewDefaultSongMaps(songmap.DefaultTicksPerQuarterNote)
	}
	t := &Transport{
		maps:       maps,
		sampler:    s,
		sampleRate: sampleRate,
		speed:      1,
		loop:       loopRegion{start: opts.LoopStartTick, length: max(opts.LoopLengthTicks, 0)},
		stopAtEnd:  opts.StopAtEnd,
		onEvent:    opts.OnEvent,
		events:     make([]sampler.ClockEvent, 0, 16),
		click:      newClick(sampleRate, opts.Metronome, opts.ClickGain),
	}
	t.reqState.Store(-1)
	t.reqSeek.Store(noSeek)
	t.updateTempo()
	s.SetSongMaps(maps, t.loop.start, t.loop.length)
	return t
}

func (t *Transport) SampleRate() int           { return t.sampleRate }
func (t *Transport) Sampler() *sampler.Sampler { return t.sampler }

func (t *Transport) Play()  { t.reqState.Store(int32(history.TransportPlaying)) }
func (t *Transport) Pause() { t.reqState.Store(int32(history.TransportPaused)) }

// Stop halts playback and rewinds to the loop start (or tick 0).
func (t *Transport) Stop() {
	t.reqState.Store(int32(history.TransportStopped))
}

func (t *Transport) Seek(tick int) { t.reqSeek.Store(int64(tick)) }

func (t *Transport) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	t.reqSpeed.Store(math.Float64bits(speed))
}

func (t *Transport) SetLoop(startTick, lengthTicks int) {
	t.reqLoop.Store(&loopRegion{start: startTick, length: max(lengthTicks, 0)})
}

func (t *Transport) SetSongMaps(maps *songmap.SongMaps) {
	if maps != nil {
		t.reqMaps.Store(maps)
	}
}

func (t *Transport) SetMetronome(on bool) { t.click.enabled.Store(on) }

// CurrentTick is the integer tick reached at the end of the last block.
func (t *Transport) CurrentTick() int { return int(t.curTick.Load()) }

func (t *Transport) State() history.TransportState {
	return history.TransportState(t.curState.Load())
}

func (t *Transport) updateTempo() {
	t.ticksPerSamp = t.maps.TicksPerSecondAtTick(int(t.tick)) / float64(t.sampleRate)
}

func (t *Transport) emit(e sampler.ClockEvent) {
	t.events = append(t.events, e)
}

func (t *Transport) fire(kind EventKind) {
	if t.onEvent != nil {
		t.onEvent(kind)
	}
}

func (t *Transport) applyRequests() {
	if maps := t.reqMaps.Swap(nil); maps != nil {
		t.maps = maps
		t.sampler.SetSongMaps(maps, t.loop.start, t.loop.length)
		t.updateTempo()
	}
	if lr := t.reqLoop.Swap(nil); lr != nil {
		t.loop = *lr
		t.sampler.SetSongMaps(t.maps, t.loop.start, t.loop.length)
	}
	if bits := t.reqSpeed.Swap(0); bits != 0 {
		t.speed = math.Float64frombits(bits)
		t.emit(sampler.SpeedChange(0, float32(t.speed)))
	}
	if st := t.reqState.Swap(-1); st >= 0 {
		next := history.TransportState(st)
		if next == history.TransportStopped && t.state != history.TransportStopped {
			t.jump(0, t.loop.start, sampler.EventSeek)
		}
		if next != t.state {
			t.state = next
			t.emit(sampler.TransportChange(0, next))
			if next == history.TransportPlaying {
				t.beatClick(int(t.tick))
			}
		}
	}
	if tick := t.reqSeek.Swap(noSeek); tick != noSeek {
		t.jump(0, int(tick), sampler.EventSeek)
	}
}

func (t *Transport) jump(frame int, tick int, kind sampler.EventKind) {
	t.closeSegment(frame)
	t.pos = float64(tick)
	t.tick = int32(tick)
	t.segFrame, t.segTick = frame, t.tick
	t.updateTempo()
	if kind == sampler.EventLoop {
		t.emit(sampler.Loop(frame, t.tick, t.tick))
	} else {
		t.emit(sampler.Seek(frame, t.tick, t.tick))
	}
}

func (t *Transport) closeSegment(frame int) {
	if t.state != history.TransportPlaying {
		return
	}
	if frame == t.segFrame && t.tick == t.segTick {
		return
	}
	t.emit(sampler.Advance(t.segFrame, t.segTick, t.tick-t.segTick, t.segTick))
	t.segFrame, t.segTick = frame, t.tick
}

// Process renders interleaved stereo frames into dst and hands the block's
// clock events to the sampler.
func (t *Transport) Process(dst []float32) {
	frames := len(dst) / 2
	t.events = t.events[:0]
	t.segFrame, t.segTick = 0, t.tick
	t.applyRequests()
	for f := 0; f < frames; f++ {
		if t.state == history.TransportPlaying {
			t.pos += t.ticksPerSamp * t.speed
			for t.state == history.TransportPlaying && int32(math.Floor(t.pos)) > t.tick {
				t.tick++
				t.onTick(f)
			}
		}
		v := t.click.next()
		dst[f*2] = v
		dst[f*2+1] = v
	}
	t.closeSegment(frames)
	t.sampler.ProcessBlock(t.events, frames)
	t.curTick.Store(int64(t.tick))
	t.curState.Store(int32(t.state))
}

func (t *Transport) onTick(frame int) {
	tick := int(t.tick)
	if t.loop.length > 0 && tick >= t.loop.start+t.loop.length {
		frac := t.pos - math.Floor(t.pos)
		t.jump(frame, t.loop.start, sampler.EventLoop)
		t.pos += frac
		t.fire(EventLoopCompleted)
		t.tickEffects(frame, t.loop.start)
		return
	}
	if t.loop.length == 0 && t.stopAtEnd && t.maps.LengthTicks() > 0 && tick >= t.maps.LengthTicks() {
		t.closeSegment(frame)
		t.state = history.TransportStopped
		t.emit(sampler.TransportChange(frame, history.TransportStopped))
		t.fire(EventPlaybackEnded)
		return
	}
	t.tickEffects(frame, tick)
}

func (t *Transport) tickEffects(frame int, tick int) {
	if tp, ok := t.maps.Tempo().TempoPointAtTick(tick); ok && tp.Tick == tick && tick != 0 {
		t.closeSegment(frame)
		t.updateTempo()
		t.emit(sampler.TempoChange(frame, t.tick, tp.BPM(), t.tick))
	}
	if sp, ok := t.maps.Bars().TimeSignaturePointAtTick(tick); ok && sp.StartTick == tick && tick != 0 {
		t.closeSegment(frame)
		t.emit(sampler.TimeSignatureChange(frame, t.tick, sp.TimeSignature, t.tick))
	}
	t.beatClick(tick)
}

func (t *Transport) beatClick(tick int) {
	if bbt := t.maps.TickToBarBeatTick(tick); bbt.TickInBeat == 0 {
		t.click.trigger(bbt.BeatInBar == 0)
	}
}
