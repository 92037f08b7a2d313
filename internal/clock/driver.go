// Package clock turns a song position history into smoothed musical
// positions, once per game frame, for every timebase.
package clock

import (
	"fmt"
	"math"
	"time"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/numeric"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

type DriveMethod int

const (
	DriveAudioRender DriveMethod = iota
	DriveWallClock
)

func (m DriveMethod) String() string {
	switch m {
	case DriveAudioRender:
		return "audio-render"
	case DriveWallClock:
		return "wall-clock"
	}
	return fmt.Sprintf("DriveMethod(%d)", int(m))
}

// Driver is the capability every clock driver offers the facade.
type Driver interface {
	Method() DriveMethod
	Start()
	Pause()
	Continue()
	Stop()
	// RefreshCurrentSongPos updates every timebase. It returns false when
	// the frame was deferred and the previous positions still stand.
	RefreshCurrentSongPos() bool
	SongMapEvaluator() songmap.Evaluator
	// State panics on an invalid timebase.
	State(tb Timebase) *TimebaseState
}

type runState int

const (
	runStopped runState = iota
	runRunning
	runPaused
)

type clockPoint struct {
	tempoMapTick float64
	localTick    float64
}

// timebases holds the four timebase states and the shared logic that
// derives, resolves and checks them.
type timebases struct {
	settings    Settings
	states      [NumTimebases]TimebaseState
	lastRefresh time.Duration
	refreshed   bool
}

func (t *timebases) state(tb Timebase) *TimebaseState {
	mustValid(tb)
	return &t.states[tb]
}

func (t *timebases) reset() {
	for i := range t.states {
		t.states[i] = TimebaseState{}
	}
	t.refreshed = false
}

// update publishes raw and smoothed positions, derives the offset timebases
// from the smoothed one and flags seeks and loops.
func (t *timebases) update(node *history.SongMapChainNode, raw, audio clockPoint, speed float64, playing bool, now time.Duration) {
	maps := node.Maps
	dt := 0.0
	if t.refreshed {
		dt = (now - t.lastRefresh).Seconds()
	}
	t.lastRefresh = now
	t.refreshed = true

	audioMs := maps.TickToMs(audio.tempoMapTick)
	t.set(TimebaseRawAudioRender, node, raw, maps.TickToMs(raw.tempoMapTick), dt, speed, playing)
	t.set(TimebaseAudioRender, node, audio, audioMs, dt, speed, playing)
	p, ms := t.derive(TimebasePlayerExperience, node, audio, audioMs, t.settings.PlayerExperienceOffsetMs*speed)
	t.set(TimebasePlayerExperience, node, p, ms, dt, speed, playing)
	p, ms = t.derive(TimebaseVideoRender, node, audio, audioMs, t.settings.VideoRenderOffsetMs*speed)
	t.set(TimebaseVideoRender, node, p, ms, dt, speed, playing)
}

// derive offsets a timebase from the smoothed audio position. An offset
// clock (tempo map tick differs from local tick) shifts both ticks by the
// same amount. A looping or monotonic clock wraps back to the loop end when
// the offset lands before a loop it was already inside.
func (t *timebases) derive(tb Timebase, node *history.SongMapChainNode, audio clockPoint, audioMs, offsetMs float64) (clockPoint, float64) {
	if offsetMs == 0 {
		return audio, audioMs
	}
	maps := node.Maps
	ms := audioMs + offsetMs
	tick := maps.MsToTick(ms)
	if audio.localTick != audio.tempoMapTick {
		return clockPoint{tempoMapTick: tick, localTick: audio.localTick + (tick - audio.tempoMapTick)}, ms
	}
	if node.Looping() {
		start := float64(node.FirstTickInLoop)
		length := float64(node.LoopLengthTicks)
		prev := &t.states[tb]
		switch {
		case tick < start && audio.tempoMapTick >= start && prev.valid && prev.TempoMapTick >= start:
			tick += length
			ms = maps.TickToMs(tick)
		case tick >= start+length:
			tick -= length
			ms = maps.TickToMs(tick)
		}
	}
	return clockPoint{tempoMapTick: tick, localTick: tick}, ms
}

func (t *timebases) set(tb Timebase, node *history.SongMapChainNode, p clockPoint, ms, dt, speed float64, playing bool) {
	st := &t.states[tb]
	hadPrev := st.valid
	prevTick := st.TempoMapTick
	prev := st.Current

	st.TempoMapTick = p.tempoMapTick
	st.LocalTick = p.localTick
	st.TempoMapMs = ms
	st.Current = resolveSongPos(node.Maps, p.tempoMapTick, p.localTick, ms)
	st.Seeked, st.Looped = false, false
	if hadPrev {
		st.Previous = prev
		st.Seeked, st.Looped = t.detect(node, prevTick, p.tempoMapTick, dt, speed, playing)
	} else {
		st.Previous = st.Current
	}
	st.valid = true
}

// detect compares the new tick with where a naive advance at the current
// tempo would have put it. A deviation beyond SeekDeltaMultiple expected
// deltas is a seek; one that a loop wrap explains is a loop. Small seeks go
// unnoticed.
func (t *timebases) detect(node *history.SongMapChainNode, prevTick, newTick, dt, speed float64, playing bool) (seeked, looped bool) {
	maps := node.Maps
	expectedDelta := 0.0
	if playing {
		expectedDelta = maps.TicksPerSecondAtTick(int(math.Floor(prevTick))) * dt * speed
	}
	threshold := max(t.settings.SeekDeltaMultiple*numeric.Abs(expectedDelta), minSeekTicks(maps))
	deviation := newTick - (prevTick + expectedDelta)
	if node.Looping() && deviation < 0 {
		if numeric.Abs(deviation+float64(node.LoopLengthTicks)) <= threshold {
			return false, true
		}
	}
	return numeric.Abs(deviation) > threshold, false
}

// minSeekTicks keeps a paused or barely moving clock from reading jitter as
// a seek: a 64th note.
func minSeekTicks(maps songmap.Evaluator) float64 {
	return float64(maps.TicksPerQuarterNote()) / 16
}
