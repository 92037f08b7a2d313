package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/sampler"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

const (
	rigRate        = 48000
	rigBlockFrames = 480 // 10 ms
	rigTicks       = 20  // 125 bpm at 960 ticks per quarter is 2000 ticks per second
)

// rig drives a sampler by hand, one 10 ms block per 10 ms game frame.
type rig struct {
	t       *testing.T
	time    *ManualTime
	maps    *songmap.SongMaps
	hist    *history.SongPositionHistory
	smp     *sampler.Sampler
	drv     *AudioRenderDriver
	tick    int32
	loopLen int32
	// mapOffset separates the tempo map tick from the local tick.
	mapOffset int32
	started   bool
}

func newRig(t *testing.T, settings Settings) *rig {
	t.Helper()
	maps := songmap.NewSongMaps(960)
	require.NoError(t, maps.AddTempoChangeBPM(0, 125))
	maps.Finalize()
	hist := history.NewSongPositionHistory(rigRate, history.DefaultCapacity, maps)
	r := &rig{t: t, time: &ManualTime{}, maps: maps, hist: hist, smp: sampler.New(hist, nil)}
	r.drv = NewAudioRenderDriver(hist, r.time.Source(), settings, nil)
	r.drv.Start()
	return r
}

func (r *rig) render(extra ...sampler.ClockEvent) {
	var events []sampler.ClockEvent
	if !r.started {
		events = append(events, sampler.TransportChange(0, history.TransportPlaying))
		r.started = true
	}
	events = append(events, extra...)
	if r.loopLen > 0 && r.tick >= r.loopLen {
		r.tick = 0
		events = append(events, sampler.Loop(0, 0, 0))
	}
	events = append(events, sampler.Advance(0, r.tick, rigTicks, r.tick+r.mapOffset))
	r.smp.ProcessBlock(events, rigBlockFrames)
	r.tick += rigTicks
}

func (r *rig) step() bool {
	r.time.Advance(10 * time.Millisecond)
	r.render()
	return r.drv.RefreshCurrentSongPos()
}

func (r *rig) run(n int) {
	for i := 0; i < n; i++ {
		r.step()
	}
}

func TestAudioRenderDriverDefersUntilHistoryBrackets(t *testing.T) {
	r := newRig(t, DefaultSettings())
	assert.False(t, r.step())
	assert.False(t, r.step())
	assert.True(t, r.step())
	assert.Equal(t, 2, r.drv.DeferredFrames())
	assert.False(t, r.drv.State(TimebaseAudioRender).Seeked)
}

func TestAudioRenderDriverTracksRenderPosition(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(50)

	// The smoothed position trails the newest record by the 20 ms lag.
	audio := r.drv.State(TimebaseAudioRender)
	assert.InDelta(t, float64(rigTicks*47), audio.TempoMapTick, 1e-6)
	assert.InDelta(t, audio.TempoMapTick, audio.LocalTick, 1e-9)
	assert.InDelta(t, 1.0, r.drv.SyncSpeed(), 1e-12)
	assert.InDelta(t, 0, r.drv.LastError(), 1e-9)
	assert.Equal(t, 0.020, r.drv.LagSeconds())

	raw := r.drv.State(TimebaseRawAudioRender)
	assert.InDelta(t, float64(rigTicks*49), raw.TempoMapTick, 1e-9)

	// 40 ms behind at 2000 ticks per second.
	player := r.drv.State(TimebasePlayerExperience)
	assert.InDelta(t, audio.TempoMapTick-80, player.TempoMapTick, 1e-6)
	assert.InDelta(t, audio.TempoMapMs-40, player.TempoMapMs, 1e-6)
	video := r.drv.State(TimebaseVideoRender)
	assert.InDelta(t, audio.TempoMapTick-40, video.TempoMapTick, 1e-6)

	assert.Equal(t, 125.0, audio.Current.TempoBPM)
	assert.Equal(t, 1, audio.Current.Bar)
	assert.Greater(t, audio.Current.Tick, audio.Previous.Tick)
	for tb := Timebase(0); tb < NumTimebases; tb++ {
		st := r.drv.State(tb)
		assert.False(t, st.Seeked, tb.String())
		assert.False(t, st.Looped, tb.String())
	}
}

func TestAudioRenderDriverOffsetClockShiftsBothTicks(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.mapOffset = 3840
	r.run(50)

	audio := r.drv.State(TimebaseAudioRender)
	assert.InDelta(t, float64(rigTicks*47), audio.LocalTick, 1e-6)
	assert.InDelta(t, audio.LocalTick+3840, audio.TempoMapTick, 1e-6)
	for _, tb := range []Timebase{TimebasePlayerExperience, TimebaseVideoRender} {
		st := r.drv.State(tb)
		assert.InDelta(t, 3840, st.TempoMapTick-st.LocalTick, 1e-6, tb.String())
		assert.False(t, st.Seeked, tb.String())
	}
	assert.InDelta(t, audio.LocalTick-80, r.drv.State(TimebasePlayerExperience).LocalTick, 1e-6)
	assert.InDelta(t, audio.LocalTick-40, r.drv.State(TimebaseVideoRender).LocalTick, 1e-6)
}

func TestAudioRenderDriverHardSnap(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(30)
	require.Zero(t, r.drv.Snaps())

	// A 200 ms stall on the render side.
	r.smp.ProcessBlock(nil, rigRate/5)
	r.step()

	assert.Equal(t, 1, r.drv.Snaps())
	assert.Equal(t, 1.0, r.drv.SyncSpeed())
	assert.InDelta(t, 0.2, r.drv.LastError(), 1e-9)
	assert.Zero(t, r.drv.TrackedMinError())

	// No wall time has passed: the fresh epoch reports no error.
	r.drv.RefreshCurrentSongPos()
	assert.InDelta(t, 0, r.drv.LastError(), 1e-9)
	assert.Equal(t, 1, r.drv.Snaps())
}

func TestAudioRenderDriverStaysMonotonicAcrossStall(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(30)
	before := r.drv.State(TimebaseAudioRender).TempoMapTick

	// 80 ms of game frames with nothing rendered, then the render side
	// resumes at normal pace, still behind wall time.
	for i := 0; i < 8; i++ {
		r.time.Advance(10 * time.Millisecond)
		r.drv.RefreshCurrentSongPos()
	}
	prev := r.drv.State(TimebaseAudioRender).TempoMapTick
	for i := 0; i < 60; i++ {
		r.step()
		audio := r.drv.State(TimebaseAudioRender)
		if audio.TempoMapTick < prev {
			t.Fatalf("step %d: smoothed tick ran backward %.2f -> %.2f (snaps=%d lag=%.4f)",
				i, prev, audio.TempoMapTick, r.drv.Snaps(), r.drv.LagSeconds())
		}
		assert.False(t, audio.Seeked, "step %d", i)
		prev = audio.TempoMapTick
	}
	assert.GreaterOrEqual(t, r.drv.Snaps(), 1)
	assert.Greater(t, prev, before)
}

func TestAudioRenderDriverHoldsAtLowerRecordAfterResume(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(20)
	r.time.Advance(10 * time.Millisecond)
	r.smp.ProcessBlock([]sampler.ClockEvent{sampler.TransportChange(0, history.TransportPaused)}, rigBlockFrames)
	require.True(t, r.drv.RefreshCurrentSongPos())
	held := r.drv.State(TimebaseAudioRender).TempoMapTick

	// The epoch re-anchors on resume with the target a lag behind the held
	// record; the clock waits there instead of stepping back.
	r.time.Advance(10 * time.Millisecond)
	r.render(sampler.TransportChange(0, history.TransportPlaying))
	r.drv.RefreshCurrentSongPos()
	audio := r.drv.State(TimebaseAudioRender)
	assert.GreaterOrEqual(t, audio.TempoMapTick, held)
	assert.False(t, audio.Seeked)

	for i := 0; i < 10; i++ {
		r.step()
	}
	assert.Greater(t, r.drv.State(TimebaseAudioRender).TempoMapTick, held)
}

func TestAudioRenderDriverCorrectsPersistentBias(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(5)
	// Render runs 1% fast: one extra 5 ms every half second is within the
	// jump threshold, so the corrector speeds up instead of snapping.
	for i := 0; i < 100; i++ {
		if i%50 == 0 {
			r.smp.ProcessBlock(nil, rigRate/200)
		}
		r.step()
		assert.GreaterOrEqual(t, r.drv.SyncSpeed(), 0.98)
		assert.LessOrEqual(t, r.drv.SyncSpeed(), 1.02)
	}
	assert.Zero(t, r.drv.Snaps())
	assert.Greater(t, r.drv.SyncSpeed(), 1.0)
}

func TestAudioRenderDriverGrowsLagWhenHistoryRunsOut(t *testing.T) {
	r := newRig(t, DefaultSettings())
	for i := 0; i < 40; i++ {
		r.time.Advance(10 * time.Millisecond)
		if i%4 == 0 {
			events := []sampler.ClockEvent{sampler.Advance(0, r.tick, rigTicks*4, r.tick)}
			if !r.started {
				events = append([]sampler.ClockEvent{sampler.TransportChange(0, history.TransportPlaying)}, events...)
				r.started = true
			}
			r.smp.ProcessBlock(events, rigBlockFrames*4)
			r.tick += rigTicks * 4
		}
		r.drv.RefreshCurrentSongPos()
	}
	assert.Greater(t, r.drv.LagSeconds(), 0.020)
	assert.LessOrEqual(t, r.drv.LagSeconds(), DefaultSettings().MaxRenderSmoothingLagSeconds)
}

func TestAudioRenderDriverDetectsSeek(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(20)

	r.time.Advance(10 * time.Millisecond)
	target := r.tick + 5000
	r.tick = target
	r.render(sampler.Seek(0, target, target))
	r.drv.RefreshCurrentSongPos()

	seeks := map[Timebase]int{}
	for i := 0; i < 20; i++ {
		if i > 0 {
			r.step()
		}
		for tb := Timebase(0); tb < NumTimebases; tb++ {
			st := r.drv.State(tb)
			if st.Seeked {
				seeks[tb]++
			}
			assert.False(t, st.Looped)
		}
	}
	for tb := Timebase(0); tb < NumTimebases; tb++ {
		assert.Equal(t, 1, seeks[tb], tb.String())
	}
	assert.Greater(t, r.drv.State(TimebaseAudioRender).TempoMapTick, 5000.0)
}

func TestAudioRenderDriverDetectsLoop(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.loopLen = 1920
	r.smp.SetSongMaps(r.maps, 0, 1920)

	loops := map[Timebase]int{}
	for i := 0; i < 150; i++ {
		r.step()
		for tb := Timebase(0); tb < NumTimebases; tb++ {
			st := r.drv.State(tb)
			if st.Looped {
				loops[tb]++
			}
			assert.False(t, st.Seeked, "%s at step %d", tb, i)
			assert.Less(t, st.TempoMapTick, 1920.0)
		}
	}
	first, length := r.drv.LoopRegion()
	assert.Equal(t, 0, first)
	assert.Equal(t, 1920, length)
	// 1.5 s of render covers 3000 ticks: one pass through the loop.
	assert.Equal(t, 1, loops[TimebaseAudioRender])
	assert.Equal(t, 1, loops[TimebaseRawAudioRender])
	assert.Equal(t, 1, loops[TimebasePlayerExperience])
	assert.Equal(t, 1, loops[TimebaseVideoRender])
}

func TestAudioRenderDriverHoldsWhileTransportPaused(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(20)
	held := r.drv.State(TimebaseRawAudioRender).TempoMapTick

	r.time.Advance(10 * time.Millisecond)
	r.smp.ProcessBlock([]sampler.ClockEvent{sampler.TransportChange(0, history.TransportPaused)}, rigBlockFrames)
	require.True(t, r.drv.RefreshCurrentSongPos())
	assert.False(t, r.drv.Synced())
	for i := 0; i < 5; i++ {
		r.time.Advance(10 * time.Millisecond)
		r.smp.ProcessBlock(nil, rigBlockFrames)
		require.True(t, r.drv.RefreshCurrentSongPos())
	}
	audio := r.drv.State(TimebaseAudioRender)
	assert.Equal(t, float64(r.tick), audio.TempoMapTick)
	assert.Equal(t, audio.Current.Tick, audio.Previous.Tick)
	assert.False(t, audio.Seeked)
	assert.GreaterOrEqual(t, audio.TempoMapTick, held)
}

func TestAudioRenderDriverStateMachine(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.run(10)
	r.drv.Pause()
	assert.False(t, r.step())
	r.drv.Continue()
	r.run(5)
	assert.True(t, r.drv.State(TimebaseAudioRender).Valid())

	r.drv.Stop()
	assert.False(t, r.drv.State(TimebaseAudioRender).Valid())
	assert.False(t, r.step())

	r.drv.SetHistory(nil)
	r.drv.Start()
	assert.False(t, r.drv.RefreshCurrentSongPos())
	assert.NotNil(t, r.drv.SongMapEvaluator())
	assert.Panics(t, func() { r.drv.State(NumTimebases) })
}
