package musicclock

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/musicclock-go/internal/songmap"
)

func TestSimulateSteadyPlayback(t *testing.T) {
	res, err := Simulate(SimulationOptions{Config: DefaultConfig(), Duration: 4 * time.Second})
	require.NoError(t, err)
	require.NotEmpty(t, res.Frames)

	prev := math.Inf(-1)
	updated := 0
	for _, f := range res.Frames {
		if !f.Updated {
			continue
		}
		updated++
		assert.GreaterOrEqual(t, f.Audio.Tick, prev, "at %v", f.Time)
		assert.False(t, f.Seeked, "at %v", f.Time)
		assert.False(t, f.Looped, "at %v", f.Time)
		assert.GreaterOrEqual(t, f.SyncSpeed, 0.98)
		assert.LessOrEqual(t, f.SyncSpeed, 1.02)
		prev = f.Audio.Tick
	}
	assert.Greater(t, updated, len(res.Frames)*9/10)

	// 120 bpm at 960 ticks per quarter is 1920 ticks a second; the smoothed
	// position trails wall time by about the look-behind.
	last := res.Frames[len(res.Frames)-1]
	assert.InDelta(t, 4*1920, last.Audio.Tick, 100)
	assert.Less(t, last.Player.Tick, last.Audio.Tick)
	assert.Zero(t, res.Diagnostics.Snaps)
	assert.Positive(t, res.RecordsWritten)

	var bars []int
	for _, ev := range res.Events {
		if ev.Kind == EventBar {
			bars = append(bars, ev.Pos.Bar)
		}
	}
	assert.Contains(t, bars, 2)
}

func TestSimulateStallSnaps(t *testing.T) {
	res, err := Simulate(SimulationOptions{
		Config:   DefaultConfig(),
		Duration: 2 * time.Second,
		StallAt:  time.Second,
		StallFor: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Positive(t, res.Diagnostics.Snaps)
}

func TestSimulateSeek(t *testing.T) {
	res, err := Simulate(SimulationOptions{
		Config:   DefaultConfig(),
		Duration: 2 * time.Second,
		SeekAt:   time.Second,
		SeekTick: 19200,
	})
	require.NoError(t, err)
	seeks := 0
	for _, f := range res.Frames {
		if f.Seeked {
			seeks++
		}
	}
	assert.Equal(t, 1, seeks)
	assert.Greater(t, res.Frames[len(res.Frames)-1].Audio.Tick, 19200.0)
}

func TestSimulateLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoopLengthTicks = 3840
	res, err := Simulate(SimulationOptions{Config: cfg, Duration: 5 * time.Second})
	require.NoError(t, err)
	loops := 0
	for _, f := range res.Frames {
		if f.Looped {
			loops++
		}
		assert.False(t, f.Seeked, "at %v", f.Time)
		assert.Less(t, f.Audio.Tick, 3840.0)
	}
	assert.Equal(t, 2, loops)
}

func TestSimulateIsDeterministic(t *testing.T) {
	opts := SimulationOptions{Config: DefaultConfig(), Duration: time.Second, StallAt: 300 * time.Millisecond, StallFor: 100 * time.Millisecond}
	a, err := Simulate(opts)
	require.NoError(t, err)
	b, err := Simulate(opts)
	require.NoError(t, err)
	assert.Equal(t, a.Frames, b.Frames)
}

func TestSimulateRejectsBadOptions(t *testing.T) {
	_, err := Simulate(SimulationOptions{Config: DefaultConfig()})
	assert.Error(t, err)
	cfg := DefaultConfig()
	cfg.BlockFrames = 0
	_, err = Simulate(SimulationOptions{Config: cfg, Duration: time.Second})
	assert.Error(t, err)
}

func TestRenderClickWAV(t *testing.T) {
	samples := RenderClick(songmap.NewDefaultSongMaps(960), 48000, 1.0)
	require.Len(t, samples, 48000*2)

	// Beats at 120 bpm fall every 24000 frames.
	energy := func(from, to int) float64 {
		var e float64
		for i := from * 2; i < to*2; i++ {
			e += float64(samples[i]) * float64(samples[i])
		}
		return e
	}
	assert.Greater(t, energy(0, 1000), 0.0)
	assert.Greater(t, energy(24000, 25000), 0.0)
	assert.Zero(t, energy(12000, 23000))

	var buf bytes.Buffer
	require.NoError(t, WriteClickWAV(&buf, samples, 48000))
	wav := buf.Bytes()
	assert.Len(t, wav, 44+len(samples)*4)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(wav[20:]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[22:]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[24:]))
	assert.Equal(t, uint32(len(samples)*4), binary.LittleEndian.Uint32(wav[40:]))
	assert.Equal(t, math.Float32bits(samples[1]), binary.LittleEndian.Uint32(wav[48:]))

	assert.Error(t, WriteClickWAV(&bytes.Buffer{}, samples[:3], 48000))
	assert.Error(t, WriteClickWAV(&bytes.Buffer{}, samples, 0))
}
