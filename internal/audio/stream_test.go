package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rampSource struct {
	calls atomic.Int64
	done  bool
}

func (s *rampSource) Process(dst []float32) {
	s.calls.Add(1)
	for i := range dst {
		dst[i] = float32(i) / 8
	}
}

func (s *rampSource) Finished() bool { return s.done }

func TestStreamReaderEncodesFloat32LE(t *testing.T) {
	src := &rampSource{}
	r := NewStreamReader(src)
	p := make([]byte, 4*bytesPerFrame+3)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4*bytesPerFrame, n)
	for i := 0; i < 8; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		assert.Equal(t, float32(i)/8, got)
	}
	assert.Equal(t, int64(4), r.FramesRead())

	n, err = r.Read(p[:4])
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestStreamReaderEOFWhenFinished(t *testing.T) {
	src := &rampSource{done: true}
	r := NewStreamReader(src)
	_, err := r.Read(make([]byte, 64))
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReaderSilenceWithoutSource(t *testing.T) {
	r := NewStreamReader(nil)
	p := make([]byte, 64)
	for i := range p {
		p[i] = 0xff
	}
	_, err := r.Read(p)
	require.NoError(t, err)
	for _, b := range p {
		if b != 0 {
			t.Fatalf("expected silence, got %x", p)
		}
	}
}

func TestHeadlessPlayerPumpsInRealTime(t *testing.T) {
	src := &rampSource{}
	h := NewHeadlessPlayer(48000, src, 480)
	h.Play()
	assert.True(t, h.IsPlaying())
	time.Sleep(60 * time.Millisecond)
	h.Pause()
	assert.False(t, h.IsPlaying())

	calls := src.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(3))
	assert.Equal(t, time.Duration(calls)*10*time.Millisecond, h.Position())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, src.calls.Load())
	assert.NoError(t, h.Stop())
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("alsa", 48000, &rampSource{}, 0)
	assert.Error(t, err)
}
