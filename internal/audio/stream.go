package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"
)

// SampleSource renders interleaved stereo float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has ended.
// When Finished returns true, the stream will return io.EOF on the next Read.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

const bytesPerFrame = 8

// StreamReader adapts a SampleSource to the float32 little-endian byte
// stream the output libraries pull from. Read runs on the output library's
// goroutine and never takes a lock.
type StreamReader struct {
	source atomic.Pointer[sourceBox]
	buf    []float32
	frames atomic.Int64
}

type sourceBox struct{ SampleSource }

func NewStreamReader(source SampleSource) *StreamReader {
	r := &StreamReader{}
	r.SetSource(source)
	return r
}

// SetSource swaps the source; nil renders silence.
func (r *StreamReader) SetSource(source SampleSource) {
	if source == nil {
		r.source.Store(nil)
		return
	}
	r.source.Store(&sourceBox{source})
}

// FramesRead is the number of frames handed to the output so far.
func (r *StreamReader) FramesRead() int64 { return r.frames.Load() }

func (r *StreamReader) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	box := r.source.Load()
	if box == nil {
		clear(r.buf)
	} else {
		box.Process(r.buf)
	}
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	r.frames.Add(int64(frames))
	n := frames * bytesPerFrame
	if box != nil {
		if fs, ok := box.SampleSource.(FinishingSource); ok && fs.Finished() {
			return n, io.EOF
		}
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }
