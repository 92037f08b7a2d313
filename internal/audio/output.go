// Package audio sends a SampleSource to a sound device, or to nowhere at
// real-time pace when no device is wanted.
package audio

import (
	"time"

	"github.com/pkg/errors"
)

type Backend string

const (
	BackendEbiten   Backend = "ebiten"
	BackendOto      Backend = "oto"
	BackendHeadless Backend = "headless"
)

// Output is a running audio sink.
type Output interface {
	Play()
	Pause()
	IsPlaying() bool
	// Position is the playback position the listener hears.
	Position() time.Duration
	Stop() error
}

// Open starts an output of the given backend pulling from source.
// blockFrames sizes the ebiten buffer and the headless pump; oto keeps its
// own 20 ms buffer.
func Open(backend Backend, sampleRate int, source SampleSource, blockFrames int) (Output, error) {
	switch backend {
	case BackendEbiten, "":
		return NewEbitenPlayer(sampleRate, source, blockFrames)
	case BackendOto:
		return NewOtoPlayer(sampleRate, source)
	case BackendHeadless:
		return NewHeadlessPlayer(sampleRate, source, blockFrames), nil
	}
	return nil, errors.Errorf("unknown audio backend %q", backend)
}

func framesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 || frames <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
