package audio

import (
	"sync"
	"time"
)

const defaultHeadlessBlockFrames = 512

// HeadlessPlayer pulls from its source at real-time pace and discards the
// audio, for servers and machines without a sound device.
type HeadlessPlayer struct {
	reader      *StreamReader
	sampleRate  int
	blockFrames int

	mutex   sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	playing bool
}

func NewHeadlessPlayer(sampleRate int, source SampleSource, blockFrames int) *HeadlessPlayer {
	if blockFrames <= 0 {
		blockFrames = defaultHeadlessBlockFrames
	}
	return &HeadlessPlayer{
		reader:      NewStreamReader(source),
		sampleRate:  sampleRate,
		blockFrames: blockFrames,
	}
}

func (h *HeadlessPlayer) Play() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.playing {
		return
	}
	h.playing = true
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.pump(h.stop, h.done)
}

func (h *HeadlessPlayer) pump(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, h.blockFrames*bytesPerFrame)
	interval := framesToDuration(int64(h.blockFrames), h.sampleRate)
	start := time.Now()
	base := h.reader.FramesRead()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		// Catch up on whatever wall time has passed so a slow tick does not
		// leave the stream permanently behind.
		due := int64(time.Since(start)/interval) + 1
		for (h.reader.FramesRead()-base)/int64(h.blockFrames) < due {
			if _, err := h.reader.Read(buf); err != nil {
				return
			}
		}
		timer.Reset(interval)
	}
}

func (h *HeadlessPlayer) Pause() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.playing {
		return
	}
	close(h.stop)
	<-h.done
	h.playing = false
}

func (h *HeadlessPlayer) IsPlaying() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.playing
}

func (h *HeadlessPlayer) Position() time.Duration {
	return framesToDuration(h.reader.FramesRead(), h.sampleRate)
}

func (h *HeadlessPlayer) Stop() error {
	h.Pause()
	return h.reader.Close()
}
