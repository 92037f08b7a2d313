package audio

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
)

// OtoPlayer drives oto directly, without ebiten's mixer in between.
type OtoPlayer struct {
	ctx        *oto.Context
	player     *oto.Player
	reader     *StreamReader
	sampleRate int
	mutex      sync.Mutex // setup and control only; Read is lock-free
}

func NewOtoPlayer(sampleRate int, source SampleSource) (*OtoPlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   20 * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, errors.Wrap(err, "oto context")
	}
	<-ready

	reader := NewStreamReader(source)
	return &OtoPlayer{
		ctx:        ctx,
		player:     ctx.NewPlayer(reader),
		reader:     reader,
		sampleRate: sampleRate,
	}, nil
}

func (op *OtoPlayer) Play() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.player.Play()
}

func (op *OtoPlayer) Pause() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.player.Pause()
}

func (op *OtoPlayer) IsPlaying() bool {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.player.IsPlaying()
}

// Position subtracts what oto still holds in its buffer from what it has read.
func (op *OtoPlayer) Position() time.Duration {
	op.mutex.Lock()
	buffered := int64(op.player.BufferedSize() / bytesPerFrame)
	op.mutex.Unlock()
	return framesToDuration(op.reader.FramesRead()-buffered, op.sampleRate)
}

func (op *OtoPlayer) Stop() error {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.player.Pause()
	if err := op.player.Close(); err != nil {
		return errors.Wrap(err, "close oto player")
	}
	return op.reader.Close()
}
