package audio

import (
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/pkg/errors"
)

// ebiten allows one audio context per process, at one sample rate.
var shared struct {
	once       sync.Once
	ctx        *ebitaudio.Context
	sampleRate int
}

func ebitenContext(sampleRate int) (*ebitaudio.Context, error) {
	shared.once.Do(func() {
		shared.sampleRate = sampleRate
		shared.ctx = ebitaudio.NewContext(sampleRate)
	})
	if shared.sampleRate != sampleRate {
		return nil, errors.Errorf("ebiten audio context runs at %d Hz, cannot open at %d Hz", shared.sampleRate, sampleRate)
	}
	return shared.ctx, nil
}

// EbitenPlayer plays through ebiten's mixer. Its buffer is kept to a few
// render blocks so the history stays close to what is heard.
type EbitenPlayer struct {
	player *ebitaudio.Player
	reader *StreamReader
}

func NewEbitenPlayer(sampleRate int, source SampleSource, blockFrames int) (*EbitenPlayer, error) {
	ctx, err := ebitenContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, errors.Wrap(err, "ebiten player")
	}
	if blockFrames > 0 {
		pl.SetBufferSize(framesToDuration(int64(blockFrames)*4, sampleRate))
	}
	return &EbitenPlayer{player: pl, reader: reader}, nil
}

func (p *EbitenPlayer) Play()                   { p.player.Play() }
func (p *EbitenPlayer) Pause()                  { p.player.Pause() }
func (p *EbitenPlayer) IsPlaying() bool         { return p.player.IsPlaying() }
func (p *EbitenPlayer) Position() time.Duration { return p.player.Position() }

func (p *EbitenPlayer) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return errors.Wrap(err, "close ebiten player")
	}
	return p.reader.Close()
}
