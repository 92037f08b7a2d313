package musicclock

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	intaudio "github.com/cbegin/musicclock-go/internal/audio"
	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/render"
	"github.com/cbegin/musicclock-go/internal/sampler"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	backend     intaudio.Backend
	blockFrames int
	capacity    int
	loopStart   int
	loopLength  int
	metronome   bool
	clickGain   float64
	stopAtEnd   bool
	sampleTap   func([]float32)
	logger      *slog.Logger
	clockOpts   []ClockOption
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		backend:     intaudio.BackendEbiten,
		blockFrames: 480,
		capacity:    history.DefaultCapacity,
		metronome:   true,
		logger:      slog.Default(),
	}
}

// WithBackend selects the audio output: "ebiten", "oto" or "headless".
func WithBackend(name string) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = intaudio.Backend(name)
	}
}

// WithBlockFrames sets the render block size, which also sizes the output buffer.
func WithBlockFrames(frames int) PlayerOption {
	return func(cfg *playerConfig) {
		if frames > 0 {
			cfg.blockFrames = frames
		}
	}
}

func WithHistoryCapacity(capacity int) PlayerOption {
	return func(cfg *playerConfig) {
		if capacity > 1 {
			cfg.capacity = capacity
		}
	}
}

func WithLoop(startTick, lengthTicks int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loopStart = startTick
		cfg.loopLength = lengthTicks
	}
}

func WithMetronome(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.metronome = enabled
	}
}

// WithClickGain sets the metronome level; zero keeps the default.
func WithClickGain(gain float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.clickGain = gain
	}
}

// WithStopAtEnd ends non-looping playback at the end of the song.
func WithStopAtEnd(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.stopAtEnd = enabled
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

func WithPlayerLogger(l *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithClockOptions configures the clock the player drives.
func WithClockOptions(opts ...ClockOption) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.clockOpts = append(cfg.clockOpts, opts...)
	}
}

// Player renders a transport to an audio output and keeps a Clock connected
// to the transport's position history.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	cfg        playerConfig
	history    *history.SongPositionHistory
	transport  *render.Transport
	source     *transportSource
	audio      intaudio.Output
	clock      *Clock
	done       chan struct{}
	rewind     bool
}

// transportSource wraps the transport as a FinishingSource so outputs stop
// pulling once non-looping playback ends.
type transportSource struct {
	transport *render.Transport
	finished  atomic.Bool
	sampleTap func([]float32)
}

func (s *transportSource) Process(dst []float32) {
	s.transport.Process(dst)
	if s.sampleTap != nil {
		s.sampleTap(dst)
	}
}

func (s *transportSource) Finished() bool {
	return s.finished.Load()
}

func NewPlayer(sampleRate int, maps *songmap.SongMaps, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if maps == nil {
		maps = songmap.NewDefaultSongMaps(songmap.DefaultTicksPerQuarterNote)
	}
	p := &Player{
		sampleRate: sampleRate,
		cfg:        cfg,
		history:    history.NewSongPositionHistory(sampleRate, cfg.capacity, maps),
	}
	p.source = &transportSource{sampleTap: cfg.sampleTap}
	p.transport = render.NewWithOptions(maps, sampler.New(p.history, cfg.logger), sampleRate, render.Options{
		LoopStartTick:   cfg.loopStart,
		LoopLengthTicks: cfg.loopLength,
		Metronome:       cfg.metronome,
		ClickGain:       cfg.clickGain,
		StopAtEnd:       cfg.stopAtEnd,
		OnEvent:         p.onTransportEvent,
	})
	p.source.transport = p.transport
	p.clock = NewClock(append([]ClockOption{WithLogger(cfg.logger)}, cfg.clockOpts...)...)
	p.clock.ConnectToHistory(p.history)
	return p, nil
}

// onTransportEvent runs on the audio goroutine.
func (p *Player) onTransportEvent(kind render.EventKind) {
	switch kind {
	case render.EventLoopCompleted:
		p.cfg.logger.Debug("loop completed", "tick", p.transport.CurrentTick())
	case render.EventPlaybackEnded:
		p.source.finished.Store(true)
		p.signalDone()
	}
}

func (p *Player) Clock() *Clock                         { return p.clock }
func (p *Player) History() *history.SongPositionHistory { return p.history }
func (p *Player) SampleRate() int                       { return p.sampleRate }

// Play starts the output and the transport, and starts the clock.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		out, err := intaudio.Open(p.cfg.backend, p.sampleRate, p.source, p.cfg.blockFrames)
		if err != nil {
			return errors.Wrap(err, "open audio output")
		}
		p.audio = out
	}
	if p.done == nil {
		p.done = make(chan struct{})
	}
	if p.rewind {
		p.source.finished.Store(false)
		p.transport.Seek(p.cfg.loopStart)
		p.rewind = false
	}
	p.transport.Play()
	p.audio.Play()
	p.clock.Start(false)
	return nil
}

// Pause halts the transport but keeps the output pulling, so the clock
// keeps receiving paused records and holds its position.
func (p *Player) Pause() {
	p.transport.Pause()
}

func (p *Player) Resume() {
	p.transport.Play()
}

func (p *Player) Seek(tick int)                      { p.transport.Seek(tick) }
func (p *Player) SetSpeed(speed float64)             { p.transport.SetSpeed(speed) }
func (p *Player) SetLoop(startTick, lengthTicks int) { p.transport.SetLoop(startTick, lengthTicks) }
func (p *Player) SetMetronome(enabled bool)          { p.transport.SetMetronome(enabled) }
func (p *Player) CurrentTick() int                   { return p.transport.CurrentTick() }

func (p *Player) TransportState() history.TransportState { return p.transport.State() }

// SetSongMaps swaps the maps at the start of the next block. Readers see the
// new maps through the history's map chain.
func (p *Player) SetSongMaps(maps *songmap.SongMaps) {
	p.transport.SetSongMaps(maps)
}

// Stop ends playback. The next Play starts again from the loop start.
func (p *Player) Stop() error {
	p.transport.Stop()
	p.clock.Stop()
	p.mu.Lock()
	a := p.audio
	p.audio = nil
	p.rewind = a != nil
	done := p.done
	p.done = nil
	p.mu.Unlock()
	var err error
	if a != nil {
		err = a.Stop()
	}
	if done != nil {
		close(done)
	}
	return err
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Wait blocks until the current playback ends. When looping, Wait blocks
// until Stop. Wait returns immediately if no playback is active.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// PlaybackPosition returns the current output position of the audio driver,
// in frames, i.e. what the listener actually hears right now. Returns 0 if
// not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	pos := a.Position()
	return int64(pos.Seconds() * float64(p.sampleRate))
}
