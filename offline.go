package musicclock

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/cbegin/musicclock-go/internal/clock"
	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/render"
	"github.com/cbegin/musicclock-go/internal/sampler"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

// SimulationOptions describes an offline run: a transport rendered in
// blocks a little ahead of a virtual wall clock, and a clock refreshed at
// the configured frame rate.
type SimulationOptions struct {
	Config   Config
	Maps     *songmap.SongMaps
	Duration time.Duration
	// Stall holds the render side for StallFor starting at StallAt, then
	// lets it catch up all at once.
	StallAt  time.Duration
	StallFor time.Duration
	// SeekAt requests a seek to SeekTick; zero disables it.
	SeekAt   time.Duration
	SeekTick int
	// CaptureAudio keeps the rendered stereo samples.
	CaptureAudio bool
	Logger       *slog.Logger
}

type SimulationFrame struct {
	Time      time.Duration `json:"time"`
	Updated   bool          `json:"updated"`
	Audio     SongPos       `json:"audio"`
	Player    SongPos       `json:"player"`
	Seeked    bool          `json:"seeked"`
	Looped    bool          `json:"looped"`
	SyncSpeed float64       `json:"syncSpeed"`
}

type SimulationResult struct {
	Frames         []SimulationFrame `json:"frames"`
	Events         []Event           `json:"-"`
	Diagnostics    Diagnostics       `json:"diagnostics"`
	RecordsWritten int64             `json:"recordsWritten"`
	Samples        []float32         `json:"-"`
}

// Simulate runs a transport and a clock against virtual time. The result is
// deterministic for a given set of options.
func Simulate(opts SimulationOptions) (*SimulationResult, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "simulate")
	}
	if opts.Duration <= 0 {
		return nil, errors.New("simulate: duration must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maps := opts.Maps
	if maps == nil {
		maps = songmap.NewDefaultSongMaps(cfg.TicksPerQuarterNote)
	}

	mt := &clock.ManualTime{}
	hist := history.NewSongPositionHistory(cfg.SampleRate, cfg.HistoryCapacity, maps)
	smp := sampler.New(hist, logger)
	transport := render.NewWithOptions(maps, smp, cfg.SampleRate, render.Options{
		LoopStartTick:   cfg.LoopStartTick,
		LoopLengthTicks: cfg.LoopLengthTicks,
		Metronome:       cfg.Metronome,
	})
	c := NewClock(append(cfg.ClockOptions(), WithTimeSource(mt.Source()), WithLogger(logger))...)
	c.ConnectToHistory(hist)
	events := c.Watch()

	res := &SimulationResult{}
	block := make([]float32, cfg.BlockFrames*2)
	// The device keeps one block queued ahead of what is heard.
	lead := int64(cfg.BlockFrames)
	var rendered int64
	renderUntil := func(until int64) {
		for rendered < until {
			transport.Process(block)
			rendered += int64(cfg.BlockFrames)
			if opts.CaptureAudio {
				res.Samples = append(res.Samples, block...)
			}
		}
	}

	transport.Play()
	c.Start(false)
	frame := cfg.FrameInterval()
	seekPending := opts.SeekAt > 0
	for now := time.Duration(0); now <= opts.Duration; now += frame {
		mt.Advance(now - mt.Now())
		if seekPending && now >= opts.SeekAt {
			transport.Seek(opts.SeekTick)
			seekPending = false
		}
		stalled := opts.StallFor > 0 && now >= opts.StallAt && now < opts.StallAt+opts.StallFor
		if !stalled {
			renderUntil(int64(math.Round(now.Seconds()*float64(cfg.SampleRate))) + lead)
		}
		updated := c.Refresh()
		res.Frames = append(res.Frames, SimulationFrame{
			Time:      now,
			Updated:   updated,
			Audio:     c.CurrentSongPos(TimebaseAudioRender),
			Player:    c.CurrentSongPos(TimebasePlayerExperience),
			Seeked:    c.SeekedThisFrame(TimebaseAudioRender),
			Looped:    c.LoopedThisFrame(TimebaseAudioRender),
			SyncSpeed: c.Diagnostics().SyncSpeed,
		})
		for drained := false; !drained; {
			select {
			case ev := <-events:
				res.Events = append(res.Events, ev)
			default:
				drained = true
			}
		}
	}
	res.Diagnostics = c.Diagnostics()
	res.RecordsWritten = smp.RecordsWritten()
	return res, nil
}

// RenderClick renders seconds of the metronome over the given maps, from
// tick 0, without a clock attached.
func RenderClick(maps *songmap.SongMaps, sampleRate int, seconds float64) []float32 {
	hist := history.NewSongPositionHistory(sampleRate, history.DefaultCapacity, maps)
	transport := render.NewWithOptions(maps, sampler.New(hist, nil), sampleRate, render.Options{Metronome: true})
	transport.Play()
	frames := int(float64(sampleRate) * seconds)
	out := make([]float32, frames*2)
	transport.Process(out)
	return out
}

// wavHeader is the canonical 44-byte RIFF header for IEEE float PCM.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

const (
	wavFormatFloat = 3
	clickChannels  = 2
)

// WriteClickWAV writes interleaved stereo samples, as rendered by the
// transport, as a 32-bit float WAV file.
func WriteClickWAV(w io.Writer, samples []float32, sampleRate int) error {
	if len(samples)%clickChannels != 0 {
		return errors.Errorf("wav: %d samples is not a whole number of stereo frames", len(samples))
	}
	if sampleRate <= 0 {
		return errors.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	dataSize := uint32(len(samples) * 4)
	hdr := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        wavFormatFloat,
		Channels:      clickChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * clickChannels * 4),
		BlockAlign:    clickChannels * 4,
		BitsPerSample: 32,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "wav header")
	}
	return errors.Wrap(binary.Write(w, binary.LittleEndian, samples), "wav samples")
}
