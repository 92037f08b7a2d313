package main

import (
	"github.com/spf13/pflag"

	"github.com/cbegin/musicclock-go"
)

// bindConfigFlags exposes the config fields as flags defaulting to the
// current values of c.
func bindConfigFlags(fs *pflag.FlagSet, c *musicclock.Config) {
	fs.IntVar(&c.SampleRate, "sample-rate", c.SampleRate, "output sample rate")
	fs.IntVar(&c.BlockFrames, "block-frames", c.BlockFrames, "render block size in frames")
	fs.IntVar(&c.HistoryCapacity, "history", c.HistoryCapacity, "position history capacity in records")
	fs.IntVar(&c.TicksPerQuarterNote, "tpq", c.TicksPerQuarterNote, "ticks per quarter note for default maps")
	fs.Float64Var(&c.RefreshRate, "fps", c.RefreshRate, "clock refreshes per second")
	fs.StringVar(&c.EventTimebase, "timebase", c.EventTimebase, "timebase for bar/beat events: raw|audio|player|video")
	fs.StringVarP(&c.Backend, "backend", "b", c.Backend, "audio backend: ebiten|oto|headless")
	fs.BoolVar(&c.Metronome, "metronome", c.Metronome, "render a metronome click")
	fs.IntVar(&c.LoopStartTick, "loop-start", c.LoopStartTick, "loop start tick")
	fs.IntVar(&c.LoopLengthTicks, "loop-length", c.LoopLengthTicks, "loop length in ticks (0 = no loop)")
	fs.StringVarP(&c.SongFile, "song", "s", c.SongFile, "standard MIDI file for tempo, meter and sections")
	fs.Float64Var(&c.Sync.KP, "kp", c.Sync.KP, "sync proportional gain")
	fs.Float64Var(&c.Sync.MaxErrorSecondsBeforeJump, "max-error", c.Sync.MaxErrorSecondsBeforeJump, "sync error in seconds that forces a resync")
	fs.Float64Var(&c.Sync.SmoothingLagSeconds, "lag", c.Sync.SmoothingLagSeconds, "initial smoothing look-behind in seconds")
	fs.Float64Var(&c.Offsets.PlayerExperienceMs, "player-offset", c.Offsets.PlayerExperienceMs, "player experience offset in ms")
	fs.Float64Var(&c.Offsets.VideoRenderMs, "video-offset", c.Offsets.VideoRenderMs, "video render offset in ms")
}

// loadConfigUnderFlags reads the config file into cfg, then re-applies
// every flag given on the command line.
func loadConfigUnderFlags(fs *pflag.FlagSet, path string) error {
	changed := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	loaded, err := musicclock.LoadConfig(path)
	if err != nil {
		return err
	}
	cfg = loaded
	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return err
		}
	}
	return cfg.Validate()
}
