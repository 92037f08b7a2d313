package musicclock

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

// SyncConfig tunes the audio render control loop.
type SyncConfig struct {
	KP                        float64 `yaml:"kp"`
	MinSpeed                  float64 `yaml:"min_speed"`
	MaxSpeed                  float64 `yaml:"max_speed"`
	MaxErrorSecondsBeforeJump float64 `yaml:"max_error_seconds_before_jump"`
	SmoothingLagSeconds       float64 `yaml:"smoothing_lag_seconds"`
	MaxSmoothingLagSeconds    float64 `yaml:"max_smoothing_lag_seconds"`
	ErrorWindow               int     `yaml:"error_window"`
	SeekDeltaMultiple         float64 `yaml:"seek_delta_multiple"`
}

// OffsetConfig holds the per-timebase latencies, in song milliseconds.
type OffsetConfig struct {
	PlayerExperienceMs float64 `yaml:"player_experience_ms"`
	VideoRenderMs      float64 `yaml:"video_render_ms"`
}

type Config struct {
	SampleRate          int     `yaml:"sample_rate"`
	BlockFrames         int     `yaml:"block_frames"`
	HistoryCapacity     int     `yaml:"history_capacity"`
	TicksPerQuarterNote int     `yaml:"ticks_per_quarter_note"`
	RefreshRate         float64 `yaml:"refresh_rate"` // game frames per second
	EventTimebase       string  `yaml:"event_timebase"`
	Backend             string  `yaml:"backend"`
	Metronome           bool    `yaml:"metronome"`
	LoopStartTick       int     `yaml:"loop_start_tick"`
	LoopLengthTicks     int     `yaml:"loop_length_ticks"`
	SongFile            string  `yaml:"song_file"`

	Sync    SyncConfig   `yaml:"sync"`
	Offsets OffsetConfig `yaml:"offsets"`
}

func DefaultConfig() Config {
	s := DefaultSettings()
	return Config{
		SampleRate:          48000,
		BlockFrames:         480,
		HistoryCapacity:     history.DefaultCapacity,
		TicksPerQuarterNote: songmap.DefaultTicksPerQuarterNote,
		RefreshRate:         60,
		EventTimebase:       TimebasePlayerExperience.String(),
		Backend:             "ebiten",
		Metronome:           true,
		Sync: SyncConfig{
			KP:                        s.KP,
			MinSpeed:                  s.MinSyncSpeed,
			MaxSpeed:                  s.MaxSyncSpeed,
			MaxErrorSecondsBeforeJump: s.MaxErrorSecondsBeforeJump,
			SmoothingLagSeconds:       s.RenderSmoothingLagSeconds,
			MaxSmoothingLagSeconds:    s.MaxRenderSmoothingLagSeconds,
			ErrorWindow:               s.ErrorWindow,
			SeekDeltaMultiple:         s.SeekDeltaMultiple,
		},
		Offsets: OffsetConfig{
			PlayerExperienceMs: s.PlayerExperienceOffsetMs,
			VideoRenderMs:      s.VideoRenderOffsetMs,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return errors.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	case c.BlockFrames <= 0:
		return errors.Errorf("block_frames must be positive, got %d", c.BlockFrames)
	case c.HistoryCapacity < 2:
		return errors.Errorf("history_capacity must be at least 2, got %d", c.HistoryCapacity)
	case c.TicksPerQuarterNote <= 0:
		return errors.Errorf("ticks_per_quarter_note must be positive, got %d", c.TicksPerQuarterNote)
	case c.RefreshRate <= 0:
		return errors.Errorf("refresh_rate must be positive, got %v", c.RefreshRate)
	case c.LoopLengthTicks < 0:
		return errors.Errorf("loop_length_ticks must not be negative, got %d", c.LoopLengthTicks)
	case c.Sync.MinSpeed > c.Sync.MaxSpeed:
		return errors.Errorf("sync.min_speed %v exceeds sync.max_speed %v", c.Sync.MinSpeed, c.Sync.MaxSpeed)
	}
	if _, err := c.Timebase(); err != nil {
		return err
	}
	return nil
}

// Settings converts the sync and offset sections for the clock driver.
func (c Config) Settings() Settings {
	return Settings{
		KP:                           c.Sync.KP,
		MinSyncSpeed:                 c.Sync.MinSpeed,
		MaxSyncSpeed:                 c.Sync.MaxSpeed,
		MaxErrorSecondsBeforeJump:    c.Sync.MaxErrorSecondsBeforeJump,
		RenderSmoothingLagSeconds:    c.Sync.SmoothingLagSeconds,
		MaxRenderSmoothingLagSeconds: c.Sync.MaxSmoothingLagSeconds,
		ErrorWindow:                  c.Sync.ErrorWindow,
		PlayerExperienceOffsetMs:     c.Offsets.PlayerExperienceMs,
		VideoRenderOffsetMs:          c.Offsets.VideoRenderMs,
		SeekDeltaMultiple:            c.Sync.SeekDeltaMultiple,
	}
}

func (c Config) Timebase() (Timebase, error) {
	return ParseTimebase(c.EventTimebase)
}

func (c Config) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.RefreshRate)
}

// SongMaps loads SongFile, or returns default maps when it is empty.
func (c Config) SongMaps(opts ...songmap.Option) (*songmap.SongMaps, error) {
	if c.SongFile == "" {
		return songmap.NewDefaultSongMaps(c.TicksPerQuarterNote, opts...), nil
	}
	return songmap.LoadSMFFile(c.SongFile, opts...)
}

// ClockOptions builds the facade options the config describes.
func (c Config) ClockOptions() []ClockOption {
	opts := []ClockOption{WithSettings(c.Settings())}
	if tb, err := c.Timebase(); err == nil {
		opts = append(opts, WithEventTimebase(tb))
	}
	return opts
}
