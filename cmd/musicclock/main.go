// Command musicclock simulates, plays and serves a music-synchronized clock.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cbegin/musicclock-go"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

var (
	logLevel   string
	configPath string
	cfg        = musicclock.DefaultConfig()
	logger     = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "musicclock",
	Short: "Music-synchronized clock",
	Long: `musicclock turns a sample-accurate render position into a smoothed,
loop- and seek-aware musical position (bar, beat, tick, section, tempo).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		if configPath == "" {
			return cfg.Validate()
		}
		return loadConfigUnderFlags(cmd.Flags(), configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file; flags override it")
	bindConfigFlags(rootCmd.PersistentFlags(), &cfg)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, errors.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// loadSongMaps builds the configured song maps reporting to the CLI logger.
func loadSongMaps() (*songmap.SongMaps, error) {
	return cfg.SongMaps(songmap.WithLogger(logger))
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
