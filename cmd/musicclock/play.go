package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cbegin/musicclock-go"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

var (
	playDuration time.Duration
	playQuiet    bool
)

func init() {
	playCmd.Flags().DurationVarP(&playDuration, "duration", "d", 0, "stop after this long (0 = until the song ends or interrupted)")
	playCmd.Flags().BoolVarP(&playQuiet, "quiet", "q", false, "do not print clock events")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the metronome and follow it with the clock",
	RunE: func(cmd *cobra.Command, args []string) error {
		maps, err := loadSongMaps()
		if err != nil {
			return err
		}
		pl, err := newPlayer(maps, false)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return play(ctx, cmd.OutOrStdout(), pl)
	},
}

func newPlayer(maps *songmap.SongMaps, loopForever bool) (*musicclock.Player, error) {
	opts := []musicclock.PlayerOption{
		musicclock.WithBackend(cfg.Backend),
		musicclock.WithBlockFrames(cfg.BlockFrames),
		musicclock.WithHistoryCapacity(cfg.HistoryCapacity),
		musicclock.WithMetronome(cfg.Metronome),
		musicclock.WithStopAtEnd(!loopForever && cfg.LoopLengthTicks == 0),
		musicclock.WithPlayerLogger(logger),
		musicclock.WithClockOptions(cfg.ClockOptions()...),
	}
	switch {
	case cfg.LoopLengthTicks > 0:
		opts = append(opts, musicclock.WithLoop(cfg.LoopStartTick, cfg.LoopLengthTicks))
	case loopForever:
		opts = append(opts, musicclock.WithLoop(0, maps.LengthTicks()))
	}
	return musicclock.NewPlayer(cfg.SampleRate, maps, opts...)
}

func play(ctx context.Context, out io.Writer, pl *musicclock.Player) error {
	if playDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, playDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := pl.Clock()
	events := c.Watch()
	if err := pl.Play(); err != nil {
		return err
	}
	defer func() {
		if err := pl.Stop(); err != nil {
			logger.Warn("stop output", "err", err)
		}
	}()
	go func() {
		pl.Wait()
		cancel()
	}()

	sched := musicclock.NewScheduler(logger)
	sched.Register(c)
	go func() { _ = sched.Run(ctx, cfg.FrameInterval()) }()

	tb, err := cfg.Timebase()
	if err != nil {
		return err
	}
	status := isTerminal(out)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if status {
				fmt.Fprintln(out)
			}
			d := c.Diagnostics()
			logger.Info("playback finished", "snaps", d.Snaps, "deferred", d.DeferredFrames, "overruns", d.Overruns)
			return nil
		case ev := <-events:
			if playQuiet || ev.Kind == musicclock.EventBeat {
				continue
			}
			if status {
				fmt.Fprint(out, "\r\033[K")
			}
			fmt.Fprintf(out, "%-8s %-7s bar %d beat %.2f tick %.1f %s\n",
				ev.Kind, ev.Timebase, ev.Pos.Bar, ev.Pos.Beat, ev.Pos.Tick, ev.Pos.Section)
		case <-ticker.C:
			if !status {
				continue
			}
			p := c.CurrentSongPos(tb)
			d := c.Diagnostics()
			fmt.Fprintf(out, "\r\033[K%s %3d.%05.2f  %6.1f bpm  %4d/%d  speed %.4f  err %+6.1fms",
				tb, p.Bar, p.Beat, p.TempoBPM, p.TimeSignature.Numerator, p.TimeSignature.Denominator,
				d.SyncSpeed, d.LastError*1000)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
