package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/cbegin/musicclock-go/internal/songmap"
)

var inspectDump bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectDump, "dump", false, "dump the raw song maps")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [song.mid]",
	Short: "Print the tempo, meter and section maps of a song",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if len(args) == 1 {
			c.SongFile = args[0]
		}
		maps, err := c.SongMaps(songmap.WithLogger(logger))
		if err != nil {
			return err
		}
		return inspect(cmd.OutOrStdout(), maps)
	},
}

func inspect(out io.Writer, maps *songmap.SongMaps) error {
	if inspectDump {
		spew.Fdump(out, maps)
		return nil
	}
	fmt.Fprintf(out, "ticks/quarter %d, length %d ticks (%.2f bars), start bar %d\n\n",
		maps.TicksPerQuarterNote(), maps.LengthTicks(), maps.LengthFractionalBars(), maps.Bars().StartBar())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "tick\tms\tbpm")
	for _, p := range maps.Tempo().Points() {
		fmt.Fprintf(tw, "%d\t%.1f\t%.2f\n", p.Tick, p.Ms(), p.BPM())
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "bar\ttick\tmeter")
	for _, p := range maps.Bars().Points() {
		fmt.Fprintf(tw, "%d\t%d\t%d/%d\n", p.BarIndex+maps.Bars().StartBar(), p.StartTick, p.Numerator, p.Denominator)
	}
	if sections := maps.Sections().Markers(); len(sections) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "section\ttick\tlength")
		for _, m := range sections {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", m.Name, m.StartTick, m.LengthTicks)
		}
	}
	return tw.Flush()
}
