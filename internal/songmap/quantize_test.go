package songmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuantizeTickToNearestSubdivision(t *testing.T) {
	m := NewSongMaps(960)
	require.NoError(t, m.AddTimeSignatureAtBar(0, TimeSignature{Numerator: 4, Denominator: 4}))
	require.NoError(t, m.AddTimeSignatureAtBar(1, TimeSignature{Numerator: 6, Denominator: 8}))
	m.Finalize()

	cases := []struct {
		name string
		tick int
		dir  QuantizeDirection
		sub  Subdivision
		want int
	}{
		{"bar nearest down", 1000, QuantizeNearest, SubdivisionBar, 0},
		{"bar nearest up", 3000, QuantizeNearest, SubdivisionBar, 3840},
		{"bar up", 1, QuantizeUp, SubdivisionBar, 3840},
		{"on grid stays", 1920, QuantizeUp, SubdivisionBeat, 1920},
		{"beat down", 1919, QuantizeDown, SubdivisionBeat, 960},
		{"tie goes up", 480, QuantizeNearest, SubdivisionBeat, 960},
		{"eighth in 6/8 anchored at bar 1", 3840 + 500, QuantizeNearest, SubdivisionBeat, 3840 + 480},
		{"6/8 bar length", 3840 + 100, QuantizeUp, SubdivisionBar, 3840 + 2880},
		{"sixteenth", 250, QuantizeNearest, SubdivisionSixteenthNote, 240},
		{"eighth triplet", 330, QuantizeDown, SubdivisionEighthNoteTriplet, 320},
		{"dotted quarter", 1500, QuantizeNearest, SubdivisionDottedQuarterNote, 1440},
		{"count-in", -100, QuantizeDown, SubdivisionBeat, -960},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := m.QuantizeTickToNearestSubdivision(tc.tick, tc.dir, tc.sub)
			if got != tc.want {
				t.Fatalf("quantize(%d) = %d, want %d", tc.tick, got, tc.want)
			}
		})
	}
}
