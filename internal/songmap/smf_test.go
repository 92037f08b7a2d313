package songmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestFromSMFConductorTrack(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(100))
	tr.Add(0, smf.MetaMeter(3, 4))
	tr.Add(0, smf.MetaMarker("intro"))
	// two bars of 3/4 at 480 tpq
	tr.Add(2880, smf.MetaMeter(4, 4))
	tr.Add(0, smf.MetaMarker("chorus"))
	tr.Add(1000, smf.MetaTempo(150))
	tr.Close(2840)
	require.NoError(t, s.Add(tr))

	m, err := FromSMF(s)
	require.NoError(t, err)
	assert.True(t, m.Finalized())
	assert.Equal(t, 480, m.TicksPerQuarterNote())
	assert.Equal(t, 6720, m.LengthTicks())

	bars := m.Bars().Points()
	require.Len(t, bars, 2)
	assert.Equal(t, 2, bars[1].BarIndex)
	assert.Equal(t, 2880, bars[1].StartTick)

	bpm, ok := m.TempoAtTick(100)
	require.True(t, ok)
	assert.InDelta(t, 100.0, bpm, 1e-3)
	bpm, _ = m.TempoAtTick(3880)
	assert.InDelta(t, 150.0, bpm, 1e-3)

	sec, _, ok := m.SectionAtTick(3000)
	require.True(t, ok)
	assert.Equal(t, "chorus", sec.Name)
}
