package history

type TransportState int

const (
	TransportStopped TransportState = iota
	TransportPlaying
	TransportPaused
)

func (s TransportState) String() string {
	switch s {
	case TransportPlaying:
		return "playing"
	case TransportPaused:
		return "paused"
	}
	return "stopped"
}

// Marker tags records on either side of a seek or loop so readers never
// interpolate across the jump.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerLastPositionBeforeSeekLoop
	MarkerFirstPositionAfterSeekLoop
)

// PositionRecord says: at output frame SampleCount the clock is at UpToTick
// (local clock tick) and TempoMapTick (position in the song maps).
type PositionRecord struct {
	SampleCount    int64
	UpToTick       int32
	TempoMapTick   int32
	CurrentSpeed   float32
	TransportState TransportState
	Marker         Marker
}
