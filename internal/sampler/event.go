package sampler

import (
	"fmt"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

type EventKind int

const (
	EventAdvance EventKind = iota
	EventTempoChange
	EventTimeSignatureChange
	EventSpeedChange
	EventTransportChange
	EventLoop
	EventSeek
)

func (k EventKind) String() string {
	switch k {
	case EventAdvance:
		return "advance"
	case EventTempoChange:
		return "tempo"
	case EventTimeSignatureChange:
		return "timesig"
	case EventSpeedChange:
		return "speed"
	case EventTransportChange:
		return "transport"
	case EventLoop:
		return "loop"
	case EventSeek:
		return "seek"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ClockEvent is one entry of a render block's ordered clock event list.
//
// Advance: the clock is at FirstTick at BlockFrameIndex and processes
// NumTicks ticks from there. TempoChange and TimeSignatureChange: FirstTick
// is where the change applies. Loop and Seek: FirstTick and TempoMapTick are
// the position jumped to.
type ClockEvent struct {
	Kind            EventKind
	BlockFrameIndex int

	FirstTick    int32
	NumTicks     int32
	TempoMapTick int32

	TempoBPM      float64
	TimeSignature songmap.TimeSignature
	Speed         float32
	Transport     history.TransportState
}

func Advance(frame int, firstTick, numTicks, tempoMapTick int32) ClockEvent {
	return ClockEvent{Kind: EventAdvance, BlockFrameIndex: frame, FirstTick: firstTick, NumTicks: numTicks, TempoMapTick: tempoMapTick}
}

func TempoChange(frame int, tick int32, bpm float64, tempoMapTick int32) ClockEvent {
	return ClockEvent{Kind: EventTempoChange, BlockFrameIndex: frame, FirstTick: tick, TempoBPM: bpm, TempoMapTick: tempoMapTick}
}

func TimeSignatureChange(frame int, tick int32, ts songmap.TimeSignature, tempoMapTick int32) ClockEvent {
	return ClockEvent{Kind: EventTimeSignatureChange, BlockFrameIndex: frame, FirstTick: tick, TimeSignature: ts, TempoMapTick: tempoMapTick}
}

func SpeedChange(frame int, speed float32) ClockEvent {
	return ClockEvent{Kind: EventSpeedChange, BlockFrameIndex: frame, Speed: speed}
}

func TransportChange(frame int, state history.TransportState) ClockEvent {
	return ClockEvent{Kind: EventTransportChange, BlockFrameIndex: frame, Transport: state}
}

func Loop(frame int, toTick, toTempoMapTick int32) ClockEvent {
	return ClockEvent{Kind: EventLoop, BlockFrameIndex: frame, FirstTick: toTick, TempoMapTick: toTempoMapTick}
}

func Seek(frame int, toTick, toTempoMapTick int32) ClockEvent {
	return ClockEvent{Kind: EventSeek, BlockFrameIndex: frame, FirstTick: toTick, TempoMapTick: toTempoMapTick}
}
