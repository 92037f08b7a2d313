package history

import "github.com/cbegin/musicclock-go/internal/songmap"

// SongPositionHistory is what a producer shares with its clocks: the record
// queue, the maps chain and the output sample rate.
type SongPositionHistory struct {
	sampleRate int
	queue      *Queue[PositionRecord]
	maps       *SongMapChain
}

func NewSongPositionHistory(sampleRate, capacity int, maps songmap.Evaluator) *SongPositionHistory {
	return &SongPositionHistory{
		sampleRate: sampleRate,
		queue:      NewQueue[PositionRecord](capacity),
		maps:       NewSongMapChain(maps, 0, 0),
	}
}

func (h *SongPositionHistory) SampleRate() int               { return h.sampleRate }
func (h *SongPositionHistory) Queue() *Queue[PositionRecord] { return h.queue }
func (h *SongPositionHistory) Maps() *SongMapChain           { return h.maps }
