package history

import (
	"sync/atomic"

	"github.com/cbegin/musicclock-go/internal/songmap"
)

// SongMapChainNode is an immutable maps snapshot plus the loop region in
// effect when it was published.
type SongMapChainNode struct {
	Maps            songmap.Evaluator
	FirstTickInLoop int
	LoopLengthTicks int

	next atomic.Pointer[SongMapChainNode]
}

func (n *SongMapChainNode) Looping() bool { return n.LoopLengthTicks > 0 }

// SongMapChain is a copy-on-write list of maps snapshots. The producer
// appends; each reader walks forward from its own cached node, so nothing
// is ever edited in place and old nodes are collected once no reader holds them.
type SongMapChain struct {
	latest atomic.Pointer[SongMapChainNode]
}

func NewSongMapChain(maps songmap.Evaluator, firstTickInLoop, loopLengthTicks int) *SongMapChain {
	c := &SongMapChain{}
	c.latest.Store(newChainNode(maps, firstTickInLoop, loopLengthTicks))
	return c
}

func newChainNode(maps songmap.Evaluator, firstTickInLoop, loopLengthTicks int) *SongMapChainNode {
	if maps == nil {
		maps = songmap.NewDefaultSongMaps(songmap.DefaultTicksPerQuarterNote)
	}
	return &SongMapChainNode{Maps: maps, FirstTickInLoop: firstTickInLoop, LoopLengthTicks: max(loopLengthTicks, 0)}
}

// Publish appends a snapshot. There must be a single publisher.
func (c *SongMapChain) Publish(maps songmap.Evaluator, firstTickInLoop, loopLengthTicks int) *SongMapChainNode {
	n := newChainNode(maps, firstTickInLoop, loopLengthTicks)
	c.latest.Load().next.Store(n)
	c.latest.Store(n)
	return n
}

func (c *SongMapChain) Latest() *SongMapChainNode { return c.latest.Load() }

func (c *SongMapChain) NewCursor() *SongMapCursor {
	return &SongMapCursor{head: c.latest.Load()}
}

// SongMapCursor is one reader's cached position in a SongMapChain.
type SongMapCursor struct {
	head *SongMapChainNode
}

// Latest walks to the tail and reports whether the head moved.
func (c *SongMapCursor) Latest() (*SongMapChainNode, bool) {
	changed := false
	for n := c.head.next.Load(); n != nil; n = c.head.next.Load() {
		c.head = n
		changed = true
	}
	return c.head, changed
}
