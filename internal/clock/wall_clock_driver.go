package clock

import (
	"math"
	"time"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

// WallClockDriver plays fixed song maps against a time source, for clocks
// with no audio behind them.
type WallClockDriver struct {
	node  *history.SongMapChainNode
	now   TimeSource
	run   runState
	speed float64

	anchorWall time.Duration
	anchorMs   float64
	tb         timebases
}

var _ Driver = (*WallClockDriver)(nil)

func NewWallClockDriver(maps songmap.Evaluator, now TimeSource, settings Settings) *WallClockDriver {
	if now == nil {
		now = SystemTime()
	}
	settings = settings.withDefaults()
	return &WallClockDriver{
		node:  history.NewSongMapChain(maps, 0, 0).Latest(),
		now:   now,
		speed: 1,
		tb:    timebases{settings: settings},
	}
}

func (d *WallClockDriver) Method() DriveMethod                 { return DriveWallClock }
func (d *WallClockDriver) SongMapEvaluator() songmap.Evaluator { return d.node.Maps }
func (d *WallClockDriver) State(tb Timebase) *TimebaseState    { return d.tb.state(tb) }

// SetLoop sets the loop region in tempo map ticks; zero length disables it.
func (d *WallClockDriver) SetLoop(firstTick, lengthTicks int) {
	d.node = history.NewSongMapChain(d.node.Maps, firstTick, lengthTicks).Latest()
}

func (d *WallClockDriver) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	d.reanchor(d.songMs())
	d.speed = speed
}

// SeekTo moves to a tempo map tick; the next refresh reports the seek.
func (d *WallClockDriver) SeekTo(tick float64) {
	d.reanchor(d.node.Maps.TickToMs(tick))
}

func (d *WallClockDriver) reanchor(ms float64) {
	d.anchorWall = d.now()
	d.anchorMs = ms
}

func (d *WallClockDriver) songMs() float64 {
	if d.run != runRunning {
		return d.anchorMs
	}
	return d.anchorMs + (d.now()-d.anchorWall).Seconds()*1000*d.speed
}

func (d *WallClockDriver) Start() {
	if d.run == runRunning {
		return
	}
	if d.run == runStopped {
		d.tb.reset()
		d.anchorMs = 0
	}
	d.anchorWall = d.now()
	d.run = runRunning
}

func (d *WallClockDriver) Pause() {
	if d.run != runRunning {
		return
	}
	d.anchorMs = d.songMs()
	d.run = runPaused
}

func (d *WallClockDriver) Continue() {
	if d.run != runPaused {
		return
	}
	d.anchorWall = d.now()
	d.run = runRunning
}

func (d *WallClockDriver) Stop() {
	d.run = runStopped
	d.anchorMs = 0
	d.tb.reset()
}

func (d *WallClockDriver) RefreshCurrentSongPos() bool {
	if d.run == runStopped {
		return false
	}
	maps := d.node.Maps
	ms := d.songMs()
	tick := maps.MsToTick(ms)
	if d.node.Looping() {
		start := float64(d.node.FirstTickInLoop)
		length := float64(d.node.LoopLengthTicks)
		if tick >= start+length {
			tick = start + math.Mod(tick-start, length)
			d.reanchor(maps.TickToMs(tick))
		}
	}
	p := clockPoint{tempoMapTick: tick, localTick: tick}
	d.tb.update(d.node, p, p, d.speed, d.run == runRunning, d.now())
	return true
}
