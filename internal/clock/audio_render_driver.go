package clock

import (
	"log/slog"

	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/numeric"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

const lagGrowth = 1.25

// AudioRenderDriver follows the render position recorded in a song
// position history. Positions trail the newest record by a look-behind lag
// so every frame interpolates between two real records.
type AudioRenderDriver struct {
	history  *history.SongPositionHistory
	cursor   *history.ReadCursor[history.PositionRecord]
	mapsCur  *history.SongMapCursor
	node     *history.SongMapChainNode
	fallback *history.SongMapChainNode

	now      TimeSource
	logger   *slog.Logger
	settings Settings
	sync     *syncController
	run      runState

	lagSeconds float64
	lower      history.PositionRecord
	haveLower  bool
	// floor is the last published smoothed sample position. The target
	// never goes behind it, so a re-anchor cannot run the clock backward.
	floor     float64
	haveFloor bool

	deferred int
	overruns int
	tb       timebases
}

var _ Driver = (*AudioRenderDriver)(nil)

func NewAudioRenderDriver(h *history.SongPositionHistory, now TimeSource, settings Settings, logger *slog.Logger) *AudioRenderDriver {
	if now == nil {
		now = SystemTime()
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings = settings.withDefaults()
	d := &AudioRenderDriver{
		fallback: history.NewSongMapChain(nil, 0, 0).Latest(),
		now:      now,
		logger:   logger,
		settings: settings,
		sync:     newSyncController(settings),
		tb:       timebases{settings: settings},
	}
	d.SetHistory(h)
	return d
}

func (d *AudioRenderDriver) Method() DriveMethod { return DriveAudioRender }

// SetHistory connects to a history, or disconnects with nil. Cached cursors
// are dropped either way.
func (d *AudioRenderDriver) SetHistory(h *history.SongPositionHistory) {
	d.history = h
	d.cursor, d.mapsCur = nil, nil
	d.node = d.fallback
	if h != nil {
		d.cursor = h.Queue().NewReadCursor()
		d.mapsCur = h.Maps().NewCursor()
		d.node, _ = d.mapsCur.Latest()
	}
	d.resetSmoothing()
}

func (d *AudioRenderDriver) History() *history.SongPositionHistory { return d.history }

func (d *AudioRenderDriver) resetSmoothing() {
	d.sync.reset()
	d.lagSeconds = d.settings.RenderSmoothingLagSeconds
	d.haveLower = false
	d.haveFloor = false
}

func (d *AudioRenderDriver) Start() {
	if d.run == runRunning {
		return
	}
	if d.run == runStopped {
		d.tb.reset()
		if d.cursor != nil {
			d.cursor.MoveToEnd()
		}
		d.resetSmoothing()
	}
	d.run = runRunning
}

func (d *AudioRenderDriver) Pause() {
	if d.run == runRunning {
		d.run = runPaused
	}
}

func (d *AudioRenderDriver) Continue() {
	if d.run != runPaused {
		return
	}
	d.sync.reset()
	d.run = runRunning
}

func (d *AudioRenderDriver) Stop() {
	d.run = runStopped
	d.tb.reset()
	d.resetSmoothing()
}

func (d *AudioRenderDriver) SongMapEvaluator() songmap.Evaluator { return d.node.Maps }

// LoopRegion is the loop published with the current maps.
func (d *AudioRenderDriver) LoopRegion() (firstTick, lengthTicks int) {
	return d.node.FirstTickInLoop, d.node.LoopLengthTicks
}

func (d *AudioRenderDriver) State(tb Timebase) *TimebaseState { return d.tb.state(tb) }

func (d *AudioRenderDriver) SyncSpeed() float64       { return d.sync.syncSpeed }
func (d *AudioRenderDriver) LastError() float64       { return d.sync.lastError }
func (d *AudioRenderDriver) TrackedMinError() float64 { return d.sync.tracker.Min() }
func (d *AudioRenderDriver) Synced() bool             { return d.sync.synced }
func (d *AudioRenderDriver) Snaps() int               { return d.sync.snaps }
func (d *AudioRenderDriver) LagSeconds() float64      { return d.lagSeconds }
func (d *AudioRenderDriver) DeferredFrames() int      { return d.deferred }
func (d *AudioRenderDriver) Overruns() int            { return d.overruns }

func (d *AudioRenderDriver) RefreshCurrentSongPos() bool {
	if d.run != runRunning || d.history == nil {
		return false
	}
	if node, changed := d.mapsCur.Latest(); changed {
		d.node = node
		d.logger.Debug("song maps changed", "loopStart", node.FirstTickInLoop, "loopLength", node.LoopLengthTicks)
	}
	latest, ok := d.history.Queue().PeekLatest()
	if !ok {
		d.deferred++
		return false
	}
	now := d.now()
	rate := d.history.SampleRate()
	raw := clockPoint{tempoMapTick: float64(latest.TempoMapTick), localTick: float64(latest.UpToTick)}

	if latest.TransportState != history.TransportPlaying {
		// Hold at the newest record. The next play re-anchors the epoch.
		d.sync.reset()
		d.cursor.MoveToEnd()
		d.lower, d.haveLower = latest, true
		d.floor, d.haveFloor = float64(latest.SampleCount), true
		d.tb.update(d.node, raw, raw, 0, false, now)
		return true
	}

	if d.sync.update(now, latest.SampleCount, rate) {
		d.logger.Debug("clock resynchronized", "error", d.sync.lastError, "samples", latest.SampleCount)
	}
	d.catchUp()

	target := d.sync.expectedSamples(rate) - d.lagSeconds*float64(rate)
	if d.haveFloor && target < d.floor {
		target = d.floor
	}
	pos, speed, ok := d.interpolate(target)
	if !ok {
		d.deferred++
		return false
	}
	d.floor, d.haveFloor = target, true
	d.tb.update(d.node, raw, pos, speed, true, now)
	return true
}

// catchUp drops all but the newest record when the reader has fallen most
// of a lap behind.
func (d *AudioRenderDriver) catchUp() {
	if d.cursor.NumDataAvailable() <= d.history.Queue().Capacity()*3/4 {
		return
	}
	skipped := d.cursor.SkipToLatest()
	d.haveLower = false
	d.logger.Debug("history reader catching up", "skipped", skipped)
}

// interpolate finds the records bracketing target and interpolates between
// them. It never crosses a seek or loop boundary.
func (d *AudioRenderDriver) interpolate(target float64) (clockPoint, float64, bool) {
	for {
		next, ok := d.cursor.PeekNext()
		if !ok {
			break
		}
		if float64(next.SampleCount) > target {
			if !d.haveLower {
				return clockPoint{}, 0, false
			}
			return d.between(target, next)
		}
		rec, _ := d.cursor.ConsumeNext()
		if d.cursor.DiscontinuityDetectedInLastRead() {
			d.overruns++
			d.logger.Debug("history overrun", "resumedAt", rec.SampleCount)
		}
		d.lower, d.haveLower = rec, true
	}
	// Target is past the newest record: look further behind from now on.
	grown := min(d.lagSeconds*lagGrowth, d.settings.MaxRenderSmoothingLagSeconds)
	if grown != d.lagSeconds {
		d.logger.Debug("smoothing lag grown", "lagSeconds", grown)
		d.lagSeconds = grown
	}
	return clockPoint{}, 0, false
}

func (d *AudioRenderDriver) between(target float64, upper history.PositionRecord) (clockPoint, float64, bool) {
	lo := d.lower
	if lo.Marker == history.MarkerLastPositionBeforeSeekLoop ||
		upper.Marker == history.MarkerFirstPositionAfterSeekLoop ||
		upper.SampleCount <= lo.SampleCount {
		return clockPoint{tempoMapTick: float64(lo.TempoMapTick), localTick: float64(lo.UpToTick)}, float64(lo.CurrentSpeed), true
	}
	alpha := numeric.Clamp((target-float64(lo.SampleCount))/float64(upper.SampleCount-lo.SampleCount), 0, 1)
	return clockPoint{
		tempoMapTick: numeric.Lerp(float64(lo.TempoMapTick), float64(upper.TempoMapTick), alpha),
		localTick:    numeric.Lerp(float64(lo.UpToTick), float64(upper.UpToTick), alpha),
	}, numeric.Lerp(float64(lo.CurrentSpeed), float64(upper.CurrentSpeed), alpha), true
}
