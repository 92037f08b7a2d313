package musicclock

import (
	"log/slog"
	"sync"

	"github.com/cbegin/musicclock-go/internal/clock"
	"github.com/cbegin/musicclock-go/internal/history"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

type (
	Timebase            = clock.Timebase
	SongPos             = clock.SongPos
	Settings            = clock.Settings
	TimeSource          = clock.TimeSource
	ManualTime          = clock.ManualTime
	DriveMethod         = clock.DriveMethod
	SongPositionHistory = history.SongPositionHistory
)

const (
	TimebaseRawAudioRender   = clock.TimebaseRawAudioRender
	TimebaseAudioRender      = clock.TimebaseAudioRender
	TimebasePlayerExperience = clock.TimebasePlayerExperience
	TimebaseVideoRender      = clock.TimebaseVideoRender
	NumTimebases             = clock.NumTimebases
)

func NewSongPositionHistory(sampleRate, capacity int, maps songmap.Evaluator) *SongPositionHistory {
	return history.NewSongPositionHistory(sampleRate, capacity, maps)
}

func DefaultSettings() Settings { return clock.DefaultSettings() }

func ParseTimebase(s string) (Timebase, error) { return clock.ParseTimebase(s) }

// State is the facade's run state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	}
	return "stopped"
}

// EventKind identifies what changed between two refreshes.
type EventKind int

const (
	EventBar EventKind = iota
	EventBeat
	EventSection
	EventSeek
	EventLoop
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventBar:
		return "bar"
	case EventBeat:
		return "beat"
	case EventSection:
		return "section"
	case EventSeek:
		return "seek"
	case EventLoop:
		return "loop"
	case EventStateChanged:
		return "state"
	}
	return "unknown"
}

// Event carries clock notifications from Watch().
type Event struct {
	Kind     EventKind
	Timebase Timebase
	Pos      SongPos
	State    State
}

type ClockOption func(*clockConfig)

type clockConfig struct {
	settings      Settings
	now           TimeSource
	logger        *slog.Logger
	eventTimebase Timebase
}

func defaultClockConfig() clockConfig {
	return clockConfig{
		settings:      clock.DefaultSettings(),
		logger:        slog.Default(),
		eventTimebase: TimebasePlayerExperience,
	}
}

func WithSettings(s Settings) ClockOption {
	return func(cfg *clockConfig) {
		cfg.settings = s
	}
}

// WithTimeSource replaces the system monotonic clock, for simulations.
func WithTimeSource(now TimeSource) ClockOption {
	return func(cfg *clockConfig) {
		cfg.now = now
	}
}

func WithLogger(l *slog.Logger) ClockOption {
	return func(cfg *clockConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithEventTimebase selects the timebase whose bar, beat and section changes
// are broadcast. Seeks and loops are broadcast for every timebase.
func WithEventTimebase(tb Timebase) ClockOption {
	return func(cfg *clockConfig) {
		if tb.Valid() {
			cfg.eventTimebase = tb
		}
	}
}

// Clock owns one driver and answers position queries from the positions it
// resolved on the last Refresh.
type Clock struct {
	mu     sync.Mutex
	cfg    clockConfig
	state  State
	driver clock.Driver

	eventCh   chan Event
	eventChMu sync.Mutex
}

func NewClock(opts ...ClockOption) *Clock {
	cfg := defaultClockConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.now == nil {
		cfg.now = clock.SystemTime()
	}
	return &Clock{cfg: cfg}
}

// ConnectToHistory drives the clock from a render history. A nil history
// disconnects and returns false.
func (c *Clock) ConnectToHistory(h *SongPositionHistory) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		c.disconnectLocked()
		return false
	}
	if d, ok := c.driver.(*clock.AudioRenderDriver); ok {
		d.SetHistory(h)
		c.resumeLocked(d)
		return true
	}
	c.disconnectLocked()
	d := clock.NewAudioRenderDriver(h, c.cfg.now, c.cfg.settings, c.cfg.logger)
	c.driver = d
	c.resumeLocked(d)
	return true
}

// ConnectToWallClock drives the clock from the time source against fixed
// maps. Nil maps fall back to 120 bpm 4/4.
func (c *Clock) ConnectToWallClock(maps songmap.Evaluator) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
	if maps == nil {
		c.cfg.logger.Warn("wall clock connected without song maps; using defaults")
	}
	d := clock.NewWallClockDriver(maps, c.cfg.now, c.cfg.settings)
	c.driver = d
	c.resumeLocked(d)
	return true
}

func (c *Clock) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

func (c *Clock) disconnectLocked() {
	if c.driver == nil {
		return
	}
	if d, ok := c.driver.(*clock.AudioRenderDriver); ok {
		d.SetHistory(nil)
	}
	c.driver.Stop()
	c.driver = nil
}

// resumeLocked brings a freshly connected driver to the facade's state.
func (c *Clock) resumeLocked(d clock.Driver) {
	switch c.state {
	case StateRunning:
		d.Start()
	case StatePaused:
		d.Start()
		d.Pause()
	}
}

// Driver returns the connected driver, or nil.
func (c *Clock) Driver() clock.Driver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver
}

func (c *Clock) DriveMethod() (DriveMethod, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return 0, false
	}
	return c.driver.Method(), true
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start runs the clock. While running it does nothing unless reset is set,
// in which case the driver is torn down and started again.
func (c *Clock) Start(reset bool) {
	c.mu.Lock()
	prev := c.state
	switch {
	case prev == StateRunning && !reset:
		c.mu.Unlock()
		return
	case prev == StatePaused && !reset:
		if c.driver != nil {
			c.driver.Continue()
		}
	default:
		if c.driver != nil {
			c.driver.Stop()
			c.driver.Start()
		}
	}
	c.state = StateRunning
	c.mu.Unlock()
	if prev != StateRunning {
		c.sendEvent(Event{Kind: EventStateChanged, State: StateRunning})
	}
}

func (c *Clock) Pause() {
	c.setState(StateRunning, StatePaused, func(d clock.Driver) { d.Pause() })
}

func (c *Clock) Continue() {
	c.setState(StatePaused, StateRunning, func(d clock.Driver) { d.Continue() })
}

func (c *Clock) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	if c.driver != nil {
		c.driver.Stop()
	}
	c.state = StateStopped
	c.mu.Unlock()
	c.sendEvent(Event{Kind: EventStateChanged, State: StateStopped})
}

func (c *Clock) setState(from, to State, apply func(clock.Driver)) {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return
	}
	if c.driver != nil {
		apply(c.driver)
	}
	c.state = to
	c.mu.Unlock()
	c.sendEvent(Event{Kind: EventStateChanged, State: to})
}

// Refresh advances every timebase once; call it once per game frame. It
// reports whether positions were updated this frame.
func (c *Clock) Refresh() bool {
	c.mu.Lock()
	if c.state != StateRunning || c.driver == nil {
		c.mu.Unlock()
		return false
	}
	if !c.driver.RefreshCurrentSongPos() {
		c.mu.Unlock()
		return false
	}
	events := c.collectEventsLocked()
	c.mu.Unlock()
	for _, ev := range events {
		c.sendEvent(ev)
	}
	return true
}

func (c *Clock) collectEventsLocked() []Event {
	var events []Event
	for tb := Timebase(0); tb < NumTimebases; tb++ {
		st := c.driver.State(tb)
		if st.Seeked {
			events = append(events, Event{Kind: EventSeek, Timebase: tb, Pos: st.Current, State: c.state})
		}
		if st.Looped {
			events = append(events, Event{Kind: EventLoop, Timebase: tb, Pos: st.Current, State: c.state})
		}
	}
	tb := c.cfg.eventTimebase
	st := c.driver.State(tb)
	cur, prev := st.Current, st.Previous
	if cur.Bar != prev.Bar {
		events = append(events, Event{Kind: EventBar, Timebase: tb, Pos: cur, State: c.state})
	}
	if cur.Bar != prev.Bar || cur.WholeBeat() != prev.WholeBeat() {
		events = append(events, Event{Kind: EventBeat, Timebase: tb, Pos: cur, State: c.state})
	}
	if cur.SectionIndex != prev.SectionIndex {
		events = append(events, Event{Kind: EventSection, Timebase: tb, Pos: cur, State: c.state})
	}
	return events
}

func (c *Clock) sendEvent(ev Event) {
	c.eventChMu.Lock()
	ch := c.eventCh
	c.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// Watch returns a channel that receives clock events, sent from Refresh and
// the state transitions. The channel is buffered (cap 64) and events are
// dropped when it is full. Only the most recent Watch() channel receives
// events.
func (c *Clock) Watch() <-chan Event {
	ch := make(chan Event, 64)
	c.eventChMu.Lock()
	c.eventCh = ch
	c.eventChMu.Unlock()
	return ch
}

func (c *Clock) timebaseState(tb Timebase) (clock.TimebaseState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		if !tb.Valid() {
			panic("musicclock: invalid timebase " + tb.String())
		}
		return clock.TimebaseState{}, false
	}
	return *c.driver.State(tb), true
}

// CurrentSongPos is the position resolved on the last refresh. It panics on
// an invalid timebase.
func (c *Clock) CurrentSongPos(tb Timebase) SongPos {
	st, _ := c.timebaseState(tb)
	return st.Current
}

func (c *Clock) PreviousSongPos(tb Timebase) SongPos {
	st, _ := c.timebaseState(tb)
	return st.Previous
}

func (c *Clock) SeekedThisFrame(tb Timebase) bool {
	st, _ := c.timebaseState(tb)
	return st.Seeked
}

func (c *Clock) LoopedThisFrame(tb Timebase) bool {
	st, _ := c.timebaseState(tb)
	return st.Looped
}

// SongMaps is the evaluator the driver currently resolves against, or nil
// when disconnected.
func (c *Clock) SongMaps() songmap.Evaluator {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return nil
	}
	return c.driver.SongMapEvaluator()
}

// Snapshot is one timebase's view of the last refresh.
type Snapshot struct {
	Timebase string  `json:"timebase"`
	Valid    bool    `json:"valid"`
	Current  SongPos `json:"current"`
	Previous SongPos `json:"previous"`
	Seeked   bool    `json:"seeked"`
	Looped   bool    `json:"looped"`
}

func (c *Clock) Snapshot(tb Timebase) Snapshot {
	st, _ := c.timebaseState(tb)
	return Snapshot{
		Timebase: tb.String(),
		Valid:    st.Valid(),
		Current:  st.Current,
		Previous: st.Previous,
		Seeked:   st.Seeked,
		Looped:   st.Looped,
	}
}

// Diagnostics exposes the control loop of an audio render driver.
type Diagnostics struct {
	Method          string  `json:"method"`
	State           string  `json:"state"`
	Synced          bool    `json:"synced"`
	SyncSpeed       float64 `json:"syncSpeed"`
	LastError       float64 `json:"lastError"`
	TrackedMinError float64 `json:"trackedMinError"`
	LagSeconds      float64 `json:"lagSeconds"`
	Snaps           int     `json:"snaps"`
	DeferredFrames  int     `json:"deferredFrames"`
	Overruns        int     `json:"overruns"`
}

func (c *Clock) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	diag := Diagnostics{Method: "none", State: c.state.String()}
	if c.driver == nil {
		return diag
	}
	diag.Method = c.driver.Method().String()
	if d, ok := c.driver.(*clock.AudioRenderDriver); ok {
		diag.Synced = d.Synced()
		diag.SyncSpeed = d.SyncSpeed()
		diag.LastError = d.LastError()
		diag.TrackedMinError = d.TrackedMinError()
		diag.LagSeconds = d.LagSeconds()
		diag.Snaps = d.Snaps()
		diag.DeferredFrames = d.DeferredFrames()
		diag.Overruns = d.Overruns()
	}
	return diag
}
