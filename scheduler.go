package musicclock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler refreshes a set of clocks once per frame, in registration order.
// Whoever owns the main loop owns the scheduler; there is no global one.
type Scheduler struct {
	mu     sync.Mutex
	order  []uuid.UUID
	clocks map[uuid.UUID]*Clock
	logger *slog.Logger
	frames uint64
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{clocks: map[uuid.UUID]*Clock{}, logger: logger}
}

// Register adds a clock and returns the id to unregister it with.
func (s *Scheduler) Register(c *Clock) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, id)
	s.clocks[id] = c
	s.logger.Debug("clock registered", "id", id, "clocks", len(s.order))
	return id
}

func (s *Scheduler) Unregister(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clocks[id]; !ok {
		return false
	}
	delete(s.clocks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Debug("clock unregistered", "id", id, "clocks", len(s.order))
	return true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Frames is the number of Tick calls so far.
func (s *Scheduler) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Tick refreshes every registered clock and returns how many updated.
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	clocks := make([]*Clock, 0, len(s.order))
	for _, id := range s.order {
		clocks = append(clocks, s.clocks[id])
	}
	s.frames++
	s.mu.Unlock()

	updated := 0
	for _, c := range clocks {
		if c.Refresh() {
			updated++
		}
	}
	return updated
}

// Run ticks at the given interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}
