package musicclock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRefreshesRegisteredClocks(t *testing.T) {
	s := NewScheduler(nil)
	running, mt := newWallClock(t)
	stopped, _ := newWallClock(t)
	running.Start(false)

	a := s.Register(running)
	b := s.Register(stopped)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, a, s.order[0])

	mt.Advance(time.Second)
	assert.Equal(t, 1, s.Tick())
	assert.InDelta(t, 1920, running.CurrentSongPos(TimebaseAudioRender).Tick, 1e-9)

	stopped.Start(false)
	assert.Equal(t, 2, s.Tick())

	require.True(t, s.Unregister(a))
	assert.False(t, s.Unregister(a))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Tick())
	assert.Equal(t, uint64(3), s.Frames())
}

func TestSchedulerRunStopsWithContext(t *testing.T) {
	s := NewScheduler(nil)
	c, _ := newWallClock(t)
	c.Start(false)
	s.Register(c)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, s.Frames())
	assert.True(t, c.Snapshot(TimebaseAudioRender).Valid)
}
