package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorOnlySeesWritesAfterCreation(t *testing.T) {
	q := NewQueue[PositionRecord](100)
	for i := 0; i < 150; i++ {
		q.Push(PositionRecord{SampleCount: int64(i)})
	}
	c := q.NewReadCursor()
	assert.Equal(t, 0, c.NumDataAvailable())
	_, ok := c.ConsumeNext()
	assert.False(t, ok)

	q.Push(PositionRecord{SampleCount: 150})
	require.Equal(t, 1, c.NumDataAvailable())
	rec, ok := c.ConsumeNext()
	require.True(t, ok)
	assert.Equal(t, int64(150), rec.SampleCount)
	assert.False(t, c.DiscontinuityDetectedInLastRead())
}

func TestConsumeInProducerOrder(t *testing.T) {
	q := NewQueue[PositionRecord](8)
	c := q.NewReadCursor()
	for i := 0; i < 5; i++ {
		q.Push(PositionRecord{SampleCount: int64(i * 64), UpToTick: int32(i * 10)})
	}
	assert.Equal(t, 5, c.NumDataAvailable())

	last := int64(-1)
	for {
		rec, ok := c.ConsumeNext()
		if !ok {
			break
		}
		assert.GreaterOrEqual(t, rec.SampleCount, last)
		assert.False(t, c.DiscontinuityDetectedInLastRead())
		last = rec.SampleCount
	}
	assert.Equal(t, int64(256), last)
}

func TestOverrunSetsDiscontinuityAndResyncs(t *testing.T) {
	q := NewQueue[PositionRecord](4)
	c := q.NewReadCursor()
	for i := 0; i < 10; i++ {
		q.Push(PositionRecord{SampleCount: int64(i), UpToTick: int32(i), TempoMapTick: int32(i)})
	}
	assert.Equal(t, 4, c.NumDataAvailable())

	rec, ok := c.ConsumeNext()
	require.True(t, ok)
	assert.True(t, c.DiscontinuityDetectedInLastRead())
	// Slot 0 now holds write 8; every field must come from that one write.
	assert.Equal(t, int64(8), rec.SampleCount)
	assert.Equal(t, int32(8), rec.UpToTick)
	assert.Equal(t, int32(8), rec.TempoMapTick)

	rec, ok = c.ConsumeNext()
	require.True(t, ok)
	assert.False(t, c.DiscontinuityDetectedInLastRead())
	assert.Equal(t, int64(9), rec.SampleCount)

	_, ok = c.ConsumeNext()
	assert.False(t, ok)
}

func TestPeekDoesNotAdvance(t *testing.T) {
	q := NewQueue[int](8)
	c := q.NewReadCursor()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	v, ok := c.PeekNext()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = c.PeekAhead(2)
	require.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = c.PeekAhead(3)
	assert.False(t, ok)
	assert.Equal(t, 3, c.NumDataAvailable())

	latest, ok := q.PeekLatest()
	require.True(t, ok)
	assert.Equal(t, 3, latest)
}

func TestSkipToLatestKeepsNewest(t *testing.T) {
	q := NewQueue[int](16)
	c := q.NewReadCursor()
	for i := 0; i < 6; i++ {
		q.Push(i)
	}
	assert.Equal(t, 5, c.SkipToLatest())
	v, ok := c.ConsumeNext()
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, 0, c.SkipToLatest())
}

func TestSecondWriterPanics(t *testing.T) {
	q := NewQueue[int](4)
	w := q.NextWriteSlot()
	assert.Panics(t, func() { q.NextWriteSlot() })
	*w.Value() = 7
	w.Release()
	assert.NotPanics(t, func() { q.Push(8) })
	v, _ := q.PeekLatest()
	assert.Equal(t, 8, v)
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewQueue[int](0).Capacity())
}

// Readers racing a writer must never observe a record mixing two writes.
func TestConcurrentReadersNeverSeeTornRecords(t *testing.T) {
	q := NewQueue[PositionRecord](16)
	const writes = 20000
	const readers = 4

	cursors := make([]*ReadCursor[PositionRecord], readers)
	for i := range cursors {
		cursors[i] = q.NewReadCursor()
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	torn := make(chan PositionRecord, readers)
	for _, c := range cursors {
		wg.Add(1)
		go func(c *ReadCursor[PositionRecord]) {
			defer wg.Done()
			last := int64(-1)
			for {
				rec, ok := c.ConsumeNext()
				if !ok {
					select {
					case <-done:
						return
					default:
						continue
					}
				}
				if int64(rec.UpToTick) != rec.SampleCount || int64(rec.TempoMapTick) != rec.SampleCount || rec.SampleCount < last {
					torn <- rec
					return
				}
				last = rec.SampleCount
			}
		}(c)
	}

	for i := 0; i < writes; i++ {
		w := q.NextWriteSlot()
		r := w.Value()
		r.SampleCount = int64(i)
		r.UpToTick = int32(i)
		r.TempoMapTick = int32(i)
		w.Release()
	}
	close(done)
	wg.Wait()
	close(torn)
	for rec := range torn {
		t.Fatalf("torn or out-of-order record: %+v", rec)
	}
}
