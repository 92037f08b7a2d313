// Package history carries song position samples from the audio render
// goroutine to any number of clock readers without a shared lock.
package history

import (
	"runtime"
	"sync/atomic"
)

const DefaultCapacity = 100

type slot[T any] struct {
	busy   atomic.Bool
	serial uint64
	value  T
}

func (s *slot[T]) lock() {
	for !s.busy.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (s *slot[T]) unlock() {
	s.busy.Store(false)
}

// Queue is a fixed-capacity single-producer, multiple-consumer ring. Each
// slot is guarded by its own spin flag, held only while a value is copied in
// or out. Readers that fall more than a lap behind see a serial mismatch
// rather than a torn value.
type Queue[T any] struct {
	slots        []slot[T]
	written      atomic.Uint64
	writerActive atomic.Bool
}

func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{slots: make([]slot[T], capacity)}
}

func (q *Queue[T]) Capacity() int { return len(q.slots) }

// Written is the number of values committed since creation.
func (q *Queue[T]) Written() uint64 { return q.written.Load() }

func (q *Queue[T]) slotFor(serial uint64) *slot[T] {
	return &q.slots[serial%uint64(len(q.slots))]
}

// WriteRef holds the next slot locked until Release. The payload may hold a
// value from a previous lap; writers must overwrite every field.
type WriteRef[T any] struct {
	q      *Queue[T]
	s      *slot[T]
	serial uint64
}

// NextWriteSlot locks the next slot for writing. Only one write may be in
// flight; a second concurrent writer panics.
func (q *Queue[T]) NextWriteSlot() WriteRef[T] {
	if !q.writerActive.CompareAndSwap(false, true) {
		panic("history: second writer on a single-producer queue")
	}
	serial := q.written.Load()
	s := q.slotFor(serial)
	s.lock()
	return WriteRef[T]{q: q, s: s, serial: serial}
}

func (w WriteRef[T]) Value() *T { return &w.s.value }

// Release stamps the slot's serial number, publishes it and unlocks it.
func (w WriteRef[T]) Release() {
	w.s.serial = w.serial
	w.s.unlock()
	w.q.written.Store(w.serial + 1)
	w.q.writerActive.Store(false)
}

func (q *Queue[T]) Push(v T) {
	w := q.NextWriteSlot()
	*w.Value() = v
	w.Release()
}

func (q *Queue[T]) read(serial uint64) (T, uint64, bool) {
	if q.written.Load() <= serial {
		var zero T
		return zero, 0, false
	}
	s := q.slotFor(serial)
	s.lock()
	v, got := s.value, s.serial
	s.unlock()
	return v, got, true
}

// PeekLatest copies the most recently committed value.
func (q *Queue[T]) PeekLatest() (T, bool) {
	w := q.written.Load()
	if w == 0 {
		var zero T
		return zero, false
	}
	v, _, ok := q.read(w - 1)
	return v, ok
}

// ReadCursor is one reader's private position in a Queue. A cursor is not
// safe for concurrent use; create one per reader.
type ReadCursor[T any] struct {
	q             *Queue[T]
	next          uint64
	discontinuity bool
}

// NewReadCursor starts at the current write position: it sees only values
// written after its creation.
func (q *Queue[T]) NewReadCursor() *ReadCursor[T] {
	return &ReadCursor[T]{q: q, next: q.written.Load()}
}

// NextExpectedSerial is the serial number the next read should return.
func (c *ReadCursor[T]) NextExpectedSerial() uint64 { return c.next }

// DiscontinuityDetectedInLastRead reports whether the last read found the
// producer had lapped this cursor.
func (c *ReadCursor[T]) DiscontinuityDetectedInLastRead() bool { return c.discontinuity }

func (c *ReadCursor[T]) NumDataAvailable() int {
	w := c.q.written.Load()
	if w <= c.next {
		return 0
	}
	return int(min(w-c.next, uint64(len(c.q.slots))))
}

// ConsumeNext copies out the next value. After an overrun the cursor
// continues after whatever value the slot held.
func (c *ReadCursor[T]) ConsumeNext() (T, bool) {
	v, serial, ok := c.q.read(c.next)
	if !ok {
		c.discontinuity = false
		return v, false
	}
	c.discontinuity = serial != c.next
	c.next = serial + 1
	return v, true
}

func (c *ReadCursor[T]) PeekNext() (T, bool) {
	return c.PeekAhead(0)
}

func (c *ReadCursor[T]) PeekAhead(n int) (T, bool) {
	at := c.next + uint64(n)
	v, serial, ok := c.q.read(at)
	if !ok {
		c.discontinuity = false
		return v, false
	}
	c.discontinuity = serial != at
	return v, true
}

// SkipToLatest drops everything but the newest unread value.
func (c *ReadCursor[T]) SkipToLatest() int {
	w := c.q.written.Load()
	if w <= c.next+1 {
		return 0
	}
	skipped := int(w - 1 - c.next)
	c.next = w - 1
	return skipped
}

// MoveToEnd discards all unread values.
func (c *ReadCursor[T]) MoveToEnd() {
	c.next = c.q.written.Load()
	c.discontinuity = false
}
