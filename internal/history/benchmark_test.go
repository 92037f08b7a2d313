package history

import "testing"

func BenchmarkQueuePush(b *testing.B) {
	q := NewQueue[PositionRecord](DefaultCapacity)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		w := q.NextWriteSlot()
		r := w.Value()
		r.SampleCount = int64(i)
		r.UpToTick = int32(i)
		w.Release()
	}
}

func BenchmarkQueuePushConsume(b *testing.B) {
	q := NewQueue[PositionRecord](DefaultCapacity)
	c := q.NewReadCursor()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		q.Push(PositionRecord{SampleCount: int64(i)})
		_, _ = c.ConsumeNext()
	}
}
