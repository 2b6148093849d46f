package capture

import (
	"sync"
	"sync/atomic"
	"time"
)

// Queue is a single-slot, freshest-wins hand-off between the Source and the
// Pipeline. A frame that was not picked up before the next Put is dropped.
type Queue struct {
	slot    chan Frame
	putMu   sync.Mutex
	dropped atomic.Uint64
}

func NewQueue() *Queue {
	return &Queue{slot: make(chan Frame, 1)}
}

// Put stores f, replacing any frame still waiting. It never blocks.
func (q *Queue) Put(f Frame) {
	q.putMu.Lock()
	defer q.putMu.Unlock()

	select {
	case <-q.slot:
		q.dropped.Add(1)
	default:
	}
	q.slot <- f
}

// Get waits up to timeout for a frame. ok is false on timeout.
func (q *Queue) Get(timeout time.Duration) (Frame, bool) {
	select {
	case f := <-q.slot:
		return f, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.slot:
		return f, true
	case <-timer.C:
		return Frame{}, false
	}
}

// Len is 0 or 1.
func (q *Queue) Len() int {
	return len(q.slot)
}

// Dropped returns how many frames were replaced before pickup.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
