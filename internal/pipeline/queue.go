package pipeline

import (
	"context"
	"sync"
)

// Queue is an unbounded in-memory FIFO of image ids. An id that is already
// waiting or being processed is not queued a second time.
type Queue struct {
	mu       sync.Mutex
	items    []int64
	queued   map[int64]struct{}
	inFlight map[int64]struct{}
	notify   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		queued:   make(map[int64]struct{}),
		inFlight: make(map[int64]struct{}),
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue appends id and reports whether it was added.
func (q *Queue) Enqueue(id int64) bool {
	q.mu.Lock()
	if _, ok := q.queued[id]; ok {
		q.mu.Unlock()
		return false
	}
	if _, ok := q.inFlight[id]; ok {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, id)
	q.queued[id] = struct{}{}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue blocks until an id is available or ctx is done. The returned id is
// marked in flight until Done is called.
func (q *Queue) Dequeue(ctx context.Context) (int64, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = 0
			q.items = q.items[1:]
			delete(q.queued, id)
			q.inFlight[id] = struct{}{}
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// keep the wake-up pending for the next caller
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-q.notify:
		}
	}
}

// Done releases the in-flight mark for id.
func (q *Queue) Done(id int64) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

// Len is the number of waiting ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Idle reports whether nothing is waiting and nothing is in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && len(q.inFlight) == 0
}
