// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pqueue implements the priority-ordered, FIFO-within-priority work
// queue shared by the SRT sidecar pipeline and the MKV pipeline (spec.md
// §4.4 "Queue", §5 "Ordering guarantees"). It is built on container/heap:
// no dependency in the retrieved example pack supplies a priority queue, so
// this one concern is implemented on the standard library (see DESIGN.md).
package pqueue

import (
	"container/heap"
	"context"
	"sync"
)

type item[T any] struct {
	value    T
	priority int
	seq      int64
}

type innerHeap[T any] []*item[T]

func (h innerHeap[T]) Len() int { return len(h) }
func (h innerHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h innerHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *innerHeap[T]) Push(x any)   { *h = append(*h, x.(*item[T])) }
func (h *innerHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a thread-safe, priority-ordered FIFO-within-priority queue.
// Lower numeric priority is serviced first (spec.md "Priority 0 / 1").
type Queue[T any] struct {
	mu     sync.Mutex
	notify chan struct{}
	h      innerHeap[T]
	nextSeq int64
}

// New returns an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Push adds value at the given priority, preserving FIFO order among equal
// priorities via a monotonic insertion counter (spec.md §5).
func (q *Queue[T]) Push(value T, priority int) {
	q.mu.Lock()
	heap.Push(&q.h, &item[T]{value: value, priority: priority, seq: q.nextSeq})
	q.nextSeq++
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the current queue depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// TryPop removes and returns the highest-priority item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		var zero T
		return zero, false
	}
	it := heap.Pop(&q.h).(*item[T])
	return it.value, true
}

// Pop blocks until an item is available or ctx is done (the shutdown signal,
// per spec.md §5 "Suspension points... blocking dequeue with timeout").
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, true
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-q.notify:
		}
	}
}
