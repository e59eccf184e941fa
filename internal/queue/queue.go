// Package queue provides a bounded in-memory work queue with a single consumer.
package queue

import (
	"context"
	"fmt"
	"sync"
)

// OverflowPolicy decides what Enqueue does when the queue is full
type OverflowPolicy int

const (
	// DropOldest evicts the head to make room for the new item
	DropOldest OverflowPolicy = iota
	// RejectNew refuses the new item
	RejectNew
)

// ParseOverflowPolicy maps a configuration value to a policy
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop_oldest", "":
		return DropOldest, nil
	case "reject":
		return RejectNew, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Queue is a bounded FIFO. Producers never block; one consumer waits in Dequeue.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	size    int
	policy  OverflowPolicy
	dropped uint64
	notify  chan struct{}
	onDrop  func()
}

// New creates a queue holding at most capacity items
func New[T any](capacity int, policy OverflowPolicy) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items:  make([]T, capacity),
		policy: policy,
		notify: make(chan struct{}, 1),
	}
}

// OnDrop registers a hook called (outside the lock) each time an item is dropped
func (q *Queue[T]) OnDrop(fn func()) {
	q.mu.Lock()
	q.onDrop = fn
	q.mu.Unlock()
}

// Enqueue adds an item without blocking. It returns false when the item
// itself was refused; with DropOldest the new item is always accepted.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	accepted := true
	dropped := false

	if q.size == len(q.items) {
		dropped = true
		q.dropped++
		if q.policy == RejectNew {
			accepted = false
		} else {
			var zero T
			q.items[q.head] = zero
			q.head = (q.head + 1) % len(q.items)
			q.size--
		}
	}
	if accepted {
		q.items[(q.head+q.size)%len(q.items)] = item
		q.size++
	}
	onDrop := q.onDrop
	q.mu.Unlock()

	if dropped && onDrop != nil {
		onDrop()
	}
	if accepted {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return accepted
}

// TryDequeue removes the head item if there is one
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item, true
}

// Dequeue waits until an item is available or ctx is done.
// It returns false only when ctx ended first.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, bool) {
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, true
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-q.notify:
		}
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns how many items were lost to the overflow policy
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
