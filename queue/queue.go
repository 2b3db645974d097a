// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

// Package queue provides a thread-safe, unbounded, insertion-ordered FIFO.
//
// A Queue is the sole hand-off point between a network loop and the
// application code that owns it: the loop is the only producer, the owner is
// the only consumer, and no other state is shared between them.
package queue

import (
	"sync"

	"github.com/creachadair/mds/mlink"
)

// A Queue is an unbounded FIFO of values, safe for concurrent use.
// Values are drained in the order they were added.
type Queue[T any] struct {
	mu   sync.Mutex
	list *mlink.Queue[T]
}

// New constructs a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{list: mlink.NewQueue[T]()}
}

// Add appends v to the tail of the queue.
func (q *Queue[T]) Add(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list.Add(v)
}

// Drain removes and returns all values currently in the queue, oldest first.
// It never blocks; if the queue is empty it returns nil.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.list.IsEmpty() {
		return nil
	}
	out := make([]T, 0, q.list.Len())
	for {
		v, ok := q.list.Pop()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Len reports the number of values currently in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// Clear discards all values currently in the queue.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list.Clear()
}
