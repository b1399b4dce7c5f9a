// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package queue

import "github.com/cockroachdb/errors"

const defaultChunkSize = 128

// Queue is a FIFO queue implemented as a linked list of chunks to avoid the
// per-element allocations of a plain linked list and the copying of a
// resizable slice. Elements are appended to the tail chunk and consumed from
// the head chunk; fully consumed chunks are dropped eagerly so that the queue
// never retains a finished chunk.
//
// Queue is not safe for concurrent use.
type Queue[T any] struct {
	chunkSize int
	head      *queueChunk[T]
	tail      *queueChunk[T]
}

// Option is passed to NewQueue to configure the queue.
type Option[T any] func(*Queue[T]) error

// WithChunkSize returns an Option setting the number of elements per chunk.
// The size must be positive.
func WithChunkSize[T any](size int) Option[T] {
	return func(q *Queue[T]) error {
		if size <= 0 {
			return errors.Newf("invalid chunk size %d", size)
		}
		q.chunkSize = size
		return nil
	}
}

// NewQueue returns an empty Queue.
func NewQueue[T any](opts ...Option[T]) (*Queue[T], error) {
	q := &Queue[T]{chunkSize: defaultChunkSize}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Empty returns true if the queue holds no elements.
func (q *Queue[T]) Empty() bool {
	return q.head == nil || (q.head == q.tail && q.head.empty())
}

// Enqueue appends e to the back of the queue.
func (q *Queue[T]) Enqueue(e T) {
	if q.tail == nil {
		chunk := newQueueChunk[T](q.chunkSize)
		q.head, q.tail = chunk, chunk
	} else if q.tail.full() {
		chunk := newQueueChunk[T](q.chunkSize)
		q.tail.next = chunk
		q.tail = chunk
	}
	q.tail.enqueue(e)
}

// Dequeue removes the element at the front of the queue and returns it. If
// the queue is empty, returns a zero-valued T and false.
func (q *Queue[T]) Dequeue() (e T, ok bool) {
	if q.Empty() {
		return e, false
	}
	for {
		e, ok = q.head.dequeue()
		if ok {
			break
		}
		// The head chunk is exhausted but the queue is not empty, so a
		// successor chunk must exist.
		q.head = q.head.next
	}
	if q.head.finished() {
		if q.head == q.tail {
			q.head, q.tail = nil, nil
		} else {
			q.head = q.head.next
		}
	}
	return e, ok
}

// PeekFront returns the element at the front of the queue without removing
// it. If the queue is empty, returns a zero-valued T and false.
func (q *Queue[T]) PeekFront() (e T, ok bool) {
	if q.Empty() {
		return e, false
	}
	c := q.head
	for c.empty() {
		c = c.next
	}
	return c.events[c.head], true
}

type queueChunk[T any] struct {
	events     []T
	head, tail int
	next       *queueChunk[T]
}

func newQueueChunk[T any](size int) *queueChunk[T] {
	return &queueChunk[T]{events: make([]T, size)}
}

func (c *queueChunk[T]) enqueue(e T) {
	c.events[c.tail] = e
	c.tail++
}

func (c *queueChunk[T]) dequeue() (e T, ok bool) {
	if c.empty() {
		return e, false
	}
	e = c.events[c.head]
	// Clear the slot so the chunk does not pin the element.
	var zero T
	c.events[c.head] = zero
	c.head++
	return e, true
}

// empty returns true if the chunk holds no unconsumed elements.
func (c *queueChunk[T]) empty() bool {
	return c.head == c.tail
}

// full returns true if no more elements can be appended to the chunk.
func (c *queueChunk[T]) full() bool {
	return c.tail == len(c.events)
}

// finished returns true if all the chunk's slots have been consumed. A
// finished chunk can be dropped from the queue.
func (c *queueChunk[T]) finished() bool {
	return c.head == len(c.events)
}
