// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package oplogbuffer provides the ordered, size-accounted buffer that
// stages replicated operation log entries between the upstream feeder
// and the apply loop. Producers push in log order; the single consumer
// drains from the front. Closing the buffer marks end-of-stream while
// leaving already buffered entries poppable.
package oplogbuffer

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/util/envutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/queue"
	"github.com/cockroachdb/oplogrepl/pkg/util/syncutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
)

var (
	// ErrBufferClosed is returned by Push when the buffer has been
	// closed.
	ErrBufferClosed = errors.New("oplog buffer closed")

	// ErrEndOfStream is returned by reads once the buffer is closed and
	// all buffered entries have been drained.
	ErrEndOfStream = errors.New("end of oplog stream")

	// ErrWaitExpired is returned by WaitForData when the timeout
	// elapses before an entry arrives. The stream itself may still be
	// open.
	ErrWaitExpired = errors.New("timed out waiting for oplog data")
)

// DefaultMaxSizeBytes is the buffer capacity embedders use unless they
// configure their own.
var DefaultMaxSizeBytes = envutil.EnvOrDefaultBytes("OPLOGREPL_BUFFER_MAX_BYTES", 256<<20 /* 256 MiB */)

// Config configures a Buffer.
type Config struct {
	// MaxSizeBytes bounds the total SizeBytes of buffered entries.
	// Zero means unbounded. Push blocks while a bounded buffer is
	// full.
	MaxSizeBytes int64
}

// Buffer is a FIFO of oplog entries with byte-size accounting. It
// supports multiple concurrent producers and a single consumer. All
// blocking operations are interruptible by ctx cancellation and by
// Close.
type Buffer struct {
	maxSizeBytes int64

	mu struct {
		syncutil.Mutex
		entries   *queue.Queue[oplog.Entry]
		len       int
		sizeBytes int64
		closed    bool
		// dataCh and spaceCh are broadcast channels, lazily allocated
		// when a waiter needs one and closed (then cleared) when the
		// awaited condition may have changed.
		dataCh  chan struct{}
		spaceCh chan struct{}
	}
}

// New returns an empty Buffer.
func New(cfg Config) *Buffer {
	q, err := queue.NewQueue[oplog.Entry]()
	if err != nil {
		// NewQueue only fails on invalid options and none are passed.
		panic(err)
	}
	b := &Buffer{maxSizeBytes: cfg.MaxSizeBytes}
	b.mu.entries = q
	return b
}

// Push appends the given entries, in order, to the back of the buffer.
// A multi-entry call is atomic: its entries are never interleaved with
// those of other producers. If the buffer is bounded and the entries do
// not fit, Push blocks until space frees up. It returns ErrBufferClosed
// if the buffer is or becomes closed, or ctx.Err() on cancellation.
func (b *Buffer) Push(ctx context.Context, entries ...oplog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var addBytes int64
	for i := range entries {
		addBytes += entries[i].SizeBytes()
	}

	b.mu.Lock()
	for {
		if b.mu.closed {
			b.mu.Unlock()
			return ErrBufferClosed
		}
		if b.fitsLocked(addBytes) {
			break
		}
		ch := b.spaceChLocked()
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		b.mu.Lock()
	}
	for i := range entries {
		b.mu.entries.Enqueue(entries[i])
	}
	b.mu.len += len(entries)
	b.mu.sizeBytes += addBytes
	b.notifyDataLocked()
	b.mu.Unlock()
	return nil
}

// fitsLocked returns whether addBytes more can be admitted. An empty
// buffer admits any push regardless of size so that a single push
// larger than the whole capacity still makes progress.
func (b *Buffer) fitsLocked(addBytes int64) bool {
	b.mu.AssertHeld()
	if b.maxSizeBytes == 0 || b.mu.len == 0 {
		return true
	}
	return b.mu.sizeBytes+addBytes <= b.maxSizeBytes
}

// PeekFront returns the entry at the front of the buffer without
// removing it. ok is false if the buffer is empty.
func (b *Buffer) PeekFront() (e oplog.Entry, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mu.entries.PeekFront()
}

// PopFront removes and returns the entry at the front of the buffer,
// blocking while the buffer is empty and open. It returns
// ErrEndOfStream once the buffer is closed and drained, or ctx.Err() on
// cancellation.
func (b *Buffer) PopFront(ctx context.Context) (oplog.Entry, error) {
	b.mu.Lock()
	for {
		if e, ok := b.mu.entries.Dequeue(); ok {
			b.mu.len--
			b.mu.sizeBytes -= e.SizeBytes()
			b.notifySpaceLocked()
			b.mu.Unlock()
			return e, nil
		}
		if b.mu.closed {
			b.mu.Unlock()
			return oplog.Entry{}, ErrEndOfStream
		}
		ch := b.dataChLocked()
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return oplog.Entry{}, ctx.Err()
		}
		b.mu.Lock()
	}
}

// WaitForData blocks until an entry is available (nil), the buffer is
// closed and empty (ErrEndOfStream), the timeout elapses
// (ErrWaitExpired), or ctx is canceled (ctx.Err()). A nil return
// guarantees a subsequent PeekFront observes an entry, provided no
// other consumer pops it first.
func (b *Buffer) WaitForData(ctx context.Context, timeout time.Duration) error {
	var timer timeutil.Timer
	defer timer.Stop()
	timer.Reset(timeout)

	b.mu.Lock()
	for {
		if b.mu.len > 0 {
			b.mu.Unlock()
			return nil
		}
		if b.mu.closed {
			b.mu.Unlock()
			return ErrEndOfStream
		}
		ch := b.dataChLocked()
		b.mu.Unlock()
		select {
		case <-ch:
		case <-timer.C:
			timer.Read = true
			return ErrWaitExpired
		case <-ctx.Done():
			return ctx.Err()
		}
		b.mu.Lock()
	}
}

// Close marks the end of the stream and wakes all blocked producers and
// consumers. Entries already buffered remain poppable. Close is
// idempotent.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mu.closed {
		return
	}
	b.mu.closed = true
	b.notifyDataLocked()
	b.notifySpaceLocked()
}

// SizeBytes returns the total SizeBytes of buffered entries.
func (b *Buffer) SizeBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mu.sizeBytes
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mu.len
}

// Empty returns whether the buffer holds no entries.
func (b *Buffer) Empty() bool {
	return b.Len() == 0
}

// Closed returns whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mu.closed
}

// MaxSizeBytes returns the configured capacity, zero if unbounded.
func (b *Buffer) MaxSizeBytes() int64 {
	return b.maxSizeBytes
}

func (b *Buffer) dataChLocked() chan struct{} {
	b.mu.AssertHeld()
	if b.mu.dataCh == nil {
		b.mu.dataCh = make(chan struct{})
	}
	return b.mu.dataCh
}

func (b *Buffer) notifyDataLocked() {
	if b.mu.dataCh != nil {
		close(b.mu.dataCh)
		b.mu.dataCh = nil
	}
}

func (b *Buffer) spaceChLocked() chan struct{} {
	b.mu.AssertHeld()
	if b.mu.spaceCh == nil {
		b.mu.spaceCh = make(chan struct{})
	}
	return b.mu.spaceCh
}

func (b *Buffer) notifySpaceLocked() {
	if b.mu.spaceCh != nil {
		close(b.mu.spaceCh)
		b.mu.spaceCh = nil
	}
}
