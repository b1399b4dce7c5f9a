// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplogapply

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogbuffer"
)

// ErrInvalidLimits is returned by NextBatch when assembly is attempted
// with a zero ops or bytes limit against a non-empty source.
var ErrInvalidLimits = errors.New("invalid batch limits")

// EntrySource is the applier's read view of the oplog buffer.
// *oplogbuffer.Buffer implements it.
type EntrySource interface {
	// PeekFront returns the next entry without consuming it. ok is
	// false when the source is empty.
	PeekFront() (e oplog.Entry, ok bool)
	// PopFront consumes and returns the next entry, blocking while the
	// source is empty and open.
	PopFront(ctx context.Context) (oplog.Entry, error)
	// WaitForData blocks until an entry is available, the source
	// reaches end of stream, the timeout elapses, or ctx is canceled.
	WaitForData(ctx context.Context, timeout time.Duration) error
}

var _ EntrySource = (*oplogbuffer.Buffer)(nil)

// NextBatch assembles the next applier batch from the front of src. It
// never blocks: an empty source yields an empty batch and a nil error,
// whatever the limits say. Otherwise zero limits are rejected with
// ErrInvalidLimits.
//
// Entries are gathered in order until a limit is hit. An entry that
// must be applied in its own batch, a prepared transaction command or a
// write to a view-definitions or server-configuration namespace, first
// flushes whatever was gathered before it and is then returned as a
// singleton by the following call. An entry larger than MaxBytes on its
// own is still returned, alone, so assembly always makes progress.
//
// NextBatch assumes it is the only consumer of src. Every entry it pops
// lands in the returned batch.
func NextBatch(ctx context.Context, src EntrySource, limits BatchLimits) (Batch, error) {
	var batch Batch
	head, ok := src.PeekFront()
	if !ok {
		return batch, nil
	}
	if limits.MaxBytes == 0 || limits.MaxOps == 0 {
		return batch, errors.Wrapf(ErrInvalidLimits, "%s", limits)
	}
	for {
		if head.RequiresOwnBatch() {
			if batch.Empty() {
				e, err := src.PopFront(ctx)
				if err != nil {
					return batch, err
				}
				batch.append(e)
			}
			return batch, nil
		}
		if batch.Len() >= limits.MaxOps {
			return batch, nil
		}
		if !batch.Empty() && batch.ByteSize+head.SizeBytes() > limits.MaxBytes {
			return batch, nil
		}
		e, err := src.PopFront(ctx)
		if err != nil {
			// Unreachable with a single consumer: the preceding peek
			// guarantees an entry is present.
			return batch, err
		}
		batch.append(e)
		head, ok = src.PeekFront()
		if !ok {
			return batch, nil
		}
	}
}
