// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplogapply

import (
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/util/envutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/humanizeutil"
	"github.com/cockroachdb/redact"
)

var (
	defaultMaxOps   = envutil.EnvOrDefaultInt("OPLOGREPL_APPLY_BATCH_OPS", 5000)
	defaultMaxBytes = envutil.EnvOrDefaultBytes("OPLOGREPL_APPLY_BATCH_BYTES", 100<<20 /* 100 MiB */)
)

// BatchLimits bounds a single applier batch.
type BatchLimits struct {
	// MaxBytes bounds the total SizeBytes of a batch. A single entry
	// larger than MaxBytes is still returned alone, so assembly always
	// makes progress.
	MaxBytes int64
	// MaxOps bounds the number of entries in a batch.
	MaxOps int
}

// DefaultLimits returns the batch limits embedders use unless they
// configure their own.
func DefaultLimits() BatchLimits {
	return BatchLimits{MaxBytes: defaultMaxBytes, MaxOps: defaultMaxOps}
}

func (l BatchLimits) String() string {
	return redact.StringWithoutMarkers(l)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (l BatchLimits) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("ops=%d bytes=%s", redact.Safe(l.MaxOps), humanizeutil.IBytes(l.MaxBytes))
}

var _ redact.SafeFormatter = BatchLimits{}

// Batch is an ordered run of entries applied as a unit.
type Batch struct {
	// Entries holds the batch's entries in stream order.
	Entries []oplog.Entry
	// ByteSize is the sum of the entries' SizeBytes.
	ByteSize int64
}

func (b *Batch) append(e oplog.Entry) {
	b.Entries = append(b.Entries, e)
	b.ByteSize += e.SizeBytes()
}

// Len returns the number of entries in the batch.
func (b Batch) Len() int {
	return len(b.Entries)
}

// Empty returns whether the batch holds no entries.
func (b Batch) Empty() bool {
	return len(b.Entries) == 0
}

// LastOpTime returns the position of the batch's final entry, which
// becomes the applied watermark once the batch lands. Zero for an empty
// batch.
func (b Batch) LastOpTime() oplog.OpTime {
	if len(b.Entries) == 0 {
		return oplog.OpTime{}
	}
	return b.Entries[len(b.Entries)-1].OpTime
}
