// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package oplog defines the model for replicated operation log entries:
// the entry itself, its position (OpTime), its target namespace, and the
// classification helpers that batch assembly relies on.
package oplog

import (
	"time"

	"github.com/cockroachdb/redact"
)

// OpType is the kind of operation an entry carries.
type OpType uint8

const (
	// Insert writes a new document.
	Insert OpType = iota
	// Update modifies an existing document.
	Update
	// Delete removes a document.
	Delete
	// Command runs a database command. Multi-statement transaction
	// apply commands and transaction-commit markers are commands.
	Command
)

func (t OpType) String() string {
	switch t {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	case Command:
		return "command"
	default:
		return "unknown"
	}
}

// SafeValue implements the redact.SafeValue interface.
func (t OpType) SafeValue() {}

// entryOverheadBytes approximates the fixed per-entry cost beyond the
// payload: the position, the namespace, the flags, and the wall-clock
// hint. It keeps zero-payload entries from being free under byte-based
// accounting.
const entryOverheadBytes = 64

// Entry is one replicated operation. Entries arrive from the upstream
// feeder in strictly increasing OpTime order; the payload is opaque to
// the application engine.
type Entry struct {
	// OpTime is the entry's position in the log.
	OpTime OpTime
	// NS is the namespace the operation targets.
	NS Namespace
	// Op is the operation kind.
	Op OpType
	// Payload is the opaque operation body.
	Payload []byte
	// Prepared is set when the entry belongs to a prepared
	// multi-statement transaction.
	Prepared bool
	// CommitMarker is set on transaction-commit markers. Only
	// meaningful for Command entries.
	CommitMarker bool
	// WallTime is the wall-clock hint stamped by the primary.
	WallTime time.Time
}

// SizeBytes returns the entry's size for buffer and batch byte
// accounting: the payload length plus a fixed per-entry overhead.
func (e Entry) SizeBytes() int64 {
	return int64(len(e.Payload)) + entryOverheadBytes
}

// IsCommand returns whether the entry is a command.
func (e Entry) IsCommand() bool {
	return e.Op == Command
}

// IsPreparedCommand returns whether the entry is a command belonging to
// a prepared transaction. This covers both the multi-statement apply
// command of a prepared transaction and the prepared commit marker.
func (e Entry) IsPreparedCommand() bool {
	return e.Op == Command && e.Prepared
}

// RequiresOwnBatch returns whether the entry must be applied in a batch
// of its own. Prepared transaction commands interact with the
// transaction table and cannot share oplog application with other
// writes; view-definition and server-configuration writes take
// database-wide effect and are likewise isolated. Unprepared
// multi-statement commands and unprepared commit markers group freely.
func (e Entry) RequiresOwnBatch() bool {
	return e.IsPreparedCommand() || e.NS.RequiresOwnBatch()
}

func (e Entry) String() string {
	return redact.StringWithoutMarkers(e)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (e Entry) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s %s at %s", e.Op, e.NS, e.OpTime)
	if e.Prepared {
		w.SafeString(" (prepared)")
	}
	if e.CommitMarker {
		w.SafeString(" (commit)")
	}
}

var _ redact.SafeFormatter = Entry{}
