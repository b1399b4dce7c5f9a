// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplog

import (
	"github.com/cockroachdb/oplogrepl/pkg/util/hlc"
	"github.com/cockroachdb/redact"
)

// OpTime is the position of an entry in the replicated operation log.
// Positions are totally ordered: first by Timestamp, then by Term. Term
// breaks ties between entries stamped by different primaries with the
// same clock reading.
type OpTime struct {
	Timestamp hlc.Timestamp
	Term      int64
}

// Compare returns -1 if this OpTime is ordered before other, +1 if it is
// ordered after, and 0 if the two are equal.
func (o OpTime) Compare(other OpTime) int {
	if c := o.Timestamp.Compare(other.Timestamp); c != 0 {
		return c
	}
	switch {
	case o.Term < other.Term:
		return -1
	case o.Term > other.Term:
		return +1
	default:
		return 0
	}
}

// Less returns whether this OpTime is ordered before other.
func (o OpTime) Less(other OpTime) bool {
	return o.Compare(other) < 0
}

// IsZero returns whether this is the zero position, ordered before every
// stamped position.
func (o OpTime) IsZero() bool {
	return o.Timestamp.IsEmpty() && o.Term == 0
}

func (o OpTime) String() string {
	return redact.StringWithoutMarkers(o)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (o OpTime) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s/%d", o.Timestamp, redact.Safe(o.Term))
}

var _ redact.SafeFormatter = OpTime{}
