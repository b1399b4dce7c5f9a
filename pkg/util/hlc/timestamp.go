// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package hlc

import (
	"strconv"
	"time"

	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
)

// Timestamp represents a state of a hybrid logical clock: a physical
// wall-clock reading in nanoseconds since the Unix epoch, extended with a
// logical counter that breaks ties between events captured within the same
// wall-clock tick. Timestamps are totally ordered; the zero value sorts
// before all others and doubles as "no timestamp".
type Timestamp struct {
	WallTime int64
	Logical  int32
}

// MinTimestamp is the lowest non-zero timestamp.
var MinTimestamp = Timestamp{WallTime: 0, Logical: 1}

// MaxTimestamp is the max value allowed for Timestamp.
var MaxTimestamp = Timestamp{WallTime: 1<<63 - 1, Logical: 1<<31 - 1}

// IsEmpty returns true if t is an empty Timestamp.
func (t Timestamp) IsEmpty() bool {
	return t == Timestamp{}
}

// IsSet returns true if t is not an empty Timestamp.
func (t Timestamp) IsSet() bool {
	return !t.IsEmpty()
}

// Less returns whether the receiver is less than the parameter.
func (t Timestamp) Less(s Timestamp) bool {
	return t.WallTime < s.WallTime || (t.WallTime == s.WallTime && t.Logical < s.Logical)
}

// LessEq returns whether the receiver is less than or equal to the parameter.
func (t Timestamp) LessEq(s Timestamp) bool {
	return t.WallTime < s.WallTime || (t.WallTime == s.WallTime && t.Logical <= s.Logical)
}

// Compare returns -1 if this timestamp is lesser than the given timestamp, 1
// if it is greater, and 0 if they are equal.
func (t Timestamp) Compare(s Timestamp) int {
	if t.WallTime > s.WallTime {
		return 1
	} else if t.WallTime < s.WallTime {
		return -1
	} else if t.Logical > s.Logical {
		return 1
	} else if t.Logical < s.Logical {
		return -1
	}
	return 0
}

// Next returns the timestamp with the next later timestamp.
func (t Timestamp) Next() Timestamp {
	if t.Logical == 1<<31-1 {
		if t.WallTime == 1<<63-1 {
			panic("cannot take the next value to a max timestamp")
		}
		return Timestamp{WallTime: t.WallTime + 1}
	}
	return Timestamp{WallTime: t.WallTime, Logical: t.Logical + 1}
}

// Prev returns the next earliest timestamp.
func (t Timestamp) Prev() Timestamp {
	if t.Logical > 0 {
		return Timestamp{WallTime: t.WallTime, Logical: t.Logical - 1}
	} else if t.WallTime > 0 {
		return Timestamp{WallTime: t.WallTime - 1, Logical: 1<<31 - 1}
	}
	panic("cannot take the previous value to a zero timestamp")
}

// GoTime converts the timestamp to a time.Time, dropping the logical
// component.
func (t Timestamp) GoTime() time.Time {
	return timeutil.Unix(0, t.WallTime)
}

// String implements the fmt.Stringer interface. The format is
// "<seconds>.<nanos>,<logical>", e.g. "1.000000002,5".
func (t Timestamp) String() string {
	buf := make([]byte, 0, 21)
	buf = strconv.AppendInt(buf, t.WallTime/1e9, 10)
	buf = append(buf, '.')
	// Pad the fractional nanoseconds to nine digits.
	frac := t.WallTime % 1e9
	if frac < 0 {
		frac = -frac
	}
	for digits := int64(1e8); digits > 0 && frac < digits; digits /= 10 {
		buf = append(buf, '0')
	}
	if frac > 0 {
		buf = strconv.AppendInt(buf, frac, 10)
	}
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(t.Logical), 10)
	return string(buf)
}

// SafeValue implements the redact.SafeValue interface.
func (Timestamp) SafeValue() {}
