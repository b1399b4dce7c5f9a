// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplogstore

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/util/encoding"
	"github.com/cockroachdb/oplogrepl/pkg/util/hlc"
	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
)

// Keys are fixed-width, order-preserving encodings of the entry's
// OpTime, so that pebble's key order is oplog order: wall clock, then
// logical counter, then term.
const keyLen = 8 + 4 + 8

func encodeKey(b []byte, ot oplog.OpTime) []byte {
	b = encoding.EncodeUint64Ascending(b, uint64(ot.Timestamp.WallTime))
	b = encoding.EncodeUint32Ascending(b, uint32(ot.Timestamp.Logical))
	b = encoding.EncodeUint64Ascending(b, uint64(ot.Term))
	return b
}

func decodeKey(key []byte) (oplog.OpTime, error) {
	if len(key) != keyLen {
		return oplog.OpTime{}, errors.Errorf(
			"malformed oplog key: %d bytes, want %d", len(key), keyLen)
	}
	rem, wall, err := encoding.DecodeUint64Ascending(key)
	if err != nil {
		return oplog.OpTime{}, err
	}
	rem, logical, err := encoding.DecodeUint32Ascending(rem)
	if err != nil {
		return oplog.OpTime{}, err
	}
	_, term, err := encoding.DecodeUint64Ascending(rem)
	if err != nil {
		return oplog.OpTime{}, err
	}
	return oplog.OpTime{
		Timestamp: hlc.Timestamp{WallTime: int64(wall), Logical: int32(logical)},
		Term:      int64(term),
	}, nil
}

// entryVersion is the value format version. Bump it when the layout
// below changes.
const entryVersion = 1

const (
	flagPrepared = 1 << iota
	flagCommitMarker
)

// encodeValue encodes everything about the entry except its OpTime,
// which lives in the key.
func encodeValue(b []byte, e oplog.Entry) []byte {
	b = encoding.EncodeUvarintAscending(b, entryVersion)
	b = encoding.EncodeUvarintAscending(b, uint64(e.Op))
	var flags uint64
	if e.Prepared {
		flags |= flagPrepared
	}
	if e.CommitMarker {
		flags |= flagCommitMarker
	}
	b = encoding.EncodeUvarintAscending(b, flags)
	b = encodeLenPrefixed(b, []byte(e.NS.DB))
	b = encodeLenPrefixed(b, []byte(e.NS.Collection))
	var wall uint64
	if !e.WallTime.IsZero() {
		wall = uint64(timeutil.ToUnixNanos(e.WallTime))
	}
	b = encoding.EncodeUvarintAscending(b, wall)
	b = encodeLenPrefixed(b, e.Payload)
	return b
}

// decodeEntry reconstructs an entry from its key and value. The
// returned entry does not alias either input.
func decodeEntry(key, value []byte) (oplog.Entry, error) {
	ot, err := decodeKey(key)
	if err != nil {
		return oplog.Entry{}, err
	}
	rem, version, err := encoding.DecodeUvarintAscending(value)
	if err != nil {
		return oplog.Entry{}, err
	}
	if version != entryVersion {
		return oplog.Entry{}, errors.Errorf(
			"unknown oplog entry format version %d", version)
	}
	rem, op, err := encoding.DecodeUvarintAscending(rem)
	if err != nil {
		return oplog.Entry{}, err
	}
	rem, flags, err := encoding.DecodeUvarintAscending(rem)
	if err != nil {
		return oplog.Entry{}, err
	}
	rem, db, err := decodeLenPrefixed(rem)
	if err != nil {
		return oplog.Entry{}, err
	}
	rem, coll, err := decodeLenPrefixed(rem)
	if err != nil {
		return oplog.Entry{}, err
	}
	rem, wall, err := encoding.DecodeUvarintAscending(rem)
	if err != nil {
		return oplog.Entry{}, err
	}
	rem, payload, err := decodeLenPrefixed(rem)
	if err != nil {
		return oplog.Entry{}, err
	}
	if len(rem) != 0 {
		return oplog.Entry{}, errors.Errorf(
			"%d trailing bytes in oplog entry value", len(rem))
	}
	e := oplog.Entry{
		OpTime:       ot,
		NS:           oplog.MakeNamespace(string(db), string(coll)),
		Op:           oplog.OpType(op),
		Prepared:     flags&flagPrepared != 0,
		CommitMarker: flags&flagCommitMarker != 0,
	}
	if wall != 0 {
		e.WallTime = timeutil.Unix(0, int64(wall))
	}
	if len(payload) > 0 {
		e.Payload = append([]byte(nil), payload...)
	}
	return e, nil
}

func encodeLenPrefixed(b, data []byte) []byte {
	b = encoding.EncodeUvarintAscending(b, uint64(len(data)))
	return append(b, data...)
}

func decodeLenPrefixed(b []byte) (remaining, data []byte, _ error) {
	rem, n, err := encoding.DecodeUvarintAscending(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rem)) < n {
		return nil, nil, errors.Errorf(
			"oplog entry value truncated: need %d bytes, have %d", n, len(rem))
	}
	return rem[n:], rem[:n], nil
}
