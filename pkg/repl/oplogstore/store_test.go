// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplogstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/util/hlc"
	"github.com/cockroachdb/oplogrepl/pkg/util/leaktest"
	"github.com/cockroachdb/oplogrepl/pkg/util/log"
	"github.com/cockroachdb/oplogrepl/pkg/util/randutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
)

func makeOpTime(wall int64, logical int32, term int64) oplog.OpTime {
	return oplog.OpTime{
		Timestamp: hlc.Timestamp{WallTime: wall, Logical: logical},
		Term:      term,
	}
}

func storeEntry(wall int64) oplog.Entry {
	return oplog.Entry{
		OpTime:  makeOpTime(wall, 0, 1),
		NS:      oplog.MakeNamespace("db1", "coll"),
		Op:      oplog.Insert,
		Payload: []byte("payload"),
	}
}

func openMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "", Config{FS: vfs.NewMem()})
	require.NoError(t, err)
	return s
}

func scanAll(t *testing.T, s *Store) []oplog.Entry {
	t.Helper()
	var got []oplog.Entry
	require.NoError(t, s.Scan(context.Background(), oplog.OpTime{}, oplog.OpTime{},
		func(e oplog.Entry) error {
			got = append(got, e)
			return nil
		}))
	return got
}

func TestStoreAppendScanRoundTrip(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	s := openMemStore(t)
	defer func() { require.NoError(t, s.Close()) }()

	entries := []oplog.Entry{
		{
			OpTime:   makeOpTime(1, 0, 1),
			NS:       oplog.MakeNamespace("db1", "coll"),
			Op:       oplog.Insert,
			Payload:  []byte("doc-1"),
			WallTime: timeutil.Unix(0, 12345),
		},
		{
			OpTime:  makeOpTime(2, 1, 1),
			NS:      oplog.MakeNamespace("db2", "other"),
			Op:      oplog.Update,
			Payload: []byte("doc-2"),
		},
		{
			// A command with no payload at all.
			OpTime: makeOpTime(3, 0, 2),
			NS:     oplog.MakeNamespace("admin", "$cmd"),
			Op:     oplog.Command,
		},
		{
			OpTime:       makeOpTime(4, 0, 2),
			NS:           oplog.MakeNamespace("admin", "$cmd"),
			Op:           oplog.Command,
			Payload:      []byte("txn"),
			Prepared:     true,
			CommitMarker: true,
		},
	}
	require.NoError(t, s.Append(ctx, entries))
	require.Equal(t, entries, scanAll(t, s))

	// A bounded scan is half-open: [from, to).
	var bounded []oplog.Entry
	require.NoError(t, s.Scan(ctx, makeOpTime(2, 0, 0), makeOpTime(4, 0, 2),
		func(e oplog.Entry) error {
			bounded = append(bounded, e)
			return nil
		}))
	require.Equal(t, entries[1:3], bounded)
}

func TestStoreAppendOverwritesSamePosition(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	s := openMemStore(t)
	defer func() { require.NoError(t, s.Close()) }()

	e := storeEntry(1)
	require.NoError(t, s.Append(ctx, []oplog.Entry{e}))
	e.Payload = []byte("replayed")
	require.NoError(t, s.Append(ctx, []oplog.Entry{e}))

	got := scanAll(t, s)
	require.Len(t, got, 1)
	require.Equal(t, []byte("replayed"), got[0].Payload)
}

func TestStoreLastOpTime(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	s := openMemStore(t)
	defer func() { require.NoError(t, s.Close()) }()

	_, ok, err := s.LastOpTime()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Append(ctx, []oplog.Entry{storeEntry(1), storeEntry(2)}))
	last, ok, err := s.LastOpTime()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, makeOpTime(2, 0, 1), last)

	require.NoError(t, s.Append(ctx, []oplog.Entry{storeEntry(5)}))
	last, ok, err = s.LastOpTime()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, makeOpTime(5, 0, 1), last)
}

func TestStoreTruncateBefore(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	s := openMemStore(t)
	defer func() { require.NoError(t, s.Close()) }()

	var entries []oplog.Entry
	for wall := int64(1); wall <= 10; wall++ {
		entries = append(entries, storeEntry(wall))
	}
	require.NoError(t, s.Append(ctx, entries))
	require.NoError(t, s.TruncateBefore(ctx, makeOpTime(5, 0, 1)))

	got := scanAll(t, s)
	require.Equal(t, entries[4:], got)
	last, ok, err := s.LastOpTime()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, makeOpTime(10, 0, 1), last)
}

func TestStoreReopenRecovers(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	fs := vfs.NewMem()
	s, err := Open(ctx, "oplog", Config{FS: fs})
	require.NoError(t, err)

	var entries []oplog.Entry
	for wall := int64(1); wall <= 20; wall++ {
		entries = append(entries, storeEntry(wall))
	}
	require.NoError(t, s.Append(ctx, entries))
	require.NoError(t, s.Close())

	s, err = Open(ctx, "oplog", Config{FS: fs})
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	last, ok, err := s.LastOpTime()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, makeOpTime(20, 0, 1), last)
	require.Equal(t, entries, scanAll(t, s))
}

func TestStoreScanStopsOnCallbackError(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	s := openMemStore(t)
	defer func() { require.NoError(t, s.Close()) }()

	for wall := int64(1); wall <= 5; wall++ {
		require.NoError(t, s.Append(ctx, []oplog.Entry{storeEntry(wall)}))
	}
	errStop := errors.New("stop")
	var seen int
	err := s.Scan(ctx, oplog.OpTime{}, oplog.OpTime{}, func(oplog.Entry) error {
		seen++
		if seen == 3 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, 3, seen)
}

func TestStoreCloseIdempotent(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	s := openMemStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestKeyOrderingMatchesOpTimeOrder(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	rng, _ := randutil.NewTestRand()
	// Small ranges so ties force the comparison down to the logical and
	// term tiers.
	randOpTime := func() oplog.OpTime {
		return makeOpTime(rng.Int63n(8), rng.Int31n(4), rng.Int63n(4))
	}
	for i := 0; i < 1000; i++ {
		a, b := randOpTime(), randOpTime()
		cmp := bytes.Compare(encodeKey(nil, a), encodeKey(nil, b))
		require.Equal(t, a.Compare(b), cmp, "a=%s b=%s", a, b)
	}
}

func TestEntryCodecRejectsMalformedInput(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	e := storeEntry(1)
	key := encodeKey(nil, e.OpTime)
	val := encodeValue(nil, e)

	if _, err := decodeEntry(key[:keyLen-1], val); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := decodeEntry(key, val[:len(val)-1]); err == nil {
		t.Fatal("expected error for truncated value")
	}
	if _, err := decodeEntry(key, append(append([]byte(nil), val...), 0x88)); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
	bad := append([]byte(nil), val...)
	bad[0] = 0x88 + 9 // version 9
	if _, err := decodeEntry(key, bad); err == nil {
		t.Fatal("expected error for unknown version")
	}
}
