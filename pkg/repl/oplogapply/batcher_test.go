// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplogapply_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogapply"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogbuffer"
	"github.com/cockroachdb/oplogrepl/pkg/util/hlc"
	"github.com/cockroachdb/oplogrepl/pkg/util/leaktest"
	"github.com/cockroachdb/oplogrepl/pkg/util/log"
	"github.com/stretchr/testify/require"
)

// wideLimits do not constrain the small batches assembled in tests.
var wideLimits = oplogapply.BatchLimits{MaxBytes: 1 << 20, MaxOps: 100}

func testEntry(wall int64, op oplog.OpType, ns oplog.Namespace, payload int) oplog.Entry {
	return oplog.Entry{
		OpTime: oplog.OpTime{
			Timestamp: hlc.Timestamp{WallTime: wall},
			Term:      1,
		},
		NS:      ns,
		Op:      op,
		Payload: make([]byte, payload),
	}
}

func plainOp(wall int64, op oplog.OpType) oplog.Entry {
	return testEntry(wall, op, oplog.MakeNamespace("db1", "coll"), 16)
}

func applyCommand(wall int64, prepared bool) oplog.Entry {
	e := testEntry(wall, oplog.Command, oplog.MakeNamespace("admin", "$cmd"), 32)
	e.Prepared = prepared
	return e
}

func commitMarker(wall int64, prepared bool) oplog.Entry {
	e := applyCommand(wall, prepared)
	e.CommitMarker = true
	return e
}

func bufferWith(t *testing.T, entries ...oplog.Entry) *oplogbuffer.Buffer {
	t.Helper()
	b := oplogbuffer.New(oplogbuffer.Config{})
	require.NoError(t, b.Push(context.Background(), entries...))
	return b
}

func batchWalls(b oplogapply.Batch) []int64 {
	walls := make([]int64, 0, b.Len())
	for _, e := range b.Entries {
		walls = append(walls, e.OpTime.Timestamp.WallTime)
	}
	return walls
}

// drainBatches assembles batches until the source is exhausted and
// returns the walls of each batch.
func drainBatches(
	t *testing.T, src oplogapply.EntrySource, limits oplogapply.BatchLimits,
) [][]int64 {
	t.Helper()
	var got [][]int64
	for {
		batch, err := oplogapply.NextBatch(context.Background(), src, limits)
		require.NoError(t, err)
		if batch.Empty() {
			return got
		}
		got = append(got, batchWalls(batch))
	}
}

func TestNextBatchEmptySource(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	b := oplogbuffer.New(oplogbuffer.Config{})
	batch, err := oplogapply.NextBatch(ctx, b, wideLimits)
	require.NoError(t, err)
	require.True(t, batch.Empty())
	require.Zero(t, batch.ByteSize)
	require.True(t, batch.LastOpTime().IsZero())

	// An empty source short-circuits before limit validation.
	batch, err = oplogapply.NextBatch(ctx, b, oplogapply.BatchLimits{})
	require.NoError(t, err)
	require.True(t, batch.Empty())
}

func TestNextBatchInvalidLimits(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	b := bufferWith(t, plainOp(1, oplog.Insert))
	for _, limits := range []oplogapply.BatchLimits{
		{},
		{MaxBytes: 1 << 20},
		{MaxOps: 100},
	} {
		_, err := oplogapply.NextBatch(ctx, b, limits)
		require.ErrorIs(t, err, oplogapply.ErrInvalidLimits)
	}
	// Nothing was consumed by the failed attempts.
	require.Equal(t, 1, b.Len())
}

func TestNextBatchGroupsCrudOps(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b := bufferWith(t,
		testEntry(1, oplog.Insert, oplog.MakeNamespace("db1", "a"), 16),
		testEntry(2, oplog.Update, oplog.MakeNamespace("db1", "b"), 16),
		testEntry(3, oplog.Delete, oplog.MakeNamespace("db2", "c"), 16),
	)
	require.Equal(t, [][]int64{{1, 2, 3}}, drainBatches(t, b, wideLimits))
}

func TestNextBatchRespectsMaxOps(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	var entries []oplog.Entry
	for wall := int64(1); wall <= 7; wall++ {
		entries = append(entries, plainOp(wall, oplog.Insert))
	}
	b := bufferWith(t, entries...)
	limits := oplogapply.BatchLimits{MaxBytes: 1 << 20, MaxOps: 3}
	require.Equal(t, [][]int64{{1, 2, 3}, {4, 5, 6}, {7}}, drainBatches(t, b, limits))
}

func TestNextBatchRespectsMaxBytes(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	e1 := plainOp(1, oplog.Insert)
	e2 := plainOp(2, oplog.Insert)
	e3 := plainOp(3, oplog.Insert)
	// Two entries fit exactly; the third spills into the next batch.
	limits := oplogapply.BatchLimits{MaxBytes: e1.SizeBytes() + e2.SizeBytes(), MaxOps: 100}
	b := bufferWith(t, e1, e2, e3)
	require.Equal(t, [][]int64{{1, 2}, {3}}, drainBatches(t, b, limits))
}

func TestNextBatchOversizedEntryAlone(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	small := plainOp(1, oplog.Insert)
	limits := oplogapply.BatchLimits{MaxBytes: small.SizeBytes() + 1, MaxOps: 100}
	huge := testEntry(2, oplog.Insert, oplog.MakeNamespace("db1", "coll"), int(limits.MaxBytes))
	require.Greater(t, huge.SizeBytes(), limits.MaxBytes)

	t.Run("leading", func(t *testing.T) {
		b := bufferWith(t, huge, plainOp(3, oplog.Insert))
		require.Equal(t, [][]int64{{2}, {3}}, drainBatches(t, b, limits))
	})
	t.Run("interior", func(t *testing.T) {
		b := bufferWith(t, small, huge, plainOp(3, oplog.Insert))
		require.Equal(t, [][]int64{{1}, {2}, {3}}, drainBatches(t, b, limits))
	})
}

func TestNextBatchPreparedApplyCommandAlone(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b := bufferWith(t,
		plainOp(1, oplog.Insert),
		plainOp(2, oplog.Update),
		applyCommand(3, true /* prepared */),
		plainOp(4, oplog.Insert),
	)
	// The gathered batch flushes first; the prepared command then comes
	// back as a singleton.
	require.Equal(t, [][]int64{{1, 2}, {3}, {4}}, drainBatches(t, b, wideLimits))
}

func TestNextBatchUnpreparedApplyCommandGroups(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b := bufferWith(t,
		plainOp(1, oplog.Insert),
		applyCommand(2, false /* prepared */),
		plainOp(3, oplog.Update),
	)
	require.Equal(t, [][]int64{{1, 2, 3}}, drainBatches(t, b, wideLimits))
}

func TestNextBatchPreparedCommitMarkerAlone(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b := bufferWith(t,
		plainOp(1, oplog.Insert),
		commitMarker(2, true /* prepared */),
		plainOp(3, oplog.Insert),
	)
	require.Equal(t, [][]int64{{1}, {2}, {3}}, drainBatches(t, b, wideLimits))
}

func TestNextBatchUnpreparedCommitMarkerGroups(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b := bufferWith(t,
		plainOp(1, oplog.Insert),
		commitMarker(2, false /* prepared */),
		plainOp(3, oplog.Insert),
	)
	require.Equal(t, [][]int64{{1, 2, 3}}, drainBatches(t, b, wideLimits))
}

func TestNextBatchViewDefinitionsAlone(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b := bufferWith(t,
		plainOp(1, oplog.Insert),
		testEntry(2, oplog.Insert, oplog.MakeNamespace("db2", "system.views"), 16),
		plainOp(3, oplog.Insert),
	)
	require.Equal(t, [][]int64{{1}, {2}, {3}}, drainBatches(t, b, wideLimits))
}

func TestNextBatchServerConfigurationAlone(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b := bufferWith(t,
		plainOp(1, oplog.Insert),
		testEntry(2, oplog.Update, oplog.MakeNamespace("admin", "system.version"), 16),
		plainOp(3, oplog.Insert),
	)
	require.Equal(t, [][]int64{{1}, {2}, {3}}, drainBatches(t, b, wideLimits))
}

func TestNextBatchIsolatedEntryLeading(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	b := bufferWith(t,
		applyCommand(1, true /* prepared */),
		plainOp(2, oplog.Insert),
	)
	batch, err := oplogapply.NextBatch(ctx, b, wideLimits)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, batchWalls(batch))
	require.True(t, batch.Entries[0].RequiresOwnBatch())
}

func TestBatchAccessors(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	var batch oplogapply.Batch
	require.True(t, batch.Empty())
	require.Zero(t, batch.Len())
	require.True(t, batch.LastOpTime().IsZero())

	b := bufferWith(t, plainOp(1, oplog.Insert), plainOp(2, oplog.Update))
	batch, err := oplogapply.NextBatch(context.Background(), b, wideLimits)
	require.NoError(t, err)
	require.False(t, batch.Empty())
	require.Equal(t, 2, batch.Len())
	require.Equal(t, int64(2), batch.LastOpTime().Timestamp.WallTime)

	var wantBytes int64
	for _, e := range batch.Entries {
		wantBytes += e.SizeBytes()
	}
	require.Equal(t, wantBytes, batch.ByteSize)
}

func TestBatchLimitsFormat(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	limits := oplogapply.BatchLimits{MaxBytes: 100 << 20, MaxOps: 5000}
	require.Equal(t, "ops=5000 bytes=100 MiB", limits.String())
}
