// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package oplogstore persists the node's local copy of the oplog in a
// pebble store keyed by OpTime. The apply engine records every batch
// here before applying it, so the node can serve the log to downstream
// nodes and recover its position after a restart.
package oplogstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogapply"
	"github.com/cockroachdb/oplogrepl/pkg/util/log"
	"github.com/cockroachdb/oplogrepl/pkg/util/syncutil"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Config configures a Store.
type Config struct {
	// FS is the filesystem to open the store on. Nil uses the process
	// filesystem; tests pass vfs.NewMem().
	FS vfs.FS
	// DisableSync skips the fsync on each append. A crash can then lose
	// recently appended entries, so this is only for synthetic
	// workloads.
	DisableSync bool
}

// Store is a durable, ordered copy of the oplog. Entries are keyed by
// their OpTime; re-appending at an existing position overwrites, so
// replaying a batch is harmless. All methods are safe for concurrent
// use.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	mu struct {
		syncutil.Mutex
		closed bool
	}
}

var _ oplogapply.LogWriter = (*Store)(nil)

// Open opens the oplog store in dir, creating it if necessary.
func Open(ctx context.Context, dir string, cfg Config) (*Store, error) {
	ctx = logtags.AddTag(ctx, "oplogstore", nil)
	db, err := pebble.Open(dir, &pebble.Options{
		FS:     cfg.FS,
		Logger: pebbleLogger{ctx: ctx},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening oplog store at %q", dir)
	}
	s := &Store{db: db, writeOpts: pebble.Sync}
	if cfg.DisableSync {
		s.writeOpts = pebble.NoSync
	}
	if last, ok, err := s.LastOpTime(); err != nil {
		_ = db.Close()
		return nil, err
	} else if ok {
		log.Infof(ctx, "opened oplog store at %q, log ends at %s", dir, last)
	} else {
		log.Infof(ctx, "opened empty oplog store at %q", dir)
	}
	return s, nil
}

// Append durably records the entries. The write is atomic: either every
// entry in the call is recorded or none is.
func (s *Store) Append(ctx context.Context, entries []oplog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	var key, val []byte
	for _, e := range entries {
		key = encodeKey(key[:0], e.OpTime)
		val = encodeValue(val[:0], e)
		if err := b.Set(key, val, nil); err != nil {
			return errors.Wrapf(err, "staging oplog entry %s", e.OpTime)
		}
	}
	if err := b.Commit(s.writeOpts); err != nil {
		return errors.Wrapf(err, "appending %d oplog entries", len(entries))
	}
	return nil
}

// LastOpTime returns the position of the newest recorded entry. The
// boolean is false when the store is empty.
func (s *Store) LastOpTime() (oplog.OpTime, bool, error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return oplog.OpTime{}, false, errors.Wrap(err, "opening oplog iterator")
	}
	defer func() { _ = it.Close() }()
	if !it.Last() {
		return oplog.OpTime{}, false, it.Error()
	}
	ot, err := decodeKey(it.Key())
	if err != nil {
		return oplog.OpTime{}, false, err
	}
	return ot, true, nil
}

// Scan calls fn for every recorded entry with position in [from, to),
// in OpTime order. A zero to scans to the end of the log. An error from
// fn stops the scan and is returned.
func (s *Store) Scan(
	ctx context.Context, from, to oplog.OpTime, fn func(oplog.Entry) error,
) error {
	opts := &pebble.IterOptions{LowerBound: encodeKey(nil, from)}
	if !to.IsZero() {
		opts.UpperBound = encodeKey(nil, to)
	}
	it, err := s.db.NewIter(opts)
	if err != nil {
		return errors.Wrap(err, "opening oplog iterator")
	}
	defer func() { _ = it.Close() }()
	for valid := it.First(); valid; valid = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := decodeEntry(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return it.Error()
}

// TruncateBefore removes every entry with position strictly before
// bound, capping the log's footprint. Entries at or after bound are
// untouched.
func (s *Store) TruncateBefore(ctx context.Context, bound oplog.OpTime) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := encodeKey(nil, oplog.OpTime{})
	end := encodeKey(nil, bound)
	if err := s.db.DeleteRange(start, end, s.writeOpts); err != nil {
		return errors.Wrapf(err, "truncating oplog before %s", bound)
	}
	return nil
}

// Metrics returns the underlying store's metrics.
func (s *Store) Metrics() *pebble.Metrics {
	return s.db.Metrics()
}

// Close closes the store. It is idempotent. Outstanding scans must
// finish first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.closed {
		return nil
	}
	s.mu.closed = true
	return s.db.Close()
}

// pebbleLogger routes pebble's own log output through the log package.
type pebbleLogger struct {
	ctx context.Context
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	log.InfofDepth(l.ctx, 2, format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	log.ErrorfDepth(l.ctx, 2, format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.FatalfDepth(l.ctx, 2, format, args...)
}
