// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogapply"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogbuffer"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogstore"
	"github.com/cockroachdb/oplogrepl/pkg/util/ctxgroup"
	"github.com/cockroachdb/oplogrepl/pkg/util/hlc"
	"github.com/cockroachdb/oplogrepl/pkg/util/humanizeutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/log"
	"github.com/cockroachdb/oplogrepl/pkg/util/metric"
	"github.com/cockroachdb/oplogrepl/pkg/util/randutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/retry"
	"github.com/cockroachdb/oplogrepl/pkg/util/stop"
	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
	"github.com/cockroachdb/pebble/vfs"
)

var numEntries = flag.Int("n", 100000, "number of oplog entries to feed")
var payloadBytes = flag.Int("b", 256, "payload size of each generated entry")
var bufferBytes = flag.Int64("buffer-bytes", oplogbuffer.DefaultMaxSizeBytes, "oplog buffer capacity in bytes")
var batchOps = flag.Int("batch-ops", 0, "max entries per apply batch (0 for the default)")
var batchBytes = flag.Int64("batch-bytes", 0, "max bytes per apply batch (0 for the default)")
var storeDir = flag.String("store", "", "directory for the local oplog store; empty runs in memory")
var disableSync = flag.Bool("no-sync", false, "disable fsync on local oplog appends")
var applyDelay = flag.Duration("apply-delay", 0, "artificial delay per applied batch")
var failEvery = flag.Int("fail-every", 0, "inject a transient apply failure every N batches (0 disables)")
var commandEvery = flag.Int("command-every", 0, "generate a command entry every N entries (0 disables)")
var retain = flag.Int("retain", 0, "applied entries to retain in the local oplog (0 keeps everything)")
var monitorInterval = flag.Duration("monitor", time.Second, "status print interval")
var seed = flag.Int64("seed", 0, "pseudorandom seed; 0 picks one")

// applySim drives the oplog application engine against a synthetic
// workload. A feeder goroutine pushes generated entries into the
// buffer while the applier drains it into a pebble-backed local oplog
// and a counting storage stub; a monitor goroutine prints throughput
// once a second and caps the local oplog when -retain is set.
type applySim struct {
	buf     *oplogbuffer.Buffer
	store   *oplogstore.Store
	applier *oplogapply.Applier
	metrics *oplogapply.Metrics
	storage *simStorage
	fed     atomic.Int64
	done    chan struct{}
}

// simStorage stands in for the node's data store: it counts what it is
// handed, optionally sleeps to model apply cost, and optionally fails
// every N-th batch to exercise the retry policy. An injected failure is
// transient: the re-application of the same batch lands.
type simStorage struct {
	delay     time.Duration
	failEvery int
	attempts  atomic.Int64
	ops       atomic.Int64
	bytes     atomic.Int64
}

func (s *simStorage) ApplyBatch(
	ctx context.Context, batch oplogapply.Batch,
) (oplog.OpTime, error) {
	n := s.attempts.Add(1)
	if s.failEvery > 0 && n%int64(s.failEvery) == 0 {
		return oplog.OpTime{}, errors.Newf("injected failure at attempt %d", n)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return oplog.OpTime{}, ctx.Err()
		}
	}
	s.ops.Add(int64(batch.Len()))
	s.bytes.Add(batch.ByteSize)
	return batch.LastOpTime(), nil
}

var dbs = []string{"app", "accounts", "inventory"}
var colls = []string{"users", "orders", "events"}

func (a *applySim) makeEntry(rng *rand.Rand, seq int64) oplog.Entry {
	e := oplog.Entry{
		OpTime: oplog.OpTime{
			Timestamp: hlc.Timestamp{WallTime: seq},
			Term:      1,
		},
		Payload:  randutil.RandBytes(rng, *payloadBytes),
		WallTime: timeutil.Now(),
	}
	if *commandEvery > 0 && seq%int64(*commandEvery) == 0 {
		// Rotate through the entry classes that batch assembly treats
		// specially.
		switch (seq / int64(*commandEvery)) % 4 {
		case 0:
			e.NS = oplog.MakeNamespace("admin", "$cmd")
			e.Op = oplog.Command
			e.Prepared = true
		case 1:
			e.NS = oplog.MakeNamespace("admin", "$cmd")
			e.Op = oplog.Command
		case 2:
			e.NS = oplog.MakeNamespace("admin", "$cmd")
			e.Op = oplog.Command
			e.Prepared = true
			e.CommitMarker = true
		case 3:
			e.NS = oplog.MakeNamespace(dbs[rng.Intn(len(dbs))], "system.views")
			e.Op = oplog.Insert
		}
		return e
	}
	e.NS = oplog.MakeNamespace(dbs[rng.Intn(len(dbs))], colls[rng.Intn(len(colls))])
	switch p := rng.Intn(10); {
	case p < 7:
		e.Op = oplog.Insert
	case p < 9:
		e.Op = oplog.Update
	default:
		e.Op = oplog.Delete
	}
	return e
}

// feed pushes the synthetic stream and closes the buffer when the
// stream ends, cleanly stopping the applier.
func (a *applySim) feed(ctx context.Context, rng *rand.Rand) error {
	defer a.buf.Close()
	const pushChunk = 32
	chunk := make([]oplog.Entry, 0, pushChunk)
	for seq := int64(1); seq <= int64(*numEntries); seq++ {
		chunk = append(chunk, a.makeEntry(rng, seq))
		if len(chunk) == pushChunk || seq == int64(*numEntries) {
			if err := a.buf.Push(ctx, chunk...); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			a.fed.Add(int64(len(chunk)))
			chunk = chunk[:0]
		}
	}
	return nil
}

func (a *applySim) monitor(ctx context.Context) error {
	ticker := time.NewTicker(*monitorInterval)
	defer ticker.Stop()

	start := timeutil.Now()
	lastTime := start
	var lastOps, lastBytes int64

	fmt.Println("_elapsed___entries/s_____MiB/s__batches__retries___applied_____buffered")
	for {
		select {
		case <-a.done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		now := timeutil.Now()
		elapsed := now.Sub(lastTime).Seconds()
		ops := a.storage.ops.Load()
		bytes := a.storage.bytes.Load()
		applied := a.applier.LastApplied().Timestamp.WallTime

		fmt.Printf("%8s %11.1f %9.2f %8d %8d %9d %12s\n",
			time.Duration(now.Sub(start).Seconds()+0.5)*time.Second,
			float64(ops-lastOps)/elapsed,
			float64(bytes-lastBytes)/float64(1<<20)/elapsed,
			a.metrics.Batches.Count(),
			a.metrics.Retries.Count(),
			applied,
			humanizeutil.IBytes(a.buf.SizeBytes()))
		lastTime = now
		lastOps = ops
		lastBytes = bytes

		a.maybeTruncate(ctx, applied)
	}
}

// maybeTruncate caps the local oplog to the most recent -retain applied
// entries.
func (a *applySim) maybeTruncate(ctx context.Context, applied int64) {
	if *retain <= 0 || applied <= int64(*retain) {
		return
	}
	bound := oplog.OpTime{Timestamp: hlc.Timestamp{WallTime: applied - int64(*retain) + 1}}
	if err := a.store.TruncateBefore(ctx, bound); err != nil {
		log.Warningf(ctx, "truncating local oplog: %v", err)
	}
}

func (a *applySim) finalStatus(elapsed time.Duration) {
	fmt.Printf("\nfed %s entries, applied %s in %d batches (%s, %.1f entries/s, %d retries)\n",
		humanizeutil.Count(a.fed.Load()),
		humanizeutil.Count(a.storage.ops.Load()),
		a.metrics.Batches.Count(),
		humanizeutil.IBytes(a.storage.bytes.Load()),
		float64(a.storage.ops.Load())/elapsed.Seconds(),
		a.metrics.Retries.Count())
	if last, ok, err := a.store.LastOpTime(); err != nil {
		fmt.Printf("local oplog: %v\n", err)
	} else if ok {
		fmt.Printf("local oplog ends at %s\n", last)
	}
}

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	stopper := stop.NewStopper()
	defer stopper.Stop(ctx)

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = randutil.NewPseudoSeed()
	}
	rng := rand.New(rand.NewSource(rngSeed))
	log.Infof(ctx, "seed %d", rngSeed)

	storeCfg := oplogstore.Config{DisableSync: *disableSync}
	if *storeDir == "" {
		storeCfg.FS = vfs.NewMem()
	}
	store, err := oplogstore.Open(ctx, *storeDir, storeCfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	limits := oplogapply.DefaultLimits()
	if *batchOps > 0 {
		limits.MaxOps = *batchOps
	}
	if *batchBytes > 0 {
		limits.MaxBytes = *batchBytes
	}
	var policy oplogapply.ErrorPolicy = oplogapply.FailFast{}
	if *failEvery > 0 {
		policy = oplogapply.RetryWithBackoff{Options: retry.Options{
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2,
		}}
	}

	metrics := oplogapply.MakeMetrics(10 * time.Second)
	registry := metric.NewRegistry()
	registry.AddMetricStruct(&metrics)

	sim := &applySim{
		buf:   oplogbuffer.New(oplogbuffer.Config{MaxSizeBytes: *bufferBytes}),
		store: store,
		storage: &simStorage{
			delay:     *applyDelay,
			failEvery: *failEvery,
		},
		metrics: &metrics,
		done:    make(chan struct{}),
	}
	sim.applier, err = oplogapply.NewApplier(oplogapply.Options{
		Buffer:    sim.buf,
		Storage:   sim.storage,
		LogWriter: store,
		Limits:    limits,
		Policy:    policy,
		Metrics:   &metrics,
	})
	if err != nil {
		return err
	}

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		log.Infof(ctx, "received %s; draining", sig)
		cancelFeed()
		sim.applier.Shutdown()
		sig = <-signalCh
		log.Errorf(ctx, "received second %s; exiting", sig)
		os.Exit(130)
	}()

	start := timeutil.Now()
	if err := sim.applier.Start(ctx, stopper); err != nil {
		return err
	}
	g := ctxgroup.WithContext(feedCtx)
	g.GoCtx(func(ctx context.Context) error {
		return sim.feed(ctx, rng)
	})
	g.GoCtx(sim.monitor)

	joinErr := sim.applier.Join(ctx)
	close(sim.done)
	cancelFeed()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf(ctx, "workload: %v", err)
	}

	sim.finalStatus(timeutil.Since(start))
	if log.V(1) {
		log.Infof(ctx, "store metrics:\n%s", store.Metrics())
	}
	return joinErr
}
