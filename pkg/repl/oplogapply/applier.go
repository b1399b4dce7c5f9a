// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package oplogapply assembles buffered oplog entries into bounded
// batches and drives the background loop that applies them on a
// secondary node. Batch assembly enforces the isolation rules for
// prepared transaction commands and catalog-affecting namespaces; the
// loop owns a strict, non-restartable lifecycle and an injectable
// policy for apply failures.
package oplogapply

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplog"
	"github.com/cockroachdb/oplogrepl/pkg/repl/oplogbuffer"
	"github.com/cockroachdb/oplogrepl/pkg/util/envutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/humanizeutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/log"
	"github.com/cockroachdb/oplogrepl/pkg/util/retry"
	"github.com/cockroachdb/oplogrepl/pkg/util/stop"
	"github.com/cockroachdb/oplogrepl/pkg/util/syncutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
	"github.com/cockroachdb/redact"
)

// ErrAlreadyStarted is returned by Start once the applier has left the
// Created state. Appliers are not restartable.
var ErrAlreadyStarted = errors.New("applier already started")

// DefaultWaitInterval bounds each wait for new data so the apply loop
// re-checks its lifecycle state at least this often.
var DefaultWaitInterval = envutil.EnvOrDefaultDuration("OPLOGREPL_APPLY_WAIT_INTERVAL", time.Second)

// State is the lifecycle state of an Applier. Transitions are one-way:
// Created to Running to ShuttingDown to Stopped, with a shortcut from
// Created straight to Stopped when the applier is shut down before it
// ever starts.
type State int32

const (
	// Created is the initial state: the loop has not started.
	Created State = iota
	// Running means the loop is consuming and applying batches.
	Running
	// ShuttingDown means shutdown was requested; the loop drains the
	// buffer and then stops.
	ShuttingDown
	// Stopped is the terminal state.
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SafeValue implements the redact.SafeValue interface.
func (s State) SafeValue() {}

var _ redact.SafeValue = Created

// StorageApplier applies assembled batches to the node's data. The
// engine sequences calls: at most one ApplyBatch runs at a time, and a
// failed batch may be handed back whole for another attempt.
type StorageApplier interface {
	// ApplyBatch applies the batch and returns the new last-applied
	// position, normally the batch's LastOpTime.
	ApplyBatch(ctx context.Context, batch Batch) (oplog.OpTime, error)
}

// LogWriter durably records entries before they are applied, so the
// node can serve them to downstream nodes and recover its position
// after a restart.
type LogWriter interface {
	Append(ctx context.Context, entries []oplog.Entry) error
}

// bufferStats is implemented by sources that expose their occupancy,
// such as *oplogbuffer.Buffer. The applier samples it for the buffer
// gauges.
type bufferStats interface {
	SizeBytes() int64
	Len() int
	MaxSizeBytes() int64
}

// Options configures an Applier.
type Options struct {
	// Buffer supplies the entries to apply. Required.
	Buffer EntrySource
	// Storage applies assembled batches. Required.
	Storage StorageApplier
	// LogWriter, if set, durably records each batch before it is
	// applied.
	LogWriter LogWriter
	// Limits bounds assembled batches. The zero value adopts
	// DefaultLimits.
	Limits BatchLimits
	// Policy decides whether a failed batch application is retried.
	// Nil defaults to FailFast.
	Policy ErrorPolicy
	// Metrics receives the applier's instrumentation. Nil creates a
	// detached set, retrievable via Applier.Metrics.
	Metrics *Metrics
	// WaitInterval bounds each wait for new data. Zero adopts
	// DefaultWaitInterval.
	WaitInterval time.Duration
}

// Applier drives the background loop that assembles and applies
// batches. Its lifecycle is strictly one-way; a stopped applier cannot
// be started again.
type Applier struct {
	opts    Options
	metrics Metrics

	mu struct {
		syncutil.Mutex
		state       State
		lastApplied oplog.OpTime
		err         error
		// cancelWait interrupts the loop's blocking waits. Set by
		// Start in the same critical section as the transition to
		// Running; invoked on shutdown and on stopper quiescence.
		cancelWait context.CancelFunc
	}
	// done closes when the applier reaches Stopped.
	done chan struct{}

	retryWarnEvery log.EveryN
}

// NewApplier returns an Applier in the Created state.
func NewApplier(opts Options) (*Applier, error) {
	if opts.Buffer == nil {
		return nil, errors.AssertionFailedf("applier requires an entry source")
	}
	if opts.Storage == nil {
		return nil, errors.AssertionFailedf("applier requires a storage applier")
	}
	if opts.Limits == (BatchLimits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Policy == nil {
		opts.Policy = FailFast{}
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = DefaultWaitInterval
	}
	a := &Applier{
		opts:           opts,
		done:           make(chan struct{}),
		retryWarnEvery: log.Every(5 * time.Second),
	}
	if opts.Metrics != nil {
		a.metrics = *opts.Metrics
	} else {
		a.metrics = MakeMetrics(time.Minute)
	}
	a.mu.state = Created
	return a, nil
}

// Metrics returns the applier's metrics.
func (a *Applier) Metrics() *Metrics {
	return &a.metrics
}

// Start launches the apply loop as a task on the given stopper. It is
// valid only in the Created state; any later call fails with
// ErrAlreadyStarted. Stopper quiescence acts as Shutdown.
func (a *Applier) Start(ctx context.Context, stopper *stop.Stopper) error {
	ctx = logtags.AddTag(ctx, "oplog-apply", nil)

	a.mu.Lock()
	if a.mu.state != Created {
		cur := a.mu.state
		a.mu.Unlock()
		return errors.Wrapf(ErrAlreadyStarted, "applier is %s", cur)
	}
	// waitCtx governs only the loop's blocking waits and retry
	// backoffs. Batch pops and applies keep the caller's ctx so a
	// drain can finish after shutdown is requested.
	waitCtx, cancelWait := stopper.WithCancelOnQuiesce(ctx)
	a.mu.state = Running
	a.mu.cancelWait = cancelWait
	a.mu.Unlock()

	if stats, ok := a.opts.Buffer.(bufferStats); ok {
		a.metrics.BufferMaxSizeBytes.Update(stats.MaxSizeBytes())
	}

	if err := stopper.RunAsyncTask(ctx, "oplog-apply", func(ctx context.Context) {
		a.run(ctx, waitCtx, stopper)
	}); err != nil {
		// The stopper is already quiescing; the loop never ran.
		a.finish(ctx, err)
		return err
	}
	return nil
}

// Shutdown requests that the applier stop. From Created it stops
// immediately; from Running it begins a drain: the loop keeps applying
// until the buffer yields an empty batch, then stops. Shutdown is
// idempotent and returns without waiting; use Join to wait.
func (a *Applier) Shutdown() {
	a.mu.Lock()
	if a.mu.state == Created {
		a.mu.state = Stopped
		a.mu.Unlock()
		close(a.done)
		return
	}
	a.mu.Unlock()
	a.beginShutdown()
}

// beginShutdown moves a Running applier to ShuttingDown and wakes any
// blocked wait. It is a no-op in any other state.
func (a *Applier) beginShutdown() {
	a.mu.Lock()
	var cancel context.CancelFunc
	if a.mu.state == Running {
		a.mu.state = ShuttingDown
		cancel = a.mu.cancelWait
	}
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Join blocks until the applier reaches Stopped and returns the loop's
// terminal error. A clean end of stream or a drained shutdown returns
// nil.
func (a *Applier) Join(ctx context.Context) error {
	select {
	case <-a.done:
		return a.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the applier's lifecycle state.
func (a *Applier) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mu.state
}

// LastApplied returns the position of the last successfully applied
// batch, zero if none has been applied.
func (a *Applier) LastApplied() oplog.OpTime {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mu.lastApplied
}

// Err returns the loop's terminal error, nil while the applier is still
// running or when it stopped cleanly.
func (a *Applier) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mu.err
}

func (a *Applier) run(ctx, waitCtx context.Context, stopper *stop.Stopper) {
	log.Infof(ctx, "apply loop starting with limits %s", a.opts.Limits)
	err := a.applyLoop(ctx, waitCtx, stopper)
	a.finish(ctx, err)
}

// finish records the terminal error, moves the applier to Stopped, and
// unblocks Join.
func (a *Applier) finish(ctx context.Context, err error) {
	a.mu.Lock()
	a.mu.state = Stopped
	a.mu.err = err
	cancel := a.mu.cancelWait
	last := a.mu.lastApplied
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	close(a.done)
	if err != nil {
		log.Errorf(ctx, "apply loop stopped at %s: %v", last, err)
	} else {
		log.Infof(ctx, "apply loop stopped cleanly at %s", last)
	}
}

func (a *Applier) applyLoop(ctx, waitCtx context.Context, stopper *stop.Stopper) error {
	for {
		select {
		case <-stopper.ShouldQuiesce():
			a.beginShutdown()
		default:
		}

		batch, err := NextBatch(ctx, a.opts.Buffer, a.opts.Limits)
		if err != nil {
			// Zero limits against a non-empty buffer. Not retried: the
			// configuration cannot heal on its own.
			return err
		}
		if !batch.Empty() {
			if err := a.applyBatch(ctx, waitCtx, batch); err != nil {
				return err
			}
			continue
		}
		if a.State() == ShuttingDown {
			// The buffer is drained; the shutdown is complete.
			return nil
		}
		switch err := a.opts.Buffer.WaitForData(waitCtx, a.opts.WaitInterval); {
		case err == nil, errors.Is(err, oplogbuffer.ErrWaitExpired):
			// Data arrived, or the interval lapsed; re-check.
		case errors.Is(err, oplogbuffer.ErrEndOfStream):
			log.Info(ctx, "oplog stream ended")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Shutdown, stopper quiescence, or a canceled caller
			// context interrupted the wait. Treat all three as a
			// shutdown request and drain.
			a.beginShutdown()
		default:
			return errors.Wrap(err, "waiting for oplog data")
		}
	}
}

// applyBatch applies one batch, re-applying it per the error policy
// until it lands or the policy gives up.
func (a *Applier) applyBatch(ctx, waitCtx context.Context, batch Batch) error {
	ropts, retryable := a.opts.Policy.RetryOptions()
	var lastErr error
	for r := retry.StartWithCtx(waitCtx, ropts); r.Next(); {
		if lastErr != nil {
			a.metrics.Retries.Inc(1)
			if a.retryWarnEvery.ShouldLog() {
				log.Warningf(ctx, "re-applying batch ending at %s (retry %d): %v",
					batch.LastOpTime(), r.CurrentAttempt(), lastErr)
			}
		}
		lastErr = a.applyBatchOnce(ctx, batch)
		if lastErr == nil {
			return nil
		}
		if !retryable {
			return lastErr
		}
	}
	if lastErr == nil {
		// The retry loop never armed because the wait context was
		// already canceled. Apply once anyway: the batch has been
		// popped and must not be dropped.
		lastErr = a.applyBatchOnce(ctx, batch)
	}
	return lastErr
}

// applyBatchOnce runs one application attempt: record the batch in the
// local log, hand it to storage, then advance the watermark and the
// metrics.
func (a *Applier) applyBatchOnce(ctx context.Context, batch Batch) error {
	if lw := a.opts.LogWriter; lw != nil {
		if err := lw.Append(ctx, batch.Entries); err != nil {
			return errors.Wrapf(err, "recording batch ending at %s", batch.LastOpTime())
		}
	}
	start := timeutil.Now()
	last, err := a.opts.Storage.ApplyBatch(ctx, batch)
	if err != nil {
		return errors.Wrapf(err, "applying batch of %d entries ending at %s",
			batch.Len(), batch.LastOpTime())
	}
	elapsed := timeutil.Since(start)

	a.mu.Lock()
	if a.mu.lastApplied.Less(last) {
		a.mu.lastApplied = last
	}
	a.mu.Unlock()

	a.metrics.Batches.Inc(1)
	a.metrics.Ops.Inc(int64(batch.Len()))
	a.metrics.BatchBytes.RecordValue(batch.ByteSize)
	a.metrics.BatchEntries.RecordValue(int64(batch.Len()))
	a.metrics.ApplyNanos.RecordValue(elapsed.Nanoseconds())
	a.metrics.LastAppliedWallNanos.Update(last.Timestamp.WallTime)
	if stats, ok := a.opts.Buffer.(bufferStats); ok {
		a.metrics.BufferSizeBytes.Update(stats.SizeBytes())
		a.metrics.BufferEntries.Update(int64(stats.Len()))
	}
	log.VEventf(ctx, 2, "applied %d entries (%s) through %s in %s",
		batch.Len(), humanizeutil.IBytes(batch.ByteSize), last, elapsed)
	return nil
}
