// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package stop provides the Stopper, which coordinates the startup and
// graceful shutdown of a group of long-running workers.
package stop

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/oplogrepl/pkg/util/log"
	"github.com/cockroachdb/oplogrepl/pkg/util/syncutil"
)

// ErrUnavailable indicates that the stopper is quiescing and is unable to
// accept new work.
var ErrUnavailable = errors.New("quiescing")

// Closer is an interface for objects to attach to the stopper to be closed
// once the stopper completes.
type Closer interface {
	Close()
}

// CloserFn is a type that allows any function to be a Closer.
type CloserFn func()

// Close implements the Closer interface.
func (f CloserFn) Close() {
	f()
}

// A Stopper provides control over the lifecycle of goroutines started through
// it via its RunTask and RunAsyncTask methods.
//
// When Stop is invoked, the Stopper:
//
//   - it invokes Quiesce, which causes the Stopper to refuse new work (that
//     is, its Run* family of methods starts returning ErrUnavailable), closes
//     the channel returned by ShouldQuiesce, cancels all contexts obtained
//     from WithCancelOnQuiesce, and blocks until no more tasks are tracked,
//     then
//   - it runs all of the methods supplied to AddCloser, then
//   - closes the IsStopped channel.
//
// When ShouldQuiesce closes, worker goroutines should perform any necessary
// cleanup and exit promptly; a task that blocks forever will wedge Stop.
type Stopper struct {
	quiescer chan struct{} // closed when quiescing
	stopped  chan struct{} // closed when stopped completely
	stopOnce sync.Once

	mu struct {
		syncutil.Mutex
		// quiesce is signaled whenever numTasks drops to zero or quiescing
		// flips to true.
		quiesce   sync.Cond
		quiescing bool
		numTasks  int
		closers   []Closer
		cancelID  int
		qCancels  map[int]context.CancelFunc
	}
}

// NewStopper returns an instance of Stopper.
func NewStopper() *Stopper {
	s := &Stopper{
		quiescer: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.mu.quiesce.L = &s.mu.Mutex
	s.mu.qCancels = map[int]context.CancelFunc{}
	return s
}

// RunTask adds one to the count of tasks left to quiesce in the system. Any
// worker that will be launched or that will wait for external events must
// call RunTask before starting work, so that a graceful shutdown knows to
// wait for it. taskName appears as a log tag on entries the task emits.
func (s *Stopper) RunTask(ctx context.Context, taskName string, f func(context.Context)) error {
	if !s.runPrelude() {
		return ErrUnavailable
	}
	defer s.runPostlude()
	f(logtags.AddTag(ctx, taskName, nil))
	return nil
}

// RunAsyncTask is like RunTask, except the callback f is run in a goroutine.
// The call to RunAsyncTask returns as soon as the task has been accepted.
func (s *Stopper) RunAsyncTask(
	ctx context.Context, taskName string, f func(context.Context),
) error {
	if !s.runPrelude() {
		return ErrUnavailable
	}
	ctx = logtags.AddTag(ctx, taskName, nil)
	go func() {
		defer s.runPostlude()
		f(ctx)
	}()
	return nil
}

func (s *Stopper) runPrelude() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		return false
	}
	s.mu.numTasks++
	return true
}

func (s *Stopper) runPostlude() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.numTasks--
	s.mu.quiesce.Broadcast()
}

// NumTasks returns the number of active tasks.
func (s *Stopper) NumTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.numTasks
}

// AddCloser adds an object to close after the stopper has been stopped. If
// the stopper has already begun quiescing, the object is closed immediately.
func (s *Stopper) AddCloser(c Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		c.Close()
		return
	}
	s.mu.closers = append(s.mu.closers, c)
}

// WithCancelOnQuiesce returns a child context which is canceled when the
// Stopper begins to quiesce. The returned cancellation function releases the
// registration and should be called when the context is no longer needed,
// like context.CancelFunc.
func (s *Stopper) WithCancelOnQuiesce(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		cancel()
		return ctx, func() {}
	}
	id := s.mu.cancelID
	s.mu.cancelID++
	s.mu.qCancels[id] = cancel
	return ctx, func() {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.mu.qCancels, id)
	}
}

// ShouldQuiesce returns a channel which will be closed when Stop has been
// invoked and outstanding tasks should begin to quiesce.
func (s *Stopper) ShouldQuiesce() <-chan struct{} {
	if s == nil {
		// A nil stopper will never signal ShouldQuiesce, but will also never
		// panic.
		return nil
	}
	return s.quiescer
}

// IsStopped returns a channel which will be closed after Stop has been
// invoked to full completion, meaning all workers have completed and all
// closers have been closed.
func (s *Stopper) IsStopped() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.stopped
}

// Quiesce moves the stopper to state quiescing, cancels the contexts handed
// out by WithCancelOnQuiesce, and waits until all tasks complete.
func (s *Stopper) Quiesce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mu.quiescing {
		s.mu.quiescing = true
		close(s.quiescer)
		for id, cancel := range s.mu.qCancels {
			cancel()
			delete(s.mu.qCancels, id)
		}
		s.mu.quiesce.Broadcast()
	}
	if s.mu.numTasks > 0 {
		log.Infof(ctx, "quiescing; tasks left: %d", s.mu.numTasks)
	}
	for s.mu.numTasks > 0 {
		s.mu.quiesce.Wait()
	}
}

// Stop signals all live workers to stop and then waits for each to confirm it
// has stopped. Stop is idempotent.
func (s *Stopper) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.Quiesce(ctx)
		s.mu.Lock()
		closers := s.mu.closers
		s.mu.closers = nil
		s.mu.Unlock()
		// Closers run in reverse order of registration, mirroring defer.
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		close(s.stopped)
	})
	<-s.stopped
}
