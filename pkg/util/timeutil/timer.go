// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package timeutil

import (
	"sync"
	"time"
)

var timerPool = sync.Pool{
	New: func() interface{} {
		return &Timer{}
	},
}

// The Timer type represents a single event. When the Timer expires, the
// current time will be sent on Timer.C.
//
// This timer implementation is an abstraction around the standard library's
// time.Timer that provides a pool of timer objects and fixes the semantics
// around Reset. Compared to the standard library, users of this Timer must
// set Timer.Read to true whenever they have read from the Timer's channel,
// so that a following Reset can decide whether the channel still needs to be
// drained. A Timer is used like:
//
//	var timer timeutil.Timer
//	defer timer.Stop()
//	for {
//		timer.Reset(wait)
//		select {
//		case <-timer.C:
//			timer.Read = true
//			...
//		case <-ctx.Done():
//			return ctx.Err()
//		}
//	}
//
// Note that unlike the standard library's Timer type, this Timer will
// not begin counting down until Reset is called for the first time, as
// there is no constructor equivalent to NewTimer.
type Timer struct {
	timer *time.Timer
	// C is a local "copy" of timer.C that can be used in a select case before
	// the timer has been initialized (via a call to Reset).
	C    <-chan time.Time
	Read bool
}

// NewTimer allocates a new timer from the pool.
func NewTimer() *Timer {
	return timerPool.Get().(*Timer)
}

// Reset changes the timer to expire after duration d and returns the new
// value of the timer. Reset cannot race with a read from the timer's channel;
// the expected usage pattern is a single goroutine selecting on C and calling
// Reset between selects.
func (t *Timer) Reset(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		t.C = t.timer.C
		return
	}
	if !t.timer.Stop() && !t.Read {
		<-t.C
	}
	t.timer.Reset(d)
	t.Read = false
}

// Stop prevents the Timer from firing. It returns true if the call stops the
// timer, false if the timer has already expired, been stopped previously, or
// had never been initialized with a call to Reset. Stop does not close the
// channel, to prevent a read from the channel succeeding incorrectly. Stop
// also zeroes the timer and returns it to the pool; it must not be used
// again.
func (t *Timer) Stop() bool {
	var res bool
	if t.timer != nil {
		res = t.timer.Stop()
	}
	*t = Timer{}
	timerPool.Put(t)
	return res
}
