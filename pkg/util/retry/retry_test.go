// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestRetryExceedsMaxRetries(t *testing.T) {
	opts := Options{
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
		Multiplier:     2,
		MaxRetries:     3,
	}

	attempts := 0
	for r := Start(opts); r.Next(); attempts++ {
	}
	require.Equal(t, opts.MaxRetries+1, attempts)
}

func TestRetryReset(t *testing.T) {
	opts := Options{
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
		Multiplier:     2,
		MaxRetries:     1,
	}

	const expAttempts = 3

	attempts := 0
	// Backoff loop has 1 allowed retry; we always call Reset, so just exit
	// when we've seen the expected number of attempts.
	for r := Start(opts); r.Next(); attempts++ {
		if attempts == expAttempts {
			break
		}
		r.Reset()
	}
	require.Equal(t, expAttempts, attempts)
}

func TestRetryStopsOnClosedChannel(t *testing.T) {
	closer := make(chan struct{})
	close(closer)
	opts := Options{
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
		Closer:         closer,
	}

	attempts := 0
	for r := Start(opts); r.Next(); attempts++ {
	}
	// The first attempt is free; the backoff before the second blocks on the
	// closed channel and aborts.
	require.Equal(t, 1, attempts)
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := Options{
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	}

	attempts := 0
	for r := StartWithCtx(ctx, opts); r.Next(); attempts++ {
	}
	// A context canceled before the loop starts never arms the first attempt.
	require.Equal(t, 0, attempts)
}

func TestForDuration(t *testing.T) {
	remaining := 3
	err := ForDuration(10*time.Second, func() error {
		if remaining == 0 {
			return nil
		}
		remaining--
		return errors.New("try again")
	})
	require.NoError(t, err)
	require.Equal(t, 0, remaining)

	err = ForDuration(time.Microsecond, func() error {
		return errors.New("hopeless")
	})
	require.Error(t, err)
}
