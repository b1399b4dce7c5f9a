// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/oplogrepl/pkg/util/log"
	"github.com/cockroachdb/oplogrepl/pkg/util/retry"
	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
)

// DefaultSucceedsSoonDuration is the maximum amount of time unittests
// will wait for a condition to become true. See SucceedsSoon().
const DefaultSucceedsSoonDuration = 45 * time.Second

// SucceedsSoon fails the test (with t.Fatal) unless the supplied function
// runs without error within a preset maximum duration. The function is
// invoked immediately at first and then successively with an exponential
// backoff starting at 1ns and ending at DefaultSucceedsSoonDuration.
func SucceedsSoon(t testing.TB, fn func() error) {
	t.Helper()
	SucceedsWithin(t, fn, DefaultSucceedsSoonDuration)
}

// SucceedsSoonError returns an error unless the supplied function runs
// without error within a preset maximum duration.
func SucceedsSoonError(fn func() error) error {
	return SucceedsWithinError(fn, DefaultSucceedsSoonDuration)
}

// SucceedsWithin fails the test (with t.Fatal) unless the supplied function
// runs without error within the given duration.
func SucceedsWithin(t testing.TB, fn func() error, duration time.Duration) {
	t.Helper()
	if err := SucceedsWithinError(fn, duration); err != nil {
		t.Fatalf("condition failed to evaluate within %s: %s", duration, err)
	}
}

// SucceedsWithinError returns an error unless the supplied function runs
// without error within the given duration.
func SucceedsWithinError(fn func() error, duration time.Duration) error {
	tBegin := timeutil.Now()
	wrappedFn := func() error {
		err := fn()
		if timeutil.Since(tBegin) > 3*time.Second && err != nil {
			log.InfofDepth(context.Background(), 4, "SucceedsWithin: %v", err)
		}
		return err
	}
	return retry.ForDuration(duration, wrappedFn)
}
