// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package oplogapply

import "github.com/cockroachdb/oplogrepl/pkg/util/retry"

// ErrorPolicy decides how the apply loop responds to a failed batch
// application.
type ErrorPolicy interface {
	// RetryOptions returns the backoff schedule for re-applying a
	// failed batch. ok false means apply failures are immediately
	// fatal.
	RetryOptions() (opts retry.Options, ok bool)
}

// FailFast stops the apply loop on the first failed batch application.
type FailFast struct{}

// RetryOptions implements the ErrorPolicy interface.
func (FailFast) RetryOptions() (retry.Options, bool) {
	return retry.Options{}, false
}

// RetryWithBackoff re-applies a failed batch on an exponential backoff
// schedule. Options.MaxRetries bounds the re-applications; exhausting
// it is fatal. A zero MaxRetries retries until shutdown. The batch is
// re-applied whole each time, so application is at-least-once and a
// failed batch is never silently discarded.
type RetryWithBackoff struct {
	Options retry.Options
}

// RetryOptions implements the ErrorPolicy interface.
func (p RetryWithBackoff) RetryOptions() (retry.Options, bool) {
	return p.Options, true
}

var (
	_ ErrorPolicy = FailFast{}
	_ ErrorPolicy = RetryWithBackoff{}
)
