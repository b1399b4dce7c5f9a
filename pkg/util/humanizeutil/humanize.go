// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package humanizeutil

import (
	"fmt"
	"math"

	"github.com/cockroachdb/redact"
	"github.com/dustin/go-humanize"
)

// IBytes is an int64 version of humanize.IBytes.
func IBytes(value int64) redact.SafeString {
	if value < 0 {
		return redact.SafeString(fmt.Sprintf("-%s", humanize.IBytes(uint64(-value))))
	}
	return redact.SafeString(humanize.IBytes(uint64(value)))
}

// ParseBytes is an int64 version of humanize.ParseBytes.
func ParseBytes(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("parsing \"\": invalid syntax")
	}
	u, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("parsing %q: too large for int64", s)
	}
	return int64(u), nil
}

// Count formats a unitless integer value with a thousands separator.
func Count(value int64) redact.SafeString {
	if value < 0 {
		return redact.SafeString(fmt.Sprintf("-%s", humanize.Comma(-value)))
	}
	return redact.SafeString(humanize.Comma(value))
}
