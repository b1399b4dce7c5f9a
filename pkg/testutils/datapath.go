// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testutils

import (
	"path/filepath"
	"testing"
)

// TestDataPath returns a path under the calling package's testdata
// directory.
func TestDataPath(tb testing.TB, relative ...string) string {
	tb.Helper()
	return filepath.Join(append([]string{"testdata"}, relative...)...)
}
