// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"io"
	"os"
	"path/filepath"
)

// TestLogScope represents the lifetime of a logging output. It ensures that
// the log entries emitted during a test land in a temporary file rather than
// on the test's stderr, and that the file is preserved for inspection when
// the test fails.
type TestLogScope struct {
	logDir string
	file   *os.File
	prev   io.Writer
}

// tShim is the part of testing.TB used by TestLogScope.
type tShim interface {
	Fatal(...interface{})
	Failed() bool
	Helper()
	Logf(string, ...interface{})
	Name() string
}

// Scope creates a TestLogScope which corresponds to the lifetime of a
// temporary logging directory. The logging directory is named after the
// calling test. The directory is removed when the scope is Closed, unless the
// test has failed, in which case its location is reported.
func Scope(t tShim) *TestLogScope {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "logscope")
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(tempDir, filepath.Base(t.Name())+".log"))
	if err != nil {
		t.Fatal(err)
	}
	sc := &TestLogScope{logDir: tempDir, file: f}

	logging.mu.Lock()
	sc.prev = logging.mu.sink
	logging.mu.sink = f
	logging.mu.Unlock()

	t.Logf("test logs captured to: %s", f.Name())
	return sc
}

// Close cleans up a TestLogScope. The directory and its contents are deleted,
// unless the test has failed and the directory is non-empty.
func (l *TestLogScope) Close(t tShim) {
	t.Helper()
	if l == nil {
		return
	}
	logging.mu.Lock()
	logging.mu.sink = l.prev
	logging.mu.Unlock()
	_ = l.file.Close()

	if t.Failed() {
		t.Logf("test logs left over in: %s", l.logDir)
	} else {
		_ = os.RemoveAll(l.logDir)
	}
}
