// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync/atomic"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/oplogrepl/pkg/util/caller"
	"github.com/cockroachdb/oplogrepl/pkg/util/envutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/syncutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/timeutil"
	"github.com/cockroachdb/redact"
	"github.com/petermattis/goid"
)

// severity identifies the sort of log entry: info, warning etc. Higher
// severities have higher values.
type severity int

const (
	severityInfo severity = iota
	severityWarning
	severityError
	severityFatal
)

// severityChar contains one shorthand letter per severity, indexed by the
// severity value.
const severityChar = "IWEF"

type loggingT struct {
	mu struct {
		syncutil.Mutex
		// sink receives formatted log entries. Defaults to stderr; tests
		// redirect it via TestLogScope.
		sink io.Writer
		// exitFn is called after a fatal entry has been flushed.
		exitFn func(code int)
	}
	// vLevel is the active verbosity level, read by V. Atomic so that hot
	// paths do not take the mutex just to decide not to log.
	vLevel int32
}

var logging = newLogging()

func newLogging() *loggingT {
	l := &loggingT{}
	l.mu.sink = os.Stderr
	l.mu.exitFn = os.Exit
	l.vLevel = int32(envutil.EnvOrDefaultInt("OPLOGREPL_VERBOSITY", 0))
	return l
}

// V returns true if the verbosity is at or above the requested level.
// Messages guarded by V(n) for n >= 1 are debug detail and are suppressed by
// default.
func V(level int32) bool {
	return VDepth(level, 1)
}

// VDepth is like V, taking the depth of the caller requesting the check.
// The depth is unused today but keeps call sites stable should per-file
// verbosity overrides return.
func VDepth(level int32, depth int) bool {
	_ = depth
	return atomic.LoadInt32(&logging.vLevel) >= level
}

// SetVerbosity sets the verbosity level for V and returns the previous
// setting.
func SetVerbosity(level int32) int32 {
	return atomic.SwapInt32(&logging.vLevel, level)
}

// logfDepth renders a log entry and sends it to the active sink. Fatal
// entries append the current goroutine's stack and terminate the process.
func logfDepth(
	ctx context.Context, depth int, sev severity, format string, args ...interface{},
) {
	file, line, _ := caller.Lookup(depth + 1)
	now := timeutil.Now()

	var buf bytes.Buffer
	year, month, day := now.Date()
	hour, minute, second := now.Clock()
	fmt.Fprintf(&buf, "%c%02d%02d%02d %02d:%02d:%02d.%06d %d %s:%d  ",
		severityChar[sev], year%100, int(month), day,
		hour, minute, second, now.Nanosecond()/1000,
		goid.Get(), file, line)
	if tags := logtags.FromContext(ctx); tags != nil {
		fmt.Fprintf(&buf, "[%s] ", tags)
	}
	var msg redact.RedactableString
	if len(args) == 0 {
		msg = redact.Sprint(redact.Safe(format))
	} else {
		msg = redact.Sprintf(format, args...)
	}
	buf.WriteString(string(msg.StripMarkers()))
	if sev == severityFatal {
		buf.WriteString("\n")
		buf.Write(debug.Stack())
	}
	buf.WriteByte('\n')

	logging.mu.Lock()
	_, _ = logging.mu.sink.Write(buf.Bytes())
	exitFn := logging.mu.exitFn
	logging.mu.Unlock()

	if sev == severityFatal {
		exitFn(255)
	}
}
