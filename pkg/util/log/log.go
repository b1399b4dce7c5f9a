// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log provides severity-leveled, context-tagged logging in the
// familiar glog-derived line format:
//
//	I250812 09:01:15.312452 17 repl/oplogapply/applier.go:201  [apply] ...
//
// Log tags attached to the context via logtags.AddTag are rendered between
// brackets before the message. Formatting is redaction-aware: arguments pass
// through the redact package so that types implementing SafeFormatter or
// SafeValue render their safe representation.
package log

import "context"

// Infof logs to the INFO log. Arguments are handled in the manner of
// fmt.Printf.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityInfo, format, args...)
}

// InfofDepth logs to the INFO log, reporting the caller depth frames up the
// stack.
func InfofDepth(ctx context.Context, depth int, format string, args ...interface{}) {
	logfDepth(ctx, depth+1, severityInfo, format, args...)
}

// Info logs to the INFO log.
func Info(ctx context.Context, msg string) {
	logfDepth(ctx, 1, severityInfo, msg)
}

// Warningf logs to the WARNING log. Arguments are handled in the manner of
// fmt.Printf.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityWarning, format, args...)
}

// Warning logs to the WARNING log.
func Warning(ctx context.Context, msg string) {
	logfDepth(ctx, 1, severityWarning, msg)
}

// Errorf logs to the ERROR log. Arguments are handled in the manner of
// fmt.Printf.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityError, format, args...)
}

// ErrorfDepth logs to the ERROR log, reporting the caller depth frames up
// the stack.
func ErrorfDepth(ctx context.Context, depth int, format string, args ...interface{}) {
	logfDepth(ctx, depth+1, severityError, format, args...)
}

// Error logs to the ERROR log.
func Error(ctx context.Context, msg string) {
	logfDepth(ctx, 1, severityError, msg)
}

// Fatalf logs to the FATAL log, including the goroutine's stack, and then
// terminates the process. Arguments are handled in the manner of fmt.Printf.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityFatal, format, args...)
}

// FatalfDepth logs to the FATAL log, reporting the caller depth frames up
// the stack, and then terminates the process.
func FatalfDepth(ctx context.Context, depth int, format string, args ...interface{}) {
	logfDepth(ctx, depth+1, severityFatal, format, args...)
}

// VEventf logs to the INFO log when the verbosity is at or above the
// requested level. Arguments are handled in the manner of fmt.Printf.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if VDepth(level, 1) {
		logfDepth(ctx, 1, severityInfo, format, args...)
	}
}
