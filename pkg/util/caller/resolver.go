// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package caller provides a cached lookup of the calling source location.
package caller

import (
	"path"
	"runtime"
	"strings"

	"github.com/cockroachdb/oplogrepl/pkg/util/syncutil"
)

type cachedLookup struct {
	file string
	line int
	fun  string
}

var dummyLookup = cachedLookup{file: "???", line: 1, fun: "???"}

// A CallResolver is a helping hand around runtime.Caller() to look up file,
// line and name of the calling function. CallResolver caches the results of
// its lookups per call site and strips the uninteresting prefix from both
// the caller's location and name.
type CallResolver struct {
	mu    syncutil.RWMutex
	cache map[uintptr]*cachedLookup
}

var defaultCallResolver = &CallResolver{cache: map[uintptr]*cachedLookup{}}

// Lookup returns the (reduced) file, line and function of the caller at the
// requested depth. Depth zero is the caller of Lookup itself.
func Lookup(depth int) (file string, line int, fun string) {
	return defaultCallResolver.Lookup(depth + 1)
}

// uninterestingPrefixes lists package path prefixes to strip from resolved
// locations, most specific first.
var uninterestingPrefixes = []string{
	"github.com/cockroachdb/oplogrepl/pkg/",
	"github.com/cockroachdb/oplogrepl/",
	"github.com/cockroachdb/",
}

// Lookup is the instance method version of the package-level Lookup.
func (cr *CallResolver) Lookup(depth int) (file string, line int, fun string) {
	pc, _, _, ok := runtime.Caller(depth + 1)
	if !ok {
		return dummyLookup.file, dummyLookup.line, dummyLookup.fun
	}
	cr.mu.RLock()
	v, hit := cr.cache[pc]
	cr.mu.RUnlock()
	if !hit {
		// The file and line reported by CallersFrames account for inlining,
		// which the raw runtime.Caller results do not.
		frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
		pkg, fn := parseFQFun(frame.Function)
		v = &cachedLookup{
			file: path.Join(pkg, path.Base(frame.File)),
			line: frame.Line,
			fun:  fn,
		}
		// Concurrent misses for the same pc compute identical values, so a
		// plain overwrite is fine.
		cr.mu.Lock()
		cr.cache[pc] = v
		cr.mu.Unlock()
	}
	return v.file, v.line, v.fun
}

// parseFQFun splits a fully-qualified function name, as returned by
// runtime.Frame.Function, into its package path and bare function name. The
// package path ends at the first period past the final slash; everything
// before a method name, receiver included, belongs to the function part.
func parseFQFun(fqFun string) (pkg string, fun string) {
	pkgEnd := strings.LastIndexByte(fqFun, '/') + 1
	if dot := strings.IndexByte(fqFun[pkgEnd:], '.'); dot >= 0 {
		pkgEnd += dot
	} else {
		return fqFun, dummyLookup.fun
	}
	pkg, fun = fqFun[:pkgEnd], fqFun[pkgEnd+1:]
	for _, prefix := range uninterestingPrefixes {
		if strings.HasPrefix(pkg, prefix) {
			pkg = pkg[len(prefix):]
			break
		}
	}
	return pkg, fun
}
