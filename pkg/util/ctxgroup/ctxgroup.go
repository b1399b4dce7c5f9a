// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package ctxgroup wraps golang.org/x/sync/errgroup with a context func.
//
// The motivation of this package is to pass the derived group context down
// into the worker closures by default, so that workers observe the
// cancellation triggered by a sibling's failure:
//
//	g := ctxgroup.WithContext(ctx)
//	g.GoCtx(func(ctx context.Context) error {
//		...
//	})
//	return g.Wait()
package ctxgroup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group wraps errgroup.
type Group struct {
	wrapped *errgroup.Group
	ctx     context.Context
}

// WithContext returns a new Group and an associated Context derived from ctx.
func WithContext(ctx context.Context) Group {
	grp, ctx := errgroup.WithContext(ctx)
	return Group{wrapped: grp, ctx: ctx}
}

// Wait blocks until all function calls from the Go method have returned, then
// returns the first non-nil error (if any) from them. If Wait() is invoked
// after the context (originally supplied to WithContext) is canceled, Wait
// returns an error, even if no Go invocation did.
func (g Group) Wait() error {
	err := g.wrapped.Wait()
	if err != nil {
		return err
	}
	return g.ctx.Err()
}

// GoCtx calls the given function in a new goroutine, passing the group's
// derived context.
func (g Group) GoCtx(f func(ctx context.Context) error) {
	g.wrapped.Go(func() error {
		return f(g.ctx)
	})
}
