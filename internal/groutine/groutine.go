// Package groutine starts goroutines carrying a pprof "goroutine_name" label,
// so profiles and stack dumps show which voltlog stage owns them.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a named goroutine derived from parentCtx.
// If parentCtx is nil, context.Background() is used.
//
//	groutine.Go(ctx, "ble-connection-monitor", func(ctx context.Context) {
//	    <-ctx.Done()
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GoResult runs fn like Go and delivers its result on the returned channel.
// The channel is buffered so the goroutine never blocks on an abandoned receiver.
func GoResult[T any](parentCtx context.Context, name string, fn func(ctx context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	Go(parentCtx, name, func(ctx context.Context) {
		v, err := fn(ctx)
		out <- Result[T]{Value: v, Err: err}
	})
	return out
}

// Result carries the outcome of a GoResult goroutine
type Result[T any] struct {
	Value T
	Err   error
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
