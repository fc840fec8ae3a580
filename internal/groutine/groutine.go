package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine with a name, optional parent context.
// Example usage:
//
//	groutine.Go(ctx, "sim-pump-left", func(ctx context.Context) {
//	    // work
//	})
//
// The name appears as a pprof label, so long-lived pumps and drainers can be
// told apart in goroutine profiles. If parentCtx is nil, context.Background()
// is used.
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

// GoWG is Go with WaitGroup bookkeeping: Add before starting, Done when fn
// returns. Callers Wait on wg during teardown.
func GoWG(parentCtx context.Context, name string, wg *sync.WaitGroup, fn func(ctx context.Context)) {
	wg.Add(1)
	Go(parentCtx, name, func(ctx context.Context) {
		defer wg.Done()
		fn(ctx)
	})
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
