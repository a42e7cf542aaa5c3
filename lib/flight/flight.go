// Package flight collapses concurrent loads of the same key into one run
// that no single caller can cancel for the others.
package flight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when the shared run itself outlives its timeout.
var ErrTimeout = errors.New("flight: shared load timed out")

// Group is a singleflight.Group whose runs are detached from the caller that
// started them. Each caller still stops waiting when its own context is done.
// The zero value uses DefaultTimeout.
type Group struct {
	Timeout time.Duration

	group singleflight.Group
}

// Do runs fn once per key among concurrent callers. fn gets a context that
// carries the first caller's values but not its cancellation, bounded by
// Timeout.
func (g *Group) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ch := g.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		v, err := fn(runCtx)
		if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, key, timeout)
		}
		return v, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
