package gateway

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// refreshCoordinator allows at most one refresh in flight. Callers arriving
// while it runs join it and share its outcome.
type refreshCoordinator struct {
	group   singleflight.Group
	run     func(ctx context.Context, sent string) (string, error)
	timeout time.Duration
	onJoin  func()
}

// acquireOrJoin starts a refresh or waits on the one in flight. sent is the
// access token the starting caller was rejected with. The refresh itself is
// detached from ctx; a cancelled caller stops waiting but the refresh still
// completes and persists its result.
func (c *refreshCoordinator) acquireOrJoin(ctx context.Context, sent string) (string, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.run(rctx, sent)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared && c.onJoin != nil {
			c.onJoin()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
