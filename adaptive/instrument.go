package adaptive

import (
	"context"

	"github.com/arclane/ratelimitd"
)

// Instrument wraps inner so every hot-path decision also posts an Event to
// key's traffic ring and anomaly baseline - the "each check posts one event
// to a per-key ring in O(1)" ingestion path, decoupled from the decision
// logic itself. Same wrap-a-Limiter shape as metrics.Wrap. Keys never passed
// to Controller.Register are silently ignored.
func Instrument(inner ratelimitd.Limiter, c *Controller) ratelimitd.Limiter {
	return &instrumentedLimiter{inner: inner, controller: c}
}

type instrumentedLimiter struct {
	inner      ratelimitd.Limiter
	controller *Controller
}

func (l *instrumentedLimiter) Allow(ctx context.Context, key string) (*ratelimitd.Result, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *instrumentedLimiter) AllowN(ctx context.Context, key string, n int) (*ratelimitd.Result, error) {
	result, err := l.inner.AllowN(ctx, key, n)
	if err != nil {
		return result, err
	}
	l.controller.Observe(key, int64(n), result.Allowed)
	return result, nil
}

func (l *instrumentedLimiter) Reset(ctx context.Context, key string) error {
	return l.inner.Reset(ctx, key)
}
