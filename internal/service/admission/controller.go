package admission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wasmgate/internal/domain"
)

// QuotaStatus is the remaining-quota metadata surfaced alongside an allowed
// request.
type QuotaStatus struct {
	RemainingMinute int
	RemainingDay    int
	ResetsAt        time.Time
}

// LimitExceededError reports a denied request. RetryAfter is derived from the
// denying window's reset time and is safe to surface to the client.
type LimitExceededError struct {
	Window     WindowKind
	RetryAfter time.Duration
	ResetsAt   time.Time
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s window, retry after %s", e.Window, e.RetryAfter)
}

// Controller makes allow/deny decisions against fixed counting windows. It
// holds no counter state itself: the distributed backend owns the windows,
// and a local backend approximates them while the store is unreachable.
type Controller struct {
	backend     CounterBackend
	fallback    CounterBackend
	logger      *slog.Logger
	countDenied bool
	now         func() time.Time
}

// NewController builds a controller. The distributed backend may be nil, in
// which case all counting is local to this instance.
func NewController(backend, fallback CounterBackend, logger *slog.Logger, countDenied bool) *Controller {
	if fallback == nil {
		fallback = NewMemoryBackend(0)
	}
	return &Controller{
		backend:     backend,
		fallback:    fallback,
		logger:      logger,
		countDenied: countDenied,
		now:         time.Now,
	}
}

// Close releases both backends.
func (c *Controller) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
	c.fallback.Close()
}

type window struct {
	kind  WindowKind
	limit int
}

// CheckAndRecord counts the current request against every configured window
// and returns the remaining quota, or a LimitExceededError once a window
// denies. The minute window is checked first; after a denial no further
// window is incremented. By default the denied request itself stays counted,
// damping retry storms.
func (c *Controller) CheckAndRecord(ctx context.Context, tenant domain.TenantID, limits domain.TierLimits) (QuotaStatus, error) {
	now := c.now()
	windows := []window{
		{kind: WindowMinute, limit: limits.RequestsPerMinute},
		{kind: WindowDay, limit: limits.RequestsPerDay},
	}

	status := QuotaStatus{ResetsAt: now.Truncate(time.Minute).Add(time.Minute)}
	for _, w := range windows {
		span := w.kind.Duration()
		start := now.Truncate(span)
		end := start.Add(span)
		key := counterKey(tenant, w.kind, start)

		count, err := c.incr(ctx, key, span)
		if err != nil {
			return QuotaStatus{}, fmt.Errorf("admission counter for %s window: %w", w.kind, err)
		}

		if count > int64(w.limit) {
			observeDenial(w.kind)
			if !c.countDenied {
				if err := c.decr(ctx, key); err != nil {
					c.logger.Debug("denied-request compensation failed", "key", key, "error", err)
				}
			}
			return QuotaStatus{}, &LimitExceededError{
				Window:     w.kind,
				RetryAfter: end.Sub(now),
				ResetsAt:   end,
			}
		}

		remaining := w.limit - int(count)
		switch w.kind {
		case WindowMinute:
			status.RemainingMinute = remaining
		case WindowDay:
			status.RemainingDay = remaining
		}
	}
	return status, nil
}

// incr prefers the distributed backend and falls back to local counting only
// for calls that fail. The next request tries the distributed store again, so
// recovery needs no explicit migration.
func (c *Controller) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.backend != nil {
		count, err := c.backend.Incr(ctx, key, ttl)
		if err == nil {
			return count, nil
		}
		observeFallback()
		c.logger.Warn("counter store unreachable, counting locally", "key", key, "error", err)
	}
	return c.fallback.Incr(ctx, key, ttl)
}

func (c *Controller) decr(ctx context.Context, key string) error {
	if c.backend != nil {
		if err := c.backend.Decr(ctx, key); err == nil {
			return nil
		}
	}
	return c.fallback.Decr(ctx, key)
}
