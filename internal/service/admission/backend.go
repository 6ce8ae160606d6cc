package admission

import (
	"context"
	"fmt"
	"time"

	"wasmgate/internal/domain"
)

// WindowKind names a fixed counting window.
type WindowKind string

const (
	WindowMinute WindowKind = "minute"
	WindowDay    WindowKind = "day"
)

// Duration returns the span of the window.
func (k WindowKind) Duration() time.Duration {
	switch k {
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// CounterBackend is the capability the controller counts against. Only
// single-round-trip atomic operations are exposed: a read-then-write pair
// would race across service instances.
type CounterBackend interface {
	// Incr atomically increments the counter and returns the new value.
	// The TTL is applied when the counter is created, so exhausted windows
	// self-clean without a sweep.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Decr compensates one increment. Used only when denied requests are
	// configured not to count toward the window.
	Decr(ctx context.Context, key string) error
	Close()
}

// counterKey builds the canonical key for (tenant, window kind, window start).
// The start timestamp is part of the key, so a counter can never leak into
// the next window even if its TTL outlives it.
func counterKey(tenant domain.TenantID, kind WindowKind, start time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", kind, tenant, start.Unix())
}
