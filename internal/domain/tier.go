package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TierLimits bundles the quota and resource ceilings of a subscription tier.
// All fields must be positive and RequestsPerDay must not be below
// RequestsPerMinute.
type TierLimits struct {
	RequestsPerMinute   int
	RequestsPerDay      int
	MaxMemoryMB         int
	MaxExecutionSeconds int
}

// Validate checks the tier limit invariants.
func (l TierLimits) Validate() error {
	if l.RequestsPerMinute <= 0 || l.RequestsPerDay <= 0 || l.MaxMemoryMB <= 0 || l.MaxExecutionSeconds <= 0 {
		return fmt.Errorf("tier limits must be positive: %+v", l)
	}
	if l.RequestsPerDay < l.RequestsPerMinute {
		return fmt.Errorf("requests per day (%d) below requests per minute (%d)", l.RequestsPerDay, l.RequestsPerMinute)
	}
	return nil
}

// MaxExecutionTime returns the tier's execution ceiling as a duration.
func (l TierLimits) MaxExecutionTime() time.Duration {
	return time.Duration(l.MaxExecutionSeconds) * time.Second
}

// Tier is a named subscription tier row.
type Tier struct {
	ID        uuid.UUID
	Name      string
	Limits    TierLimits
	CreatedAt time.Time
	UpdatedAt time.Time
}
