package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is an append-only log entry derived from one execution outcome.
// Records are write-once: nothing mutates them after construction.
type UsageRecord struct {
	ID           uuid.UUID
	TenantID     TenantID
	Timestamp    time.Time
	Status       OutcomeStatus
	DurationMS   int64
	PeakMemoryMB int
	ErrorMessage string
	ModuleBytes  int
	InputBytes   int
}

// NewUsageRecord derives a usage record from an outcome plus request metadata.
func NewUsageRecord(tenant TenantID, outcome Outcome, moduleBytes, inputBytes int) UsageRecord {
	return UsageRecord{
		ID:           uuid.New(),
		TenantID:     tenant,
		Timestamp:    time.Now().UTC(),
		Status:       outcome.Status,
		DurationMS:   outcome.Duration.Milliseconds(),
		PeakMemoryMB: outcome.PeakMemoryMB,
		ErrorMessage: outcome.Reason,
		ModuleBytes:  moduleBytes,
		InputBytes:   inputBytes,
	}
}
