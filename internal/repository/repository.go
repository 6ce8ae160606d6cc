package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"wasmgate/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CredentialRepository provides API key persistence. Lookup is keyed by the
// secret digest only. RevokeCredential returns the revoked record so callers
// can evict resolver caches keyed by its secret digest.
type CredentialRepository interface {
	CreateCredential(ctx context.Context, credential *domain.Credential) error
	GetCredentialByHash(ctx context.Context, secretHash string) (*domain.Credential, error)
	TouchCredentialLastUsed(ctx context.Context, id uuid.UUID) error
	RevokeCredential(ctx context.Context, id uuid.UUID) (*domain.Credential, error)
	ListCredentials(ctx context.Context) ([]domain.Credential, error)
}

// TierRepository exposes the read-mostly tier catalog.
type TierRepository interface {
	GetTierByID(ctx context.Context, id uuid.UUID) (*domain.Tier, error)
	GetTierByName(ctx context.Context, name string) (*domain.Tier, error)
}

// UsageRepository appends execution usage records.
type UsageRepository interface {
	InsertUsageRecords(ctx context.Context, records []domain.UsageRecord) error
}

// MaintenanceRepository exposes the periodic housekeeping writes: usage log
// retention and expiry of overdue API keys.
type MaintenanceRepository interface {
	DeleteUsageRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeactivateExpiredCredentials(ctx context.Context, now time.Time) (int64, error)
}
