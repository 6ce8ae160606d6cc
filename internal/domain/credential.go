package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantID identifies the holder of a credential for the lifetime of one
// request. It is resolved once and never re-derived mid-pipeline.
type TenantID = uuid.UUID

// Credential is an API key record. Only the SHA-256 digest of the secret is
// ever stored; the plaintext is unrecoverable.
type Credential struct {
	ID         uuid.UUID
	SecretHash string
	TierID     uuid.UUID
	Active     bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the credential has an expiry in the past.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
