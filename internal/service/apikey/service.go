package apikey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wasmgate/internal/domain"
	"wasmgate/internal/repository"
	"wasmgate/pkg/crypto"
)

// ErrUnknownTier is returned when a key is issued against a tier that does
// not exist.
var ErrUnknownTier = errors.New("unknown tier")

// CacheInvalidator evicts a cached credential by its secret digest.
type CacheInvalidator interface {
	Invalidate(secretHash string)
}

// Service manages API key issuance and revocation for the admin surface.
type Service struct {
	credentials repository.CredentialRepository
	tiers       repository.TierRepository
	cache       CacheInvalidator
	logger      *slog.Logger
}

// IssuedKey couples a stored credential with its plaintext secret. The secret
// exists only in this value: it is returned to the caller exactly once and
// only its digest is persisted.
type IssuedKey struct {
	Credential domain.Credential
	Secret     string
}

// New constructs the service. The invalidator may be nil when no resolver
// cache runs in this process.
func New(credentials repository.CredentialRepository, tiers repository.TierRepository, cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{credentials: credentials, tiers: tiers, cache: cache, logger: logger}
}

// Issue creates a new API key on the named tier.
func (s *Service) Issue(ctx context.Context, tierName string, expiresAt *time.Time) (IssuedKey, error) {
	tier, err := s.tiers.GetTierByName(ctx, tierName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return IssuedKey{}, fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
		}
		return IssuedKey{}, fmt.Errorf("tier lookup: %w", err)
	}

	secret := uuid.NewString()
	now := time.Now().UTC()
	credential := domain.Credential{
		ID:         uuid.New(),
		SecretHash: crypto.DigestSecret(secret),
		TierID:     tier.ID,
		Active:     true,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.credentials.CreateCredential(ctx, &credential); err != nil {
		return IssuedKey{}, fmt.Errorf("store credential: %w", err)
	}
	s.logger.Info("api key issued", "key_id", credential.ID, "tier", tier.Name)
	return IssuedKey{Credential: credential, Secret: secret}, nil
}

// Revoke marks a key inactive and evicts it from the local resolver cache, so
// the revocation takes effect immediately on this instance. Other instances
// converge within their cache TTL.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	credential, err := s.credentials.RevokeCredential(ctx, id)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(credential.SecretHash)
	}
	s.logger.Info("api key revoked", "key_id", id)
	return nil
}

// List returns all credentials, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Credential, error) {
	return s.credentials.ListCredentials(ctx)
}
