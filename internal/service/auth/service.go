package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wasmgate/internal/domain"
	"wasmgate/internal/repository"
	"wasmgate/pkg/crypto"
)

// Resolution failures surfaced to the caller. None of these are retried
// internally.
var (
	ErrNotFound = errors.New("unknown API key")
	ErrRevoked  = errors.New("API key revoked")
	ErrExpired  = errors.New("API key expired")
)

const (
	touchTimeout    = 3 * time.Second
	maxCacheEntries = 4096
)

// Service resolves an opaque client secret to a tenant credential and its
// tier limits. Lookups go through a short-TTL cache keyed by secret digest.
type Service struct {
	credentials repository.CredentialRepository
	tiers       repository.TierRepository
	logger      *slog.Logger
	cacheTTL    time.Duration
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	credential domain.Credential
	limits     domain.TierLimits
	expiresAt  time.Time
}

// New constructs a resolver service.
func New(credentials repository.CredentialRepository, tiers repository.TierRepository, logger *slog.Logger, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		credentials: credentials,
		tiers:       tiers,
		logger:      logger,
		cacheTTL:    cacheTTL,
		now:         time.Now,
		cache:       make(map[string]cacheEntry),
	}
}

// Resolve maps a client secret to its credential and tier limits. The secret
// is digested before lookup, so neither the store nor the cache ever holds a
// reversible credential. A best-effort last-used update runs asynchronously
// and cannot fail the resolution.
func (s *Service) Resolve(ctx context.Context, secret string) (domain.Credential, domain.TierLimits, error) {
	digest := crypto.DigestSecret(secret)
	now := s.now()

	if entry, ok := s.cached(digest, now); ok {
		if err := checkUsable(entry.credential, now); err != nil {
			return domain.Credential{}, domain.TierLimits{}, err
		}
		s.touchAsync(entry.credential)
		return entry.credential, entry.limits, nil
	}

	credential, err := s.credentials.GetCredentialByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Credential{}, domain.TierLimits{}, ErrNotFound
		}
		return domain.Credential{}, domain.TierLimits{}, fmt.Errorf("credential lookup: %w", err)
	}
	if err := checkUsable(*credential, now); err != nil {
		return domain.Credential{}, domain.TierLimits{}, err
	}

	tier, err := s.tiers.GetTierByID(ctx, credential.TierID)
	if err != nil {
		return domain.Credential{}, domain.TierLimits{}, fmt.Errorf("tier lookup: %w", err)
	}
	if err := tier.Limits.Validate(); err != nil {
		return domain.Credential{}, domain.TierLimits{}, fmt.Errorf("tier %q misconfigured: %w", tier.Name, err)
	}

	s.store(digest, *credential, tier.Limits, now)
	s.touchAsync(*credential)
	return *credential, tier.Limits, nil
}

func checkUsable(credential domain.Credential, now time.Time) error {
	if !credential.Active {
		return ErrRevoked
	}
	if credential.Expired(now) {
		return ErrExpired
	}
	return nil
}

func (s *Service) cached(digest string, now time.Time) (cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[digest]
	if !ok || now.After(entry.expiresAt) {
		delete(s.cache, digest)
		return cacheEntry{}, false
	}
	return entry, true
}

func (s *Service) store(digest string, credential domain.Credential, limits domain.TierLimits, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) >= maxCacheEntries {
		for key, entry := range s.cache {
			if now.After(entry.expiresAt) {
				delete(s.cache, key)
			}
		}
		if len(s.cache) >= maxCacheEntries {
			s.cache = make(map[string]cacheEntry)
		}
	}
	s.cache[digest] = cacheEntry{credential: credential, limits: limits, expiresAt: now.Add(s.cacheTTL)}
}

// Invalidate drops a cached credential, used after revocation so the change
// takes effect before the TTL lapses on this instance.
func (s *Service) Invalidate(secretHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, secretHash)
}

func (s *Service) touchAsync(credential domain.Credential) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := s.credentials.TouchCredentialLastUsed(ctx, credential.ID); err != nil {
			s.logger.Debug("last-used update failed", "key_id", credential.ID, "error", err)
		}
	}()
}
