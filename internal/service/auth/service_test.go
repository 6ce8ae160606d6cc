package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"wasmgate/internal/domain"
	"wasmgate/internal/repository"
	"wasmgate/pkg/crypto"
)

type stubStore struct {
	mu          sync.Mutex
	credentials map[string]domain.Credential
	tiers       map[uuid.UUID]domain.Tier
	lookups     int
	touched     chan uuid.UUID
}

func newStubStore() *stubStore {
	return &stubStore{
		credentials: make(map[string]domain.Credential),
		tiers:       make(map[uuid.UUID]domain.Tier),
		touched:     make(chan uuid.UUID, 16),
	}
}

func (s *stubStore) CreateCredential(_ context.Context, credential *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[credential.SecretHash] = *credential
	return nil
}

func (s *stubStore) GetCredentialByHash(_ context.Context, secretHash string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	credential, ok := s.credentials[secretHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &credential, nil
}

func (s *stubStore) TouchCredentialLastUsed(_ context.Context, id uuid.UUID) error {
	select {
	case s.touched <- id:
	default:
	}
	return nil
}

func (s *stubStore) RevokeCredential(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, credential := range s.credentials {
		if credential.ID == id {
			credential.Active = false
			s.credentials[hash] = credential
			return &credential, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubStore) ListCredentials(_ context.Context) ([]domain.Credential, error) {
	return nil, nil
}

func (s *stubStore) GetTierByID(_ context.Context, id uuid.UUID) (*domain.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.tiers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tier, nil
}

func (s *stubStore) GetTierByName(_ context.Context, name string) (*domain.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tier := range s.tiers {
		if tier.Name == name {
			return &tier, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *stubStore) addKey(secret string, active bool, expiresAt *time.Time) domain.Credential {
	tier := domain.Tier{
		ID:   uuid.New(),
		Name: "free",
		Limits: domain.TierLimits{
			RequestsPerMinute: 10, RequestsPerDay: 500, MaxMemoryMB: 64, MaxExecutionSeconds: 5,
		},
	}
	credential := domain.Credential{
		ID:         uuid.New(),
		SecretHash: crypto.DigestSecret(secret),
		TierID:     tier.ID,
		Active:     active,
		ExpiresAt:  expiresAt,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tier.ID] = tier
	s.credentials[credential.SecretHash] = credential
	return credential
}

func testService(store *stubStore, ttl time.Duration) *Service {
	return New(store, store, slog.New(slog.NewTextHandler(io.Discard, nil)), ttl)
}

func TestResolveReturnsCredentialAndLimits(t *testing.T) {
	store := newStubStore()
	want := store.addKey("secret-1", true, nil)
	svc := testService(store, time.Minute)

	credential, limits, err := svc.Resolve(context.Background(), "secret-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if credential.ID != want.ID {
		t.Fatalf("credential ID = %s, want %s", credential.ID, want.ID)
	}
	if limits.RequestsPerMinute != 10 || limits.MaxMemoryMB != 64 {
		t.Fatalf("limits = %+v, want free tier limits", limits)
	}
}

func TestResolveUnknownSecret(t *testing.T) {
	svc := testService(newStubStore(), time.Minute)
	_, _, err := svc.Resolve(context.Background(), "no-such-key")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveRevokedSecret(t *testing.T) {
	store := newStubStore()
	store.addKey("revoked-key", false, nil)
	svc := testService(store, time.Minute)

	_, _, err := svc.Resolve(context.Background(), "revoked-key")
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v, want ErrRevoked", err)
	}
}

func TestResolveExpiredSecret(t *testing.T) {
	store := newStubStore()
	past := time.Now().Add(-time.Hour)
	store.addKey("expired-key", true, &past)
	svc := testService(store, time.Minute)

	_, _, err := svc.Resolve(context.Background(), "expired-key")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestResolveCachesByDigest(t *testing.T) {
	store := newStubStore()
	store.addKey("cached-key", true, nil)
	svc := testService(store, time.Minute)

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Resolve(context.Background(), "cached-key"); err != nil {
			t.Fatalf("resolve %d: %v", i+1, err)
		}
	}
	if got := store.lookupCount(); got != 1 {
		t.Fatalf("store lookups = %d, want 1 (cache hit on repeats)", got)
	}
}

func TestResolveCacheExpiry(t *testing.T) {
	store := newStubStore()
	store.addKey("ttl-key", true, nil)
	svc := testService(store, 30*time.Second)
	base := time.Now()
	svc.now = func() time.Time { return base }

	svc.Resolve(context.Background(), "ttl-key")
	svc.now = func() time.Time { return base.Add(time.Minute) }
	svc.Resolve(context.Background(), "ttl-key")

	if got := store.lookupCount(); got != 2 {
		t.Fatalf("store lookups = %d, want 2 after TTL lapse", got)
	}
}

func TestResolveExpiryEnforcedOnCachedEntry(t *testing.T) {
	store := newStubStore()
	expiresAt := time.Now().Add(30 * time.Second)
	store.addKey("soon-expired", true, &expiresAt)
	svc := testService(store, time.Hour)
	base := time.Now()
	svc.now = func() time.Time { return base }

	if _, _, err := svc.Resolve(context.Background(), "soon-expired"); err != nil {
		t.Fatalf("resolve before expiry: %v", err)
	}

	// The cache entry is still fresh, but the key itself has expired.
	svc.now = func() time.Time { return base.Add(time.Minute) }
	_, _, err := svc.Resolve(context.Background(), "soon-expired")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired from cached entry", err)
	}
}

func TestResolveTouchesLastUsed(t *testing.T) {
	store := newStubStore()
	want := store.addKey("touch-key", true, nil)
	svc := testService(store, time.Minute)

	if _, _, err := svc.Resolve(context.Background(), "touch-key"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	select {
	case id := <-store.touched:
		if id != want.ID {
			t.Fatalf("touched ID = %s, want %s", id, want.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("last-used update never ran")
	}
}

func TestInvalidateDropsCachedEntry(t *testing.T) {
	store := newStubStore()
	credential := store.addKey("inv-key", true, nil)
	svc := testService(store, time.Hour)

	svc.Resolve(context.Background(), "inv-key")
	svc.Invalidate(credential.SecretHash)
	svc.Resolve(context.Background(), "inv-key")

	if got := store.lookupCount(); got != 2 {
		t.Fatalf("store lookups = %d, want 2 after invalidation", got)
	}
}
