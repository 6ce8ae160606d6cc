package apikey

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"wasmgate/internal/domain"
	"wasmgate/internal/repository"
	"wasmgate/pkg/crypto"
)

type stubStore struct {
	tiers   map[string]domain.Tier
	created []domain.Credential
	revoked []uuid.UUID
}

type stubCache struct {
	invalidated []string
}

func (c *stubCache) Invalidate(secretHash string) {
	c.invalidated = append(c.invalidated, secretHash)
}

func newStubStore() *stubStore {
	return &stubStore{tiers: make(map[string]domain.Tier)}
}

func (s *stubStore) CreateCredential(_ context.Context, credential *domain.Credential) error {
	s.created = append(s.created, *credential)
	return nil
}

func (s *stubStore) GetCredentialByHash(_ context.Context, _ string) (*domain.Credential, error) {
	return nil, repository.ErrNotFound
}

func (s *stubStore) TouchCredentialLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *stubStore) RevokeCredential(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	for i := range s.created {
		if s.created[i].ID == id {
			s.created[i].Active = false
			s.revoked = append(s.revoked, id)
			credential := s.created[i]
			return &credential, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubStore) ListCredentials(_ context.Context) ([]domain.Credential, error) {
	return s.created, nil
}

func (s *stubStore) GetTierByID(_ context.Context, _ uuid.UUID) (*domain.Tier, error) {
	return nil, repository.ErrNotFound
}

func (s *stubStore) GetTierByName(_ context.Context, name string) (*domain.Tier, error) {
	tier, ok := s.tiers[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tier, nil
}

func testService(store *stubStore, cache CacheInvalidator) *Service {
	return New(store, store, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIssueStoresOnlyDigest(t *testing.T) {
	store := newStubStore()
	store.tiers["free"] = domain.Tier{ID: uuid.New(), Name: "free"}
	svc := testService(store, nil)

	issued, err := svc.Issue(context.Background(), "free", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Secret == "" {
		t.Fatal("issued key missing plaintext secret")
	}
	if len(store.created) != 1 {
		t.Fatalf("credentials stored = %d, want 1", len(store.created))
	}

	stored := store.created[0]
	if stored.SecretHash == issued.Secret {
		t.Fatal("plaintext secret persisted")
	}
	if stored.SecretHash != crypto.DigestSecret(issued.Secret) {
		t.Fatal("stored hash does not match secret digest")
	}
	if !stored.Active {
		t.Fatal("issued key not active")
	}
}

func TestIssueWithExpiry(t *testing.T) {
	store := newStubStore()
	store.tiers["pro"] = domain.Tier{ID: uuid.New(), Name: "pro"}
	svc := testService(store, nil)

	expiresAt := time.Now().Add(24 * time.Hour)
	issued, err := svc.Issue(context.Background(), "pro", &expiresAt)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Credential.ExpiresAt == nil || !issued.Credential.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expires at = %v, want %v", issued.Credential.ExpiresAt, expiresAt)
	}
}

func TestIssueUnknownTier(t *testing.T) {
	svc := testService(newStubStore(), nil)
	_, err := svc.Issue(context.Background(), "platinum", nil)
	if !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("err = %v, want ErrUnknownTier", err)
	}
}

func TestRevokeEvictsResolverCache(t *testing.T) {
	store := newStubStore()
	store.tiers["free"] = domain.Tier{ID: uuid.New(), Name: "free"}
	cache := &stubCache{}
	svc := testService(store, cache)

	issued, err := svc.Issue(context.Background(), "free", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke(context.Background(), issued.Credential.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(store.revoked) != 1 || store.revoked[0] != issued.Credential.ID {
		t.Fatalf("revoked = %v, want [%s]", store.revoked, issued.Credential.ID)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != issued.Credential.SecretHash {
		t.Fatalf("cache invalidations = %v, want the revoked key's digest", cache.invalidated)
	}
}

func TestRevokeUnknownKey(t *testing.T) {
	svc := testService(newStubStore(), &stubCache{})
	if err := svc.Revoke(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
