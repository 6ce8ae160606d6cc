package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type stubMaintenanceRepo struct {
	mu          sync.Mutex
	purgeCutoff []time.Time
	expireAt    []time.Time
	purgeErr    error
	swept       chan struct{}
}

func newStubMaintenanceRepo() *stubMaintenanceRepo {
	return &stubMaintenanceRepo{swept: make(chan struct{}, 16)}
}

func (s *stubMaintenanceRepo) DeleteUsageRecordsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purgeErr != nil {
		return 0, s.purgeErr
	}
	s.purgeCutoff = append(s.purgeCutoff, cutoff)
	return 3, nil
}

func (s *stubMaintenanceRepo) DeactivateExpiredCredentials(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	s.expireAt = append(s.expireAt, now)
	s.mu.Unlock()
	select {
	case s.swept <- struct{}{}:
	default:
	}
	return 1, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	repo := newStubMaintenanceRepo()
	s := New(repo, discardLogger(), time.Hour, 30*24*time.Hour)
	defer s.Close()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Sweep(context.Background())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.purgeCutoff) != 1 || !repo.purgeCutoff[0].Equal(now.Add(-30*24*time.Hour)) {
		t.Fatalf("purge cutoffs = %v, want one at now minus 30 days", repo.purgeCutoff)
	}
	if len(repo.expireAt) != 1 || !repo.expireAt[0].Equal(now) {
		t.Fatalf("expiry sweeps = %v, want one at now", repo.expireAt)
	}
}

func TestSweepContinuesPastPurgeFailure(t *testing.T) {
	repo := newStubMaintenanceRepo()
	repo.purgeErr = errors.New("store down")
	s := New(repo, discardLogger(), time.Hour, 30*24*time.Hour)
	defer s.Close()

	s.Sweep(context.Background())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.expireAt) != 1 {
		t.Fatalf("expiry sweeps = %d after purge failure, want 1", len(repo.expireAt))
	}
}

func TestSweepLoopRunsOnInterval(t *testing.T) {
	repo := newStubMaintenanceRepo()
	s := New(repo, discardLogger(), 20*time.Millisecond, 30*24*time.Hour)
	defer s.Close()

	select {
	case <-repo.swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep loop never fired")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(newStubMaintenanceRepo(), discardLogger(), time.Hour, time.Hour)
	s.Close()
	s.Close()
}
