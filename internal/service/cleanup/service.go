package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wasmgate/internal/repository"
)

const sweepTimeout = 30 * time.Second

// Service runs periodic housekeeping: purging usage logs past their retention
// window and deactivating API keys whose expiry has passed. Both writes are
// best-effort; a failed sweep is logged and retried on the next tick.
type Service struct {
	repo      repository.MaintenanceRepository
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New builds the service and starts its sweep loop. The first sweep runs one
// interval after startup.
func New(repo repository.MaintenanceRepository, logger *slog.Logger, interval, retention time.Duration) *Service {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	s := &Service{
		repo:      repo,
		logger:    logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Service) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			s.Sweep(ctx)
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep performs one housekeeping pass.
func (s *Service) Sweep(ctx context.Context) {
	now := s.now()

	purged, err := s.repo.DeleteUsageRecordsBefore(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Warn("usage log purge failed", "error", err)
	} else if purged > 0 {
		s.logger.Info("purged usage logs", "records", purged)
	}

	expired, err := s.repo.DeactivateExpiredCredentials(ctx, now)
	if err != nil {
		s.logger.Warn("expired key sweep failed", "error", err)
	} else if expired > 0 {
		s.logger.Info("deactivated expired api keys", "keys", expired)
	}
}

// Close stops the sweep loop.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}
