package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"wasmgate/internal/domain"
	"wasmgate/internal/repository"
	"wasmgate/internal/ws"
)

const flushTimeout = 5 * time.Second

// Recorder durably records execution outcomes for billing and analytics.
// Record is fire-and-forget: it never blocks the response path and never
// propagates failure to the caller. Under sustained store outage, records are
// dropped (counted in a metric) rather than retried, bounding memory growth.
type Recorder struct {
	repo       repository.UsageRepository
	hub        *ws.Hub
	logger     *slog.Logger
	queue      chan domain.UsageRecord
	batchSize  int
	flushEvery time.Duration

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRecorder builds a recorder and starts its flush loop. The hub is
// optional; when set, accepted records are also broadcast to the usage feed.
func NewRecorder(repo repository.UsageRepository, hub *ws.Hub, logger *slog.Logger, queueSize, batchSize int, flushEvery time.Duration) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if batchSize <= 0 {
		batchSize = 128
	}
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	r := &Recorder{
		repo:       repo,
		hub:        hub,
		logger:     logger,
		queue:      make(chan domain.UsageRecord, queueSize),
		batchSize:  batchSize,
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues a usage record. When the queue is full the record is
// dropped and counted; the caller is never delayed or failed.
func (r *Recorder) Record(record domain.UsageRecord) {
	select {
	case r.queue <- record:
		r.publish(record)
	default:
		observeDropped(1)
		r.logger.Warn("usage queue full, dropping record", "tenant", record.TenantID, "status", record.Status)
	}
}

func (r *Recorder) publish(record domain.UsageRecord) {
	if r.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"id":             record.ID,
		"tenant_id":      record.TenantID,
		"recorded_at":    record.Timestamp,
		"status":         record.Status,
		"duration_ms":    record.DurationMS,
		"peak_memory_mb": record.PeakMemoryMB,
		"module_bytes":   record.ModuleBytes,
		"input_bytes":    record.InputBytes,
	})
	if err != nil {
		return
	}
	r.hub.Broadcast(record.TenantID.String(), payload)
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	batch := make([]domain.UsageRecord, 0, r.batchSize)
	for {
		select {
		case record := <-r.queue:
			batch = append(batch, record)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-r.stopCh:
			// Drain whatever is still queued, then final flush.
			for {
				select {
				case record := <-r.queue:
					batch = append(batch, record)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes the batch and returns a reset slice. A failed write drops the
// batch: usage recording is best-effort by contract.
func (r *Recorder) flush(batch []domain.UsageRecord) []domain.UsageRecord {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := r.repo.InsertUsageRecords(ctx, batch); err != nil {
		observeDropped(len(batch))
		r.logger.Warn("usage flush failed, dropping batch", "records", len(batch), "error", err)
	} else {
		observeFlushed(len(batch))
	}
	return batch[:0]
}

// Close stops the flush loop after draining queued records.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}
