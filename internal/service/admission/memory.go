package admission

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// memoryBackend is the in-process fallback counter. It is only ever touched
// by this instance's own requests, so a mutex is enough; counters are
// garbage-collected by a sweep loop instead of store-side TTLs.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]localCounter
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

type localCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryBackend builds a local counter backend with a background sweep.
func NewMemoryBackend(sweepInterval time.Duration) CounterBackend {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	b := &memoryBackend{
		entries: make(map[string]localCounter),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go b.sweepLoop(sweepInterval)
	return b
}

func (b *memoryBackend) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = localCounter{count: 0, expiresAt: now.Add(ttl)}
	}
	entry.count++
	b.entries[key] = entry
	return entry.count, nil
}

func (b *memoryBackend) Decr(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.entries[key]; ok && entry.count > 0 {
		entry.count--
		b.entries[key] = entry
	}
	return nil
}

func (b *memoryBackend) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweep(b.now())
		case <-b.stopCh:
			return
		}
	}
}

func (b *memoryBackend) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, entry := range b.entries {
		if now.After(entry.expiresAt) {
			delete(b.entries, key)
		}
	}
}

// Close stops the sweep loop.
func (b *memoryBackend) Close() {
	b.once.Do(func() {
		close(b.stopCh)
	})
}
