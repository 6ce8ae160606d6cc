package admission

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisBackend counts in a shared Redis instance so concurrent service
// instances observe one consistent, monotonically increasing counter per
// window.
type redisBackend struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(addr, password string, db int, timeout time.Duration) (CounterBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &redisBackend{client: client, prefix: "wasmgate:", timeout: timeout}, nil
}

// Incr runs INCR and EXPIRE NX in one pipelined round trip. INCR is atomic on
// the server, so the returned value is exact under concurrent callers; the
// expiry only sticks on first creation.
func (b *redisBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, b.prefix+key)
	pipe.ExpireNX(ctx, b.prefix+key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Decr compensates one increment.
func (b *redisBackend) Decr(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.client.Decr(ctx, b.prefix+key).Err()
}

// Close releases the client.
func (b *redisBackend) Close() {
	_ = b.client.Close()
}
