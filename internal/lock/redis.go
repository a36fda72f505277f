package lock

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KEYS[1]: lock key
// ARGV[1]: token of the holder
//
// Deletes the key only while it still belongs to the caller, so a holder
// whose lease expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// Redis is a lease-based lock shared by every replica using the same Redis.
// A holder that crashes loses the lock once TTL elapses.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// RedisOptions tunes a Redis lock.
type RedisOptions struct {
	// Prefix is prepended to every key. Defaults to "lock:".
	Prefix string
	// TTL bounds how long a lock survives its holder. Defaults to 30s.
	TTL time.Duration
	// Retry is the polling interval while waiting. Defaults to 50ms.
	Retry time.Duration
}

// NewRedis creates a Redis lock.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 50 * time.Millisecond
	}
	return &Redis{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		retry:  opts.Retry,
	}
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	key = r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire %s", key)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	releaseCtx := context.WithoutCancel(ctx)
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
				zctx.From(releaseCtx).Warn("Release lock",
					zap.String("key", key),
					zap.Error(err),
				)
			}
		})
	}, nil
}
