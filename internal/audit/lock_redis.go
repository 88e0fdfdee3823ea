package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"caretrail/pkg/sentinel"
)

// RedisLocker implements Locker with a SET NX PX lease so coalescing stays
// correct across multiple server instances.
type RedisLocker struct {
	client *redis.Client
	lease  time.Duration
}

// NewRedisLocker creates a Redis-backed locker. Lease bounds how long a
// crashed holder can block the key.
func NewRedisLocker(client *redis.Client, lease time.Duration) *RedisLocker {
	if lease <= 0 {
		lease = 2 * time.Second
	}
	return &RedisLocker{client: client, lease: lease}
}

// Lock polls SET NX until the key is acquired, the lease window elapses, or
// the context is done. The release func only deletes the key if this caller
// still holds it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.lease)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, sentinel.ErrUnavailable
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
