package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "workflow:lock:"

// Deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Re-acquiring a key already held by the caller refreshes its lease.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker keeps owner tokens in Redis keys that expire after the lease.
type RedisLocker struct {
	client redis.UniversalClient
	lease  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, lease time.Duration) *RedisLocker {
	if lease <= 0 {
		lease = DefaultLease
	}

	return &RedisLocker{client: client, lease: lease}
}

// NewRedisClient connects to the server at url (redis://[:password@]host:port/db).
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, instanceID, owner string) (bool, error) {
	key := keyPrefix + instanceID

	ok, err := l.client.SetNX(ctx, key, owner, l.lease).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if ok {
		return true, nil
	}

	refreshed, err := refreshScript.Run(ctx, l.client, []string{key}, owner, l.lease.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to refresh lock: %w", err)
	}

	return refreshed == 1, nil
}

func (l *RedisLocker) Release(ctx context.Context, instanceID, owner string) error {
	err := releaseScript.Run(ctx, l.client, []string{keyPrefix + instanceID}, owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}

func (l *RedisLocker) Renew(ctx context.Context, instanceID, owner string) (bool, error) {
	return l.Acquire(ctx, instanceID, owner)
}
