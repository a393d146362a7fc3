package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/lock"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

// NewLocker returns the locker named kind and a function releasing its resources.
//
// nolint:ireturn
func NewLocker(ctx context.Context, kind string, store persistence.Persistence, lease time.Duration, redisURL string) (lock.Locker, func() error, error) {
	noop := func() error { return nil }

	switch kind {
	case "", "lease":
		return lock.NewLeaseLocker(store.Instances(), lease), noop, nil
	case "record":
		return lock.NewRecordLocker(store.Instances()), noop, nil
	case "redis":
		client, err := lock.NewRedisClient(ctx, redisURL)
		if err != nil {
			return nil, nil, err
		}

		return lock.NewRedisLocker(client, lease), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock %q", kind)
	}
}
