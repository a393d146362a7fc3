package lock

import (
	"context"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

const DefaultLease = 5 * time.Minute

// LeaseLocker takes the owner token with a single conditional update. The token can be
// taken over once its lease has expired, so a crashed holder blocks the instance for at
// most one lease.
type LeaseLocker struct {
	instances persistence.InstanceRepository
	lease     time.Duration
	now       func() time.Time
}

func NewLeaseLocker(instances persistence.InstanceRepository, lease time.Duration) *LeaseLocker {
	if lease <= 0 {
		lease = DefaultLease
	}

	return &LeaseLocker{
		instances: instances,
		lease:     lease,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *LeaseLocker) WithClock(now func() time.Time) *LeaseLocker {
	l.now = now

	return l
}

func (l *LeaseLocker) Acquire(ctx context.Context, instanceID, owner string) (bool, error) {
	now := l.now()

	return l.instances.TryAcquireOwner(ctx, instanceID, owner, now, now.Add(l.lease))
}

func (l *LeaseLocker) Release(ctx context.Context, instanceID, owner string) error {
	return l.instances.ReleaseOwner(ctx, instanceID, owner)
}

// Renew pushes the lease of a held token one lease past now.
func (l *LeaseLocker) Renew(ctx context.Context, instanceID, owner string) (bool, error) {
	return l.Acquire(ctx, instanceID, owner)
}
