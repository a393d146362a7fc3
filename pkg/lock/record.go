package lock

import (
	"context"
	"fmt"

	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

// RecordLocker writes the owner token unconditionally and owns the instance when the
// token it reads back is its own. The last writer wins: a holder that already read its
// token back is not told when another writer overwrites it, so two processes can both
// believe they hold the instance. Tokens never expire.
type RecordLocker struct {
	instances persistence.InstanceRepository
}

func NewRecordLocker(instances persistence.InstanceRepository) *RecordLocker {
	return &RecordLocker{instances: instances}
}

func (l *RecordLocker) Acquire(ctx context.Context, instanceID, owner string) (bool, error) {
	if err := l.instances.SetOwner(ctx, instanceID, owner); err != nil {
		return false, fmt.Errorf("failed to write owner: %w", err)
	}

	inst, err := l.instances.GetByID(ctx, instanceID)
	if err != nil {
		return false, fmt.Errorf("failed to read owner back: %w", err)
	}

	return inst.Owner == owner, nil
}

func (l *RecordLocker) Release(ctx context.Context, instanceID, owner string) error {
	return l.instances.ReleaseOwner(ctx, instanceID, owner)
}
