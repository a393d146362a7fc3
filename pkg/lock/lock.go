// Package lock gives one process at a time the right to advance a workflow instance.
package lock

import (
	"context"
	"fmt"
	"os"
)

// Locker grants exclusive execution ownership of an instance to owner. Contention is not
// an error: Acquire reports false.
type Locker interface {
	Acquire(ctx context.Context, instanceID, owner string) (bool, error)
	Release(ctx context.Context, instanceID, owner string) error
}

// Renewer is implemented by lockers whose tokens expire. Renew extends the lease of a
// token owner still holds and reports false once another owner has taken it.
type Renewer interface {
	Renew(ctx context.Context, instanceID, owner string) (bool, error)
}

// DefaultOwner identifies this process as hostname:pid.
func DefaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
