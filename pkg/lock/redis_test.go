package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("redis container tests are skipped in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	client, err := NewRedisClient(ctx, setupRedis(t))
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 500*time.Millisecond)

	ok, err := locker.Acquire(ctx, "inst-1", "worker-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locker.Acquire(ctx, "inst-1", "worker-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = locker.Acquire(ctx, "inst-1", "worker-a")
	require.NoError(t, err)
	assert.True(t, ok, "holder may re-acquire")

	require.NoError(t, locker.Release(ctx, "inst-1", "worker-b"))

	owner, err := client.Get(ctx, keyPrefix+"inst-1").Result()
	require.NoError(t, err)
	assert.Equal(t, "worker-a", owner)

	require.NoError(t, locker.Release(ctx, "inst-1", "worker-a"))

	ok, err = locker.Acquire(ctx, "inst-1", "worker-b")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		ok, err := locker.Acquire(ctx, "inst-1", "worker-c")

		return err == nil && ok
	}, 3*time.Second, 100*time.Millisecond, "lease expiry frees the key")
}
