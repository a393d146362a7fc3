package memory_test

import (
	"context"
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/memory"
	"github.com/netvariant/moqui-workflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return memory.NewStore()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Workflows().Save(ctx, persistencetest.Workflow("wf-1")))

	wf, err := store.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)

	wf.Activities[0].Type = models.ActivityTypeExit

	again, err := store.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActivityTypeEnter, again.Activities[0].Type)
}

func TestStore_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	changes := 0
	store.OnChange(func() { changes++ })

	require.NoError(t, store.Workflows().Save(ctx, persistencetest.Workflow("wf-1")))
	require.NoError(t, store.Entities().Save(ctx, &models.Entity{Name: "Order", Key: "1"}))
	assert.Equal(t, 2, changes)

	_, err := store.Workflows().GetByID(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, 2, changes, "reads do not fire the hook")

	snap := store.Snapshot()

	restored := memory.NewStore()
	restored.Restore(snap)

	_, err = restored.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)

	_, err = restored.Entities().Get(ctx, "Order", "1")
	require.NoError(t, err)
}
