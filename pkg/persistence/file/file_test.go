package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/log"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		p, err := NewPersistence(t.Context(), log.Discard(), t.TempDir())
		require.NoError(t, err)

		return p
	})
}

func TestNewPersistence_StripsScheme(t *testing.T) {
	dir := t.TempDir()

	p, err := NewPersistence(t.Context(), log.Discard(), "file://"+dir)
	require.NoError(t, err)
	assert.Equal(t, dir, p.root)
	assert.NoError(t, p.HealthCheck(t.Context()))
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := NewPersistence(ctx, log.Discard(), dir)
	require.NoError(t, err)

	require.NoError(t, p.Workflows().Save(ctx, persistencetest.Workflow("wf-1")))
	require.NoError(t, p.Instances().Create(ctx, &models.Instance{
		ID: "i-1", WorkflowID: "wf-1", PrimaryKeyValue: "1", Status: models.InstanceStatusPending,
	}))

	_, err = os.Stat(filepath.Join(dir, stateFile))
	require.NoError(t, err)

	reopened, err := NewPersistence(ctx, log.Discard(), dir)
	require.NoError(t, err)

	inst, err := reopened.Instances().GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusPending, inst.Status)

	_, err = reopened.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
}

func TestPersistence_LoadsDefinitionFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "workflows"), 0o755))

	data, err := json.Marshal(persistencetest.Workflow("seeded"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflows", "seeded.json"), data, 0o600))

	p, err := NewPersistence(ctx, log.Discard(), dir)
	require.NoError(t, err)

	wf, err := p.Workflows().GetByID(ctx, "seeded")
	require.NoError(t, err)
	assert.Len(t, wf.Activities, 2)
}

func TestNewPersistence_CorruptState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFile), []byte("{"), 0o600))

	_, err := NewPersistence(t.Context(), log.Discard(), dir)
	assert.Error(t, err)
}
