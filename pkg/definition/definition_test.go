package definition

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	wf, err := LoadFile("testdata/order_approval.yaml")
	require.NoError(t, err)

	assert.Equal(t, "order-approval", wf.ID)
	assert.Equal(t, "Order", wf.EntityName)
	assert.Equal(t, models.FieldTypeNumber, wf.FieldTypes["amount"])
	assert.Equal(t, 4, wf.ReminderInterval)
	assert.Len(t, wf.Activities, 6)
	assert.Len(t, wf.Transitions, 7)

	approve, ok := wf.Activity("approve")
	require.True(t, ok)

	var data models.UserData
	require.NoError(t, approve.DecodeData(&data))
	assert.Equal(t, models.TaskTypeApproval, data.TaskType)
	assert.Equal(t, "P2D", data.TimeoutDuration)
	require.Len(t, data.Crowds, 1)
	assert.Equal(t, "managers", data.Crowds[0].UserGroupID)
	assert.EqualValues(t, 1, data.Crowds[0].MinApprovals)

	timeout := wf.TransitionsFrom("approve", models.PortTimeout)
	require.Len(t, timeout, 1)
	assert.Equal(t, "approve-TIMEOUT-rejected", timeout[0].ID)
	assert.Equal(t, models.PortInput, timeout[0].ToPort)

	require.Len(t, wf.Variables, 1)
	assert.Equal(t, wf.ID, wf.Variables[0].WorkflowID)
}

func TestParse_Invalid(t *testing.T) {
	const base = `
name: Broken
entity_name: Order
primary_key_field: orderId
`

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "empty",
			yaml: "  ",
			want: "definition is empty",
		},
		{
			name: "malformed",
			yaml: "name: [",
			want: "invalid workflow definition",
		},
		{
			name: "no enter",
			yaml: base + `
activities:
  - {id: a, type: EXIT}
  - {id: b, type: EXIT}
`,
			want: "expected one ENTER activity",
		},
		{
			name: "unknown type",
			yaml: base + `
activities:
  - {id: a, type: ENTER}
  - {id: b, type: SCRIPT}
`,
			want: "oneof",
		},
		{
			name: "activity data does not match schema",
			yaml: base + `
activities:
  - {id: a, type: ENTER}
  - {id: b, type: ADJUST, data: {statusId: Done}}
`,
			want: "adjustType",
		},
		{
			name: "dangling transition",
			yaml: base + `
activities:
  - {id: a, type: ENTER}
  - {id: b, type: EXIT}
transitions:
  - {from: a, from_port: SUCCESS, to: c}
`,
			want: "joins unknown activities",
		},
		{
			name: "duplicate activity",
			yaml: base + `
activities:
  - {id: a, type: ENTER}
  - {id: a, type: EXIT}
`,
			want: "duplicate activity id a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_AssignsIDs(t *testing.T) {
	wf, err := Load(strings.NewReader(`
name: Minimal
entity_name: Order
primary_key_field: orderId
activities:
  - type: ENTER
  - type: EXIT
    data: {resultCode: DONE}
transitions:
  - {from: activity-1, from_port: SUCCESS, to: activity-2}
`))
	require.NoError(t, err)

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "activity-1", wf.Activities[0].ID)
	assert.Empty(t, wf.Activities[0].Data)

	var exit models.ExitData
	require.NoError(t, json.Unmarshal(wf.Activities[1].Data, &exit))
	assert.Equal(t, "DONE", exit.ResultCode)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	wf, err := LoadFile("testdata/order_approval.yaml")
	require.NoError(t, err)
	require.NoError(t, Import(ctx, store, wf))

	stored, err := store.Workflows().GetByID(ctx, "order-approval")
	require.NoError(t, err)
	assert.Equal(t, wf.Name, stored.Name)
	assert.Len(t, stored.Activities, 6)
	assert.False(t, stored.CreatedAt.IsZero())
}
