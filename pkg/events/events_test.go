package events

import (
	"encoding/json"
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetType(t *testing.T) {
	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{InstanceCreated{}, InstanceCreatedEvent},
		{InstanceStartRequested{}, InstanceStartRequestedEvent},
		{InstanceFinished{}, InstanceFinishedEvent},
		{TaskUpdated{}, TaskUpdatedEvent},
		{NotificationRequested{}, NotificationRequestedEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.GetType())
		})
	}
}

func TestNewBaseEvent(t *testing.T) {
	a := NewBaseEvent(TaskUpdatedEvent, "inst-1")
	b := NewBaseEvent(TaskUpdatedEvent, "inst-1")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "inst-1", a.InstanceID)
	assert.False(t, a.Timestamp.IsZero())
	assert.NotNil(t, a.Metadata)
}

func TestTaskUpdated_JSON(t *testing.T) {
	original := &TaskUpdated{
		BaseEvent: NewBaseEvent(TaskUpdatedEvent, "inst-9"),
		TaskID:    "task-3",
		UserID:    "alice",
		Status:    models.TaskStatusApproved,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"task.updated"`)
	assert.Contains(t, string(data), `"instance_id":"inst-9"`)
	assert.Contains(t, string(data), `"status":"APPROVED"`)

	var decoded TaskUpdated
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.TaskID, decoded.TaskID)
	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.InstanceID, decoded.InstanceID)
}
