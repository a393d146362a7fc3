package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		ID:              "wf-1",
		Name:            "Order approval",
		EntityName:      "Order",
		PrimaryKeyField: "orderId",
		Activities: []*Activity{
			{ID: "enter", Type: ActivityTypeEnter},
			{ID: "exit", Type: ActivityTypeExit},
		},
		Transitions: []*Transition{
			{ID: "t1", FromActivityID: "enter", FromPort: PortSuccess, ToActivityID: "exit", ToPort: PortInput},
		},
	}
}

func TestWorkflow_Validation(t *testing.T) {
	validate := validator.New()

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validate.Struct(validWorkflow()))
	})

	t.Run("unknown activity type", func(t *testing.T) {
		wf := validWorkflow()
		wf.Activities[0].Type = "LOOP"

		err := validate.Struct(wf)
		require.Error(t, err)

		var validationErrors validator.ValidationErrors
		require.True(t, errors.As(err, &validationErrors))
		assert.Equal(t, "oneof", validationErrors[0].Tag())
	})

	t.Run("missing entity binding", func(t *testing.T) {
		wf := validWorkflow()
		wf.EntityName = ""

		assert.Error(t, validate.Struct(wf))
	})

	t.Run("bad port", func(t *testing.T) {
		wf := validWorkflow()
		wf.Transitions[0].FromPort = "ELSEWHERE"

		assert.Error(t, validate.Struct(wf))
	})
}

func TestWorkflow_Lookups(t *testing.T) {
	wf := validWorkflow()
	wf.Transitions = append(wf.Transitions,
		&Transition{ID: "t2", FromActivityID: "enter", FromPort: PortFailure, ToActivityID: "exit"})

	enter, ok := wf.EnterActivity()
	require.True(t, ok)
	assert.Equal(t, "enter", enter.ID)

	_, ok = wf.Activity("missing")
	assert.False(t, ok)

	got := wf.TransitionsFrom("enter", PortSuccess)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)

	assert.Empty(t, wf.TransitionsFrom("exit", PortSuccess))
}

func TestActivity_DecodeData(t *testing.T) {
	a := &Activity{ID: "u1", Type: ActivityTypeUser, Data: json.RawMessage(`{
		"taskType": "APPROVAL",
		"joinOperator": "AND",
		"crowds": [{"type": "USER", "userId": "alice", "minApprovals": 1, "minRejections": 1}],
		"timeoutInterval": 2,
		"timeoutUom": "TF_hr"
	}`)}

	var data UserData
	require.NoError(t, a.DecodeData(&data))
	assert.Equal(t, TaskTypeApproval, data.TaskType)
	require.Len(t, data.Crowds, 1)
	assert.Equal(t, int64(1), data.Crowds[0].MinApprovals)
	assert.Equal(t, "TF_hr", data.TimeoutUom)

	bad := &Activity{ID: "u2", Type: ActivityTypeUser, Data: json.RawMessage(`{`)}
	assert.Error(t, bad.DecodeData(&data))

	empty := &Activity{ID: "e", Type: ActivityTypeEnter}
	assert.NoError(t, empty.DecodeData(&data))
}

func TestStatuses(t *testing.T) {
	assert.True(t, InstanceStatusComplete.Terminal())
	assert.True(t, InstanceStatusAborted.Terminal())
	assert.False(t, InstanceStatusSuspended.Terminal())

	assert.True(t, TaskStatusPending.Open())
	assert.True(t, TaskStatusInProgress.Open())
	assert.False(t, TaskStatusObsolete.Open())

	assert.True(t, TaskStatusApproved.Completes())
	assert.False(t, TaskStatusInProgress.Completes())
}

func TestGroupMember_Covers(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		member GroupMember
		want   bool
	}{
		{"open ended", GroupMember{FromDate: past}, true},
		{"not yet started", GroupMember{FromDate: future}, false},
		{"expired", GroupMember{FromDate: past.Add(-time.Hour), ThruDate: &past}, false},
		{"within window", GroupMember{FromDate: past, ThruDate: &future}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.member.Covers(now))
		})
	}
}

func TestEntity_Value(t *testing.T) {
	e := &Entity{Name: "Order", Key: "1", StatusID: "ORDER_OPEN", Fields: map[string]string{"amount": "10"}}

	v, ok := e.Value("statusId")
	assert.True(t, ok)
	assert.Equal(t, "ORDER_OPEN", v)

	v, ok = e.Value("amount")
	assert.True(t, ok)
	assert.Equal(t, "10", v)

	_, ok = e.Value("missing")
	assert.False(t, ok)
}
