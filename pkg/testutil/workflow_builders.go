// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"encoding/json"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

// Now is the fixed clock used by tests that need deterministic timestamps.
var Now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// Clock returns a clock function reading *t.
func Clock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

// CreateTestActivity creates an activity whose data is the JSON encoding of data.
func CreateTestActivity(id string, activityType models.ActivityType, data any) *models.Activity {
	act := &models.Activity{ID: id, Name: id, Type: activityType}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			panic(err)
		}

		act.Data = raw
	}

	return act
}

// Edge creates the transition from.port -> to.
func Edge(from string, port models.Port, to string) *models.Transition {
	return &models.Transition{
		ID:             from + "-" + string(port) + "-" + to,
		FromActivityID: from,
		FromPort:       port,
		ToActivityID:   to,
		ToPort:         models.PortInput,
	}
}

// CreateTestWorkflow creates a workflow over the "Order" entity that goes straight from
// enter to exit, unless overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	wf := &models.Workflow{
		ID:              "wf-test",
		Name:            "Test Workflow",
		EntityName:      "Order",
		PrimaryKeyField: "orderId",
		FieldTypes: map[string]models.FieldType{
			"statusId": models.FieldTypeText,
			"amount":   models.FieldTypeNumber,
			"urgent":   models.FieldTypeBoolean,
			"dueDate":  models.FieldTypeDate,
		},
		Activities: []*models.Activity{
			CreateTestActivity("enter", models.ActivityTypeEnter, nil),
			CreateTestActivity("exit", models.ActivityTypeExit, models.ExitData{ResultCode: "OK"}),
		},
		Transitions: []*models.Transition{
			Edge("enter", models.PortSuccess, "exit"),
		},
		CreatedAt: Now,
		UpdatedAt: Now,
	}

	for _, override := range overrides {
		override(wf)
	}

	return wf
}

// WithGraph replaces the activities and transitions.
func WithGraph(activities []*models.Activity, transitions ...*models.Transition) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Activities = activities
		w.Transitions = transitions
	}
}

// WithVariables sets the variable definitions.
func WithVariables(vars ...*models.WorkflowVariable) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Variables = vars
	}
}

// WithID sets the workflow id.
func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithReminder sets the reminder policy.
func WithReminder(interval int, uom string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ReminderInterval = interval
		w.ReminderUom = uom
	}
}

// Variable creates a variable definition.
func Variable(id, name string, variableType models.VariableType, defaultValue string) *models.WorkflowVariable {
	return &models.WorkflowVariable{ID: id, Name: name, Type: variableType, DefaultValue: defaultValue}
}

// CreateTestInstance creates an ACTIVE instance of wf-test sitting on its first visit.
func CreateTestInstance(overrides ...func(*models.Instance)) *models.Instance {
	inst := &models.Instance{
		ID:              "inst-test",
		WorkflowID:      "wf-test",
		PrimaryKeyValue: "order-1",
		Status:          models.InstanceStatusActive,
		Visit:           1,
		InputUserID:     "alice",
		CreatedAt:       Now,
		UpdatedAt:       Now,
	}

	for _, override := range overrides {
		override(inst)
	}

	return inst
}

// Seed stores wf, the entities and users alice, bob and carol with bob and carol in the
// "approvers" group.
func Seed(ctx context.Context, store persistence.Persistence, wf *models.Workflow, entities ...*models.Entity) error {
	if err := store.Workflows().Save(ctx, wf); err != nil {
		return err
	}

	for _, e := range entities {
		if err := store.Entities().Save(ctx, e); err != nil {
			return err
		}
	}

	for _, id := range []string{"alice", "bob", "carol"} {
		user := &models.User{ID: id, Username: id, Email: id + "@example.com", Phone: "+1555" + id}
		if err := store.Directory().SaveUser(ctx, user); err != nil {
			return err
		}
	}

	for _, id := range []string{"bob", "carol"} {
		member := &models.GroupMember{GroupID: "approvers", UserID: id, FromDate: Now.AddDate(-1, 0, 0)}
		if err := store.Directory().AddGroupMember(ctx, member); err != nil {
			return err
		}
	}

	return nil
}

// SeedVariables creates the instance variables of inst from the definition defaults.
func SeedVariables(ctx context.Context, store persistence.Persistence, wf *models.Workflow, inst *models.Instance) error {
	for _, v := range wf.Variables {
		err := store.Variables().Create(ctx, &models.InstanceVariable{
			ID:         inst.ID + "-" + v.ID,
			InstanceID: inst.ID,
			VariableID: v.ID,
			Name:       v.Name,
			Type:       v.Type,
			Value:      v.DefaultValue,
			UpdatedAt:  Now,
		})
		if err != nil {
			return err
		}
	}

	return nil
}
