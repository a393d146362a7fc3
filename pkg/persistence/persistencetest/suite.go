// Package persistencetest holds the behaviour every Persistence implementation must share.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises p. newStore must return an empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Persistence) {
	t.Helper()

	t.Run("workflows", func(t *testing.T) { testWorkflows(t, newStore(t)) })
	t.Run("instances", func(t *testing.T) { testInstances(t, newStore(t)) })
	t.Run("owner token", func(t *testing.T) { testOwner(t, newStore(t)) })
	t.Run("tasks", func(t *testing.T) { testTasks(t, newStore(t)) })
	t.Run("variables and events", func(t *testing.T) { testVariablesAndEvents(t, newStore(t)) })
	t.Run("entities and directory", func(t *testing.T) { testEntitiesAndDirectory(t, newStore(t)) })
}

// Workflow returns a small valid definition.
func Workflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:              id,
		Name:            "Workflow " + id,
		EntityName:      "Order",
		PrimaryKeyField: "orderId",
		FieldTypes:      map[string]models.FieldType{"amount": models.FieldTypeNumber},
		Activities: []*models.Activity{
			{ID: id + "-enter", WorkflowID: id, Type: models.ActivityTypeEnter},
			{ID: id + "-exit", WorkflowID: id, Type: models.ActivityTypeExit, Data: []byte(`{"resultCode":"OK"}`)},
		},
		Transitions: []*models.Transition{
			{ID: id + "-t1", WorkflowID: id, FromActivityID: id + "-enter", FromPort: models.PortSuccess, ToActivityID: id + "-exit", ToPort: models.PortInput},
		},
		Variables: []*models.WorkflowVariable{
			{ID: id + "-v1", WorkflowID: id, Name: "amount", Type: models.VariableTypeNumber, DefaultValue: "0"},
		},
	}
}

func testWorkflows(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.Workflows()

	_, err := repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsNotFound(err))

	wf := Workflow("wf-1")
	require.NoError(t, repo.Save(ctx, wf))

	got, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, wf.Name, got.Name)
	require.Len(t, got.Activities, 2)
	assert.JSONEq(t, `{"resultCode":"OK"}`, string(got.Activities[1].Data))
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, models.PortSuccess, got.Transitions[0].FromPort)
	require.Len(t, got.Variables, 1)
	assert.Equal(t, models.FieldTypeNumber, got.FieldTypes["amount"])

	require.NoError(t, repo.SetDisabled(ctx, "wf-1", true))
	got, err = repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, got.Disabled)

	require.NoError(t, repo.SaveVariable(ctx, &models.WorkflowVariable{
		ID: "wf-1-v2", WorkflowID: "wf-1", Name: "note", Type: models.VariableTypeText,
	}))
	got, err = repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, got.Variables, 2)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	from := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, repo.SaveInitiator(ctx, &models.Initiator{ID: "i-1", WorkflowID: "wf-1", UserGroupID: "g", FromDate: from}))

	in, err := repo.GetInitiator(ctx, "i-1")
	require.NoError(t, err)
	assert.Nil(t, in.ThruDate)
	assert.True(t, in.FromDate.Equal(from))

	ins, err := repo.Initiators(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, ins, 1)
}

func newInstance(id, workflowID, key string, status models.InstanceStatus) *models.Instance {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &models.Instance{
		ID:              id,
		WorkflowID:      workflowID,
		PrimaryKeyValue: key,
		Status:          status,
		InputUserID:     "alice",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func testInstances(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	require.NoError(t, p.Workflows().Save(ctx, Workflow("wf-1")))

	repo := p.Instances()
	require.NoError(t, repo.Create(ctx, newInstance("i-1", "wf-1", "100", models.InstanceStatusPending)))
	assert.True(t, persistence.IsConflict(repo.Create(ctx, newInstance("i-1", "wf-1", "100", models.InstanceStatusPending))))

	past := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	active := newInstance("i-2", "wf-1", "200", models.InstanceStatusActive)
	active.ActivityID = "wf-1-enter"
	active.TimeoutAt = &past
	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, newInstance("i-3", "wf-1", "300", models.InstanceStatusComplete)))

	got, err := repo.GetByID(ctx, "i-2")
	require.NoError(t, err)
	require.NotNil(t, got.TimeoutAt)
	assert.True(t, got.TimeoutAt.Equal(past))

	got.ActivityExecuted = true
	got.OutgoingPort = models.PortSuccess
	got.Visit = 2
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, "i-2")
	require.NoError(t, err)
	assert.True(t, got.ActivityExecuted)
	assert.Equal(t, models.PortSuccess, got.OutgoingPort)
	assert.Equal(t, 2, got.Visit)

	elapsed, total, err := repo.Find(ctx, query.Options{Where: query.And(
		query.Eq("status", models.InstanceStatusActive),
		query.NotNull("timeout_at"),
		query.Lt("timeout_at", time.Now().UTC()),
	)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, elapsed, 1)
	assert.Equal(t, "i-2", elapsed[0].ID)

	open, total, err := repo.Find(ctx, query.Options{
		Where:   query.And(query.Eq("workflow_id", "wf-1"), query.In("status", models.OpenInstanceStatuses...)),
		OrderBy: "primary_key_value",
		Limit:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, open, 1)
	assert.Equal(t, "100", open[0].PrimaryKeyValue)

	_, _, err = repo.Find(ctx, query.Options{Where: query.Eq("nope", 1)})
	assert.ErrorIs(t, err, persistence.ErrInvalidField)

	assert.True(t, persistence.IsNotFound(repo.Update(ctx, newInstance("missing", "wf-1", "1", models.InstanceStatusActive))))
}

func testOwner(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	require.NoError(t, p.Workflows().Save(ctx, Workflow("wf-1")))

	repo := p.Instances()
	require.NoError(t, repo.Create(ctx, newInstance("i-1", "wf-1", "1", models.InstanceStatusActive)))

	now := time.Now().UTC()

	ok, err := repo.TryAcquireOwner(ctx, "i-1", "worker-a", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryAcquireOwner(ctx, "i-1", "worker-b", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be stolen")

	ok, err = repo.TryAcquireOwner(ctx, "i-1", "worker-a", now, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "holder may renew")

	ok, err = repo.TryAcquireOwner(ctx, "i-1", "worker-b", now.Add(3*time.Minute), now.Add(4*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")

	inst, err := repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	inst.Status = models.InstanceStatusSuspended
	require.NoError(t, repo.Update(ctx, inst))

	inst, err = repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-b", inst.Owner, "Update must not touch the owner token")

	require.NoError(t, repo.ReleaseOwner(ctx, "i-1", "worker-a"))
	inst, err = repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-b", inst.Owner, "release by a non-holder is ignored")

	require.NoError(t, repo.ReleaseOwner(ctx, "i-1", "worker-b"))
	inst, err = repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Empty(t, inst.Owner)
	assert.Nil(t, inst.OwnerExpiresAt)

	require.NoError(t, repo.SetOwner(ctx, "i-1", "worker-c"))
	inst, err = repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-c", inst.Owner)
	assert.Nil(t, inst.OwnerExpiresAt)

	require.NoError(t, repo.SetOwner(ctx, "i-1", ""))
	inst, err = repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Empty(t, inst.Owner)
}

func testTasks(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	require.NoError(t, p.Workflows().Save(ctx, Workflow("wf-1")))
	require.NoError(t, p.Instances().Create(ctx, newInstance("i-1", "wf-1", "1", models.InstanceStatusActive)))

	repo := p.Tasks()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, user := range []string{"alice", "bob", "carol"} {
		require.NoError(t, repo.Create(ctx, &models.Task{
			ID:             "t-" + user,
			InstanceID:     "i-1",
			ActivityID:     "wf-1-user",
			Visit:          1,
			AssignedUserID: user,
			Type:           models.TaskTypeApproval,
			Status:         models.TaskStatusPending,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			UpdatedAt:      base,
		}))
	}

	task, err := repo.GetByID(ctx, "t-bob")
	require.NoError(t, err)

	done := base.Add(time.Minute)
	task.Status = models.TaskStatusApproved
	task.CompletedAt = &done
	task.Remark = "fine"
	require.NoError(t, repo.Update(ctx, task))

	task, err = repo.GetByID(ctx, "t-bob")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusApproved, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, "fine", task.Remark)

	n, err := repo.Count(ctx, query.And(
		query.Eq("instance_id", "i-1"),
		query.Eq("visit", 1),
		query.In("assigned_user_id", "alice", "bob"),
		query.Eq("status", models.TaskStatusApproved),
	))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, total, err := repo.Find(ctx, query.Options{
		Where:   query.In("status", models.TaskStatusPending, models.TaskStatusInProgress),
		OrderBy: "created_at",
		Desc:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, open, 2)
	assert.Equal(t, "t-carol", open[0].ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsNotFound(err))
}

func testVariablesAndEvents(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	require.NoError(t, p.Workflows().Save(ctx, Workflow("wf-1")))
	require.NoError(t, p.Instances().Create(ctx, newInstance("i-1", "wf-1", "1", models.InstanceStatusActive)))

	vars := p.Variables()
	v := &models.InstanceVariable{
		ID: "iv-1", InstanceID: "i-1", VariableID: "wf-1-v1", Name: "amount",
		Type: models.VariableTypeNumber, Value: "0", UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, vars.Create(ctx, v))

	v.Value = "42"
	require.NoError(t, vars.Update(ctx, v))

	got, err := vars.Get(ctx, "i-1", "wf-1-v1")
	require.NoError(t, err)
	assert.Equal(t, "42", got.Value)

	list, err := vars.ListByInstance(ctx, "i-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = vars.Get(ctx, "i-1", "missing")
	assert.True(t, persistence.IsNotFound(err))

	events := p.Events()
	for i, typ := range []models.EventType{models.EventStart, models.EventTransition, models.EventFinish} {
		require.NoError(t, events.Append(ctx, &models.Event{
			ID:         "e-" + string(typ),
			InstanceID: "i-1",
			Type:       typ,
			CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}))
	}

	log, err := events.ListByInstance(ctx, "i-1")
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, models.EventStart, log[0].Type)
	assert.Equal(t, models.EventFinish, log[2].Type)
}

func testEntitiesAndDirectory(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	entities := p.Entities()
	require.NoError(t, entities.Save(ctx, &models.Entity{
		Name: "Order", Key: "100", StatusID: "ORDER_OPEN", Fields: map[string]string{"amount": "250"},
	}))
	require.NoError(t, entities.UpdateStatus(ctx, "Order", "100", "ORDER_APPROVED"))

	e, err := entities.Get(ctx, "Order", "100")
	require.NoError(t, err)
	assert.Equal(t, "ORDER_APPROVED", e.StatusID)
	assert.Equal(t, "250", e.Fields["amount"])

	assert.True(t, persistence.IsNotFound(entities.UpdateStatus(ctx, "Order", "404", "X")))

	dir := p.Directory()
	require.NoError(t, dir.SaveUser(ctx, &models.User{ID: "alice", Username: "alice", Email: "alice@example.com"}))

	u, err := dir.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = dir.GetUser(ctx, "nobody")
	assert.True(t, persistence.IsNotFound(err))

	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	require.NoError(t, dir.AddGroupMember(ctx, &models.GroupMember{GroupID: "g", UserID: "alice", FromDate: past}))
	require.NoError(t, dir.AddGroupMember(ctx, &models.GroupMember{GroupID: "g", UserID: "bob", FromDate: past.Add(-time.Hour), ThruDate: &past}))
	require.NoError(t, dir.AddGroupMember(ctx, &models.GroupMember{GroupID: "g", UserID: "carol", FromDate: now.Add(time.Hour)}))

	members, err := dir.GroupMembers(ctx, "g", now)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)
}
