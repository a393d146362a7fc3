package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/netvariant/moqui-workflow/pkg/channels/gochannel"
	"github.com/netvariant/moqui-workflow/pkg/eventbus"
	"github.com/netvariant/moqui-workflow/pkg/events"
	"github.com/netvariant/moqui-workflow/pkg/lock"
	"github.com/netvariant/moqui-workflow/pkg/log"
	"github.com/netvariant/moqui-workflow/pkg/mocks"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/memory"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
	"github.com/netvariant/moqui-workflow/pkg/script"
	"github.com/netvariant/moqui-workflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store  *memory.Store
	engine *Engine
	now    time.Time
}

func newHarness(t *testing.T, wf *models.Workflow, configure ...func(*Options)) *harness {
	t.Helper()

	ctx := context.Background()
	h := &harness{store: memory.NewStore(), now: testutil.Now}
	clock := testutil.Clock(&h.now)

	require.NoError(t, testutil.Seed(ctx, h.store, wf,
		&models.Entity{Name: "Order", Key: "order-1", StatusID: "Draft", Fields: map[string]string{"urgent": "Y"}},
		&models.Entity{Name: "Order", Key: "order-2", StatusID: "Draft", Fields: map[string]string{"urgent": "N"}},
	))

	opts := Options{
		Store:   h.store,
		Locker:  lock.NewLeaseLocker(h.store.Instances(), time.Minute).WithClock(clock),
		Scripts: script.NewExprEngine(),
		Logger:  log.Discard(),
		Owner:   "worker-b",
		Now:     clock,
	}

	for _, c := range configure {
		c(&opts)
	}

	e, err := New(opts)
	require.NoError(t, err)

	h.engine = e

	return h
}

func (h *harness) create(t *testing.T, key string) *models.Instance {
	t.Helper()

	inst, err := h.engine.CreateInstance(context.Background(), CreateInstanceRequest{
		WorkflowID:      "wf-test",
		PrimaryKeyValue: key,
		InputUserID:     "alice",
	})
	require.NoError(t, err)

	return inst
}

func (h *harness) instance(t *testing.T, id string) *models.Instance {
	t.Helper()

	inst, err := h.store.Instances().GetByID(context.Background(), id)
	require.NoError(t, err)

	return inst
}

func (h *harness) tasks(t *testing.T, instanceID string) []*models.Task {
	t.Helper()

	tasks, _, err := h.store.Tasks().Find(context.Background(), query.Options{Where: query.Eq("instance_id", instanceID)})
	require.NoError(t, err)

	return tasks
}

func (h *harness) events(t *testing.T, instanceID string) []*models.Event {
	t.Helper()

	events, err := h.store.Events().ListByInstance(context.Background(), instanceID)
	require.NoError(t, err)

	return events
}

func approvalStep() models.UserData {
	return models.UserData{
		TaskType:     models.TaskTypeApproval,
		JoinOperator: models.JoinAnd,
		Crowds:       []models.Crowd{{Type: models.CrowdTypeUser, UserID: "bob", MinApprovals: 1}},
		Summary:      "Approve order",
	}
}

// approvalWorkflow checks the order is urgent, asks for approval and exits with the
// outcome as result code.
func approvalWorkflow(step models.UserData, overrides ...func(*models.Workflow)) *models.Workflow {
	graph := testutil.WithGraph(
		[]*models.Activity{
			testutil.CreateTestActivity("enter", models.ActivityTypeEnter, nil),
			testutil.CreateTestActivity("check", models.ActivityTypeCondition, models.ConditionData{
				ConditionType: models.ConditionSourceField,
				JoinOperator:  models.JoinAnd,
				Conditions:    []models.ConditionEntry{{FieldName: "urgent", Operator: "BOOL_TRUE"}},
			}),
			testutil.CreateTestActivity("approve", models.ActivityTypeUser, step),
			testutil.CreateTestActivity("approved", models.ActivityTypeExit, models.ExitData{ResultCode: "APPROVED"}),
			testutil.CreateTestActivity("rejected", models.ActivityTypeExit, models.ExitData{ResultCode: "REJECTED"}),
			testutil.CreateTestActivity("expired", models.ActivityTypeExit, models.ExitData{ResultCode: "TIMEOUT"}),
		},
		testutil.Edge("enter", models.PortSuccess, "check"),
		testutil.Edge("check", models.PortSuccess, "approve"),
		testutil.Edge("check", models.PortFailure, "rejected"),
		testutil.Edge("approve", models.PortSuccess, "approved"),
		testutil.Edge("approve", models.PortFailure, "rejected"),
		testutil.Edge("approve", models.PortTimeout, "expired"),
	)

	return testutil.CreateTestWorkflow(append([]func(*models.Workflow){graph}, overrides...)...)
}

func TestScenario_ApprovalCompletesInstance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-1")
	assert.Equal(t, models.InstanceStatusPending, inst.Status)
	assert.Empty(t, h.events(t, inst.ID))

	require.NoError(t, h.engine.Start(ctx, inst.ID))

	waiting := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusActive, waiting.Status)
	assert.Equal(t, "approve", waiting.ActivityID)
	assert.True(t, waiting.ActivityExecuted)
	assert.Equal(t, 3, waiting.Visit)
	assert.Empty(t, waiting.Owner)

	tasks := h.tasks(t, inst.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "bob", tasks[0].AssignedUserID)
	assert.Equal(t, models.TaskStatusPending, tasks[0].Status)

	var types []models.EventType
	for _, e := range h.events(t, inst.ID) {
		types = append(types, e.Type)
	}

	assert.Equal(t, []models.EventType{
		models.EventStart, models.EventActivity,
		models.EventTransition, models.EventActivity,
		models.EventTransition, models.EventActivity,
	}, types)

	_, err := h.engine.UpdateTask(ctx, UpdateTaskRequest{TaskID: tasks[0].ID, UserID: "bob", Status: models.TaskStatusApproved})
	require.NoError(t, err)

	done := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusComplete, done.Status)
	assert.Equal(t, "approved", done.ActivityID)
	assert.Equal(t, "APPROVED", done.ResultCode)

	events := h.events(t, inst.ID)
	assert.Equal(t, models.EventFinish, events[len(events)-1].Type)
}

func TestScenario_Rejection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	tasks := h.tasks(t, inst.ID)
	require.Len(t, tasks, 1)

	_, err := h.engine.UpdateTask(ctx, UpdateTaskRequest{TaskID: tasks[0].ID, UserID: "bob", Status: models.TaskStatusRejected, Remark: "too expensive"})
	require.NoError(t, err)

	done := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusComplete, done.Status)
	assert.Equal(t, "REJECTED", done.ResultCode)
}

func TestStart_ConditionNotMet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-2")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	done := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusComplete, done.Status)
	assert.Equal(t, "REJECTED", done.ResultCode)
	assert.Empty(t, h.tasks(t, inst.ID))
}

func TestStart_ReinvokeWhileWaitingIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	before := h.instance(t, inst.ID)
	events := len(h.events(t, inst.ID))

	for range 3 {
		require.NoError(t, h.engine.Start(ctx, inst.ID))
	}

	after := h.instance(t, inst.ID)
	assert.Len(t, h.tasks(t, inst.ID), 1)
	assert.Len(t, h.events(t, inst.ID), events)
	assert.Equal(t, before.ActivityID, after.ActivityID)
	assert.Equal(t, before.Visit, after.Visit)
	assert.True(t, after.ActivityExecuted)
}

func TestStart_HeldByAnotherWorker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-1")

	other := lock.NewLeaseLocker(h.store.Instances(), time.Minute).WithClock(testutil.Clock(&h.now))
	acquired, err := other.Acquire(ctx, inst.ID, "worker-a")
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, h.engine.Start(ctx, inst.ID))

	held := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusPending, held.Status)
	assert.Empty(t, held.ActivityID)
	assert.False(t, held.ActivityExecuted)
	assert.Empty(t, held.OutgoingPort)
	assert.Equal(t, "worker-a", held.Owner)
	assert.Empty(t, h.events(t, inst.ID))

	require.NoError(t, other.Release(ctx, inst.ID, "worker-a"))
	require.NoError(t, h.engine.Start(ctx, inst.ID))
	assert.Equal(t, "approve", h.instance(t, inst.ID).ActivityID)
}

func TestStart_TimeoutFollowsTimeoutPort(t *testing.T) {
	ctx := context.Background()

	step := approvalStep()
	step.TimeoutInterval = 1
	step.TimeoutUom = "TF_hr"

	h := newHarness(t, approvalWorkflow(step))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	waiting := h.instance(t, inst.ID)
	require.NotNil(t, waiting.TimeoutAt)
	assert.Equal(t, testutil.Now.Add(time.Hour), *waiting.TimeoutAt)

	h.now = h.now.Add(2 * time.Hour)

	require.NoError(t, h.engine.Start(ctx, inst.ID))

	done := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusComplete, done.Status)
	assert.Equal(t, "TIMEOUT", done.ResultCode)
	assert.Nil(t, done.TimeoutAt)

	tasks := h.tasks(t, inst.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusObsolete, tasks[0].Status)
}

func TestStart_ParksWithoutTransition(t *testing.T) {
	ctx := context.Background()
	wf := testutil.CreateTestWorkflow(testutil.WithGraph(
		[]*models.Activity{
			testutil.CreateTestActivity("enter", models.ActivityTypeEnter, nil),
			testutil.CreateTestActivity("check", models.ActivityTypeCondition, models.ConditionData{
				ConditionType: models.ConditionSourceField,
				Conditions:    []models.ConditionEntry{{FieldName: "urgent", Operator: "BOOL_TRUE"}},
			}),
		},
		testutil.Edge("enter", models.PortSuccess, "check"),
	))
	h := newHarness(t, wf)

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	parked := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusActive, parked.Status)
	assert.Equal(t, "check", parked.ActivityID)
	assert.True(t, parked.ActivityExecuted)
	assert.Equal(t, models.PortSuccess, parked.OutgoingPort)

	events := len(h.events(t, inst.ID))
	require.NoError(t, h.engine.Start(ctx, inst.ID))
	assert.Len(t, h.events(t, inst.ID), events)
}

func TestStart_ParksOnInvalidData(t *testing.T) {
	ctx := context.Background()
	wf := testutil.CreateTestWorkflow(testutil.WithGraph(
		[]*models.Activity{
			testutil.CreateTestActivity("enter", models.ActivityTypeEnter, nil),
			testutil.CreateTestActivity("adjust", models.ActivityTypeAdjust, map[string]any{"statusId": "Approved"}),
		},
		testutil.Edge("enter", models.PortSuccess, "adjust"),
	))
	h := newHarness(t, wf)

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	parked := h.instance(t, inst.ID)
	assert.Equal(t, "adjust", parked.ActivityID)
	assert.False(t, parked.ActivityExecuted)
	assert.Empty(t, parked.Owner)
}

func TestStart_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, h *harness, inst *models.Instance)
		wantErr error
	}{
		{
			name: "unknown instance",
			prepare: func(_ *testing.T, _ *harness, inst *models.Instance) {
				inst.ID = "inst-missing"
			},
			wantErr: ErrInstanceNotFound,
		},
		{
			name: "suspended",
			prepare: func(t *testing.T, h *harness, inst *models.Instance) {
				require.NoError(t, h.engine.Suspend(context.Background(), inst.ID, "alice"))
			},
			wantErr: ErrNotOperable,
		},
		{
			name: "aborted",
			prepare: func(t *testing.T, h *harness, inst *models.Instance) {
				require.NoError(t, h.engine.Abort(context.Background(), inst.ID, "alice"))
			},
			wantErr: ErrNotOperable,
		},
		{
			name: "workflow disabled",
			prepare: func(t *testing.T, h *harness, _ *models.Instance) {
				require.NoError(t, h.engine.DisableWorkflow(context.Background(), "wf-test"))
			},
			wantErr: ErrWorkflowDisabled,
		},
		{
			name: "no enter activity",
			prepare: func(t *testing.T, h *harness, _ *models.Instance) {
				wf := testutil.CreateTestWorkflow(testutil.WithGraph([]*models.Activity{
					testutil.CreateTestActivity("exit", models.ActivityTypeExit, nil),
				}))
				require.NoError(t, h.store.Workflows().Save(context.Background(), wf))
			},
			wantErr: ErrNoEnterActivity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, approvalWorkflow(approvalStep()))
			inst := h.create(t, "order-1")

			tt.prepare(t, h, inst)

			err := h.engine.Start(context.Background(), inst.ID)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsRequestError(err))
		})
	}
}

func TestCreateInstance_Rules(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, h *harness)
		req     CreateInstanceRequest
		wantErr error
	}{
		{
			name:    "missing key",
			req:     CreateInstanceRequest{WorkflowID: "wf-test"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown workflow",
			req:     CreateInstanceRequest{WorkflowID: "wf-missing", PrimaryKeyValue: "order-1"},
			wantErr: ErrWorkflowNotFound,
		},
		{
			name:    "unknown record",
			req:     CreateInstanceRequest{WorkflowID: "wf-test", PrimaryKeyValue: "order-404"},
			wantErr: ErrEntityNotFound,
		},
		{
			name: "disabled workflow",
			prepare: func(t *testing.T, h *harness) {
				require.NoError(t, h.engine.DisableWorkflow(context.Background(), "wf-test"))
			},
			req:     CreateInstanceRequest{WorkflowID: "wf-test", PrimaryKeyValue: "order-1"},
			wantErr: ErrWorkflowDisabled,
		},
		{
			name: "open instance exists",
			prepare: func(t *testing.T, h *harness) {
				h.create(t, "order-1")
			},
			req:     CreateInstanceRequest{WorkflowID: "wf-test", PrimaryKeyValue: "order-1"},
			wantErr: ErrDuplicateInstance,
		},
		{
			name: "user outside initiator groups",
			prepare: func(t *testing.T, h *harness) {
				require.NoError(t, h.engine.CreateInitiator(context.Background(), &models.Initiator{WorkflowID: "wf-test", UserGroupID: "approvers"}))
			},
			req:     CreateInstanceRequest{WorkflowID: "wf-test", PrimaryKeyValue: "order-1", InputUserID: "alice"},
			wantErr: ErrNotInitiator,
		},
		{
			name: "initiator group member",
			prepare: func(t *testing.T, h *harness) {
				require.NoError(t, h.engine.CreateInitiator(context.Background(), &models.Initiator{WorkflowID: "wf-test", UserGroupID: "approvers"}))
			},
			req: CreateInstanceRequest{WorkflowID: "wf-test", PrimaryKeyValue: "order-1", InputUserID: "bob"},
		},
		{
			name: "previous instance finished",
			prepare: func(t *testing.T, h *harness) {
				inst := h.create(t, "order-1")
				require.NoError(t, h.engine.Abort(context.Background(), inst.ID, "alice"))
			},
			req: CreateInstanceRequest{WorkflowID: "wf-test", PrimaryKeyValue: "order-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testutil.CreateTestWorkflow(testutil.WithVariables(
				testutil.Variable("v-amount", "amount", models.VariableTypeNumber, "10"),
			)))

			if tt.prepare != nil {
				tt.prepare(t, h)
			}

			inst, err := h.engine.CreateInstance(context.Background(), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, models.InstanceStatusPending, inst.Status)

			vars, err := h.store.Variables().ListByInstance(context.Background(), inst.ID)
			require.NoError(t, err)
			require.Len(t, vars, 1)
			assert.Equal(t, "10", vars[0].Value)
		})
	}
}

func TestSuspendResumeAbort(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	require.ErrorIs(t, h.engine.Resume(ctx, inst.ID, "alice"), ErrNotOperable)

	require.NoError(t, h.engine.Suspend(ctx, inst.ID, "alice"))
	assert.Equal(t, models.InstanceStatusSuspended, h.instance(t, inst.ID).Status)
	require.ErrorIs(t, h.engine.Suspend(ctx, inst.ID, "alice"), ErrNotOperable)

	require.NoError(t, h.engine.Resume(ctx, inst.ID, "alice"))
	resumed := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusActive, resumed.Status)
	assert.Equal(t, "approve", resumed.ActivityID)
	assert.Len(t, h.tasks(t, inst.ID), 1)

	require.NoError(t, h.engine.Abort(ctx, inst.ID, "carol"))

	aborted := h.instance(t, inst.ID)
	assert.Equal(t, models.InstanceStatusAborted, aborted.Status)
	assert.Nil(t, aborted.TimeoutAt)
	assert.Empty(t, aborted.Owner)

	for _, task := range h.tasks(t, inst.ID) {
		assert.Equal(t, models.TaskStatusObsolete, task.Status)
	}

	events := h.events(t, inst.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventFinish, last.Type)
	assert.Equal(t, "Workflow aborted", last.Description)
	assert.Equal(t, "carol", last.UserID)

	var suspend, resume int
	for _, e := range events {
		switch e.Type {
		case models.EventSuspend:
			suspend++
		case models.EventResume:
			resume++
		}
	}

	assert.Equal(t, 1, suspend)
	assert.Equal(t, 1, resume)

	require.ErrorIs(t, h.engine.Abort(ctx, inst.ID, "carol"), ErrNotOperable)
	require.ErrorIs(t, h.engine.Suspend(ctx, inst.ID, "carol"), ErrNotOperable)
}

func TestSuspend_Busy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-1")

	other := lock.NewLeaseLocker(h.store.Instances(), time.Minute).WithClock(testutil.Clock(&h.now))
	acquired, err := other.Acquire(ctx, inst.ID, "worker-a")
	require.NoError(t, err)
	require.True(t, acquired)

	require.ErrorIs(t, h.engine.Suspend(ctx, inst.ID, "alice"), ErrInstanceBusy)
	assert.Equal(t, models.InstanceStatusPending, h.instance(t, inst.ID).Status)
}

// flakyLocker fails to acquire one instance.
type flakyLocker struct {
	lock.Locker

	broken string
}

func (l flakyLocker) Acquire(ctx context.Context, instanceID, owner string) (bool, error) {
	if instanceID == l.broken {
		return false, errors.New("connection reset")
	}

	return l.Locker.Acquire(ctx, instanceID, owner)
}

func TestSweepElapsed_IsolatesFailures(t *testing.T) {
	ctx := context.Background()

	step := approvalStep()
	step.TimeoutInterval = 30
	step.TimeoutUom = "TF_min"

	locker := &flakyLocker{}
	h := newHarness(t, approvalWorkflow(step), func(o *Options) {
		locker.Locker = o.Locker
		o.Locker = locker
	})

	first := h.create(t, "order-1")
	second := h.create(t, "order-2")

	// order-2 is not urgent and finishes right away.
	require.NoError(t, h.engine.Start(ctx, first.ID))
	require.NoError(t, h.engine.Start(ctx, second.ID))

	result, err := h.engine.SweepElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	h.now = h.now.Add(time.Hour)
	locker.broken = first.ID

	result, err = h.engine.SweepElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Failed: 1}, result)

	locker.broken = ""

	result, err = h.engine.SweepElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Started: 1}, result)
	assert.Equal(t, "TIMEOUT", h.instance(t, first.ID).ResultCode)
}

// lostLease renews nothing: another worker took the instance over.
type lostLease struct {
	lock.Locker
}

func (lostLease) Renew(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestStart_StopsWhenLeaseLost(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()), func(o *Options) {
		o.Locker = lostLease{Locker: o.Locker}
	})

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	stopped := h.instance(t, inst.ID)
	assert.Equal(t, "enter", stopped.ActivityID)
	assert.False(t, stopped.ActivityExecuted)
	assert.Empty(t, h.tasks(t, inst.ID))
}

func TestSweepElapsed_CountsHeldAsSkipped(t *testing.T) {
	ctx := context.Background()

	step := approvalStep()
	step.TimeoutInterval = 30
	step.TimeoutUom = "TF_min"

	h := newHarness(t, approvalWorkflow(step))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	h.now = h.now.Add(time.Hour)

	other := lock.NewLeaseLocker(h.store.Instances(), 2*time.Hour).WithClock(testutil.Clock(&h.now))
	acquired, err := other.Acquire(ctx, inst.ID, "worker-a")
	require.NoError(t, err)
	require.True(t, acquired)

	result, err := h.engine.SweepElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Skipped: 1}, result)
	assert.Equal(t, models.InstanceStatusActive, h.instance(t, inst.ID).Status)
}

// failingInstances fails instance updates while broken is set.
type failingInstances struct {
	persistence.InstanceRepository

	broken bool
}

func (r *failingInstances) Update(ctx context.Context, inst *models.Instance) error {
	if r.broken {
		return errors.New("connection reset")
	}

	return r.InstanceRepository.Update(ctx, inst)
}

type failingInstanceStore struct {
	*memory.Store

	instances *failingInstances
}

func (s *failingInstanceStore) Instances() persistence.InstanceRepository {
	return s.instances
}

func TestAbort_FailedUpdateKeepsTasksOpen(t *testing.T) {
	ctx := context.Background()

	var instances *failingInstances

	h := newHarness(t, approvalWorkflow(approvalStep()), func(o *Options) {
		store := o.Store.(*memory.Store)
		instances = &failingInstances{InstanceRepository: store.Instances()}
		o.Store = &failingInstanceStore{Store: store, instances: instances}
	})

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	instances.broken = true
	require.Error(t, h.engine.Abort(ctx, inst.ID, "carol"))

	assert.Equal(t, models.InstanceStatusActive, h.instance(t, inst.ID).Status)
	for _, task := range h.tasks(t, inst.ID) {
		assert.Equal(t, models.TaskStatusPending, task.Status)
	}

	instances.broken = false
	require.NoError(t, h.engine.Abort(ctx, inst.ID, "carol"))

	assert.Equal(t, models.InstanceStatusAborted, h.instance(t, inst.ID).Status)
	for _, task := range h.tasks(t, inst.ID) {
		assert.Equal(t, models.TaskStatusObsolete, task.Status)
	}
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep()))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	task := h.tasks(t, inst.ID)[0]

	tests := []struct {
		name    string
		req     UpdateTaskRequest
		wantErr error
	}{
		{"unknown task", UpdateTaskRequest{TaskID: "task-missing", UserID: "bob", Status: models.TaskStatusDone}, ErrTaskNotFound},
		{"not the assignee", UpdateTaskRequest{TaskID: task.ID, UserID: "carol", Status: models.TaskStatusApproved}, ErrNotAssignee},
		{"status not allowed", UpdateTaskRequest{TaskID: task.ID, UserID: "bob", Status: models.TaskStatusObsolete}, ErrInvalidInput},
		{"missing user", UpdateTaskRequest{TaskID: task.ID, Status: models.TaskStatusDone}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.UpdateTask(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	updated, err := h.engine.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, UserID: "bob", Status: models.TaskStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, updated.Status)
	assert.Nil(t, updated.CompletedAt)
	assert.Equal(t, models.InstanceStatusActive, h.instance(t, inst.ID).Status)

	updated, err = h.engine.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, UserID: "bob", Status: models.TaskStatusApproved})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, testutil.Now, *updated.CompletedAt)

	_, err = h.engine.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, UserID: "bob", Status: models.TaskStatusDone})
	require.ErrorIs(t, err, ErrNotOperable)
}

func TestUpdateTask_VariableTaskStoresValue(t *testing.T) {
	ctx := context.Background()
	step := models.UserData{
		TaskType:   models.TaskTypeVariable,
		Crowds:     []models.Crowd{{Type: models.CrowdTypeInitiator}},
		VariableID: "v-amount",
	}
	h := newHarness(t, approvalWorkflow(step, testutil.WithVariables(
		testutil.Variable("v-amount", "amount", models.VariableTypeNumber, "10"),
	)))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	tasks := h.tasks(t, inst.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "alice", tasks[0].AssignedUserID)

	_, err := h.engine.UpdateTask(ctx, UpdateTaskRequest{TaskID: tasks[0].ID, UserID: "alice", Status: models.TaskStatusDone, Value: "42"})
	require.NoError(t, err)

	v, err := h.store.Variables().Get(ctx, inst.ID, "v-amount")
	require.NoError(t, err)
	assert.Equal(t, "42", v.Value)
	assert.Equal(t, "APPROVED", h.instance(t, inst.ID).ResultCode)
}

func TestUpdateVariable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep(), testutil.WithVariables(
		testutil.Variable("v-amount", "amount", models.VariableTypeNumber, "10"),
		testutil.Variable("v-note", "note", models.VariableTypeText, ""),
	)))

	inst := h.create(t, "order-1")

	v, err := h.engine.UpdateVariable(ctx, inst.ID, "v-amount", "{{amount}} * 3")
	require.NoError(t, err)
	assert.Equal(t, "30", v.Value)

	v, err = h.engine.UpdateVariable(ctx, inst.ID, "v-note", `"rush " + string(amount)`)
	require.NoError(t, err)
	assert.Equal(t, "rush 30", v.Value)

	tests := []struct {
		name       string
		instanceID string
		variableID string
		expression string
		wantErr    error
	}{
		{"blank expression", inst.ID, "v-amount", " ", ErrInvalidInput},
		{"unknown variable", inst.ID, "v-missing", "1", ErrVariableNotFound},
		{"unknown placeholder", inst.ID, "v-amount", "{{missing}} + 1", ErrInvalidInput},
		{"unknown instance", "inst-missing", "v-amount", "1", ErrInstanceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.UpdateVariable(ctx, tt.instanceID, tt.variableID, tt.expression)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.NoError(t, h.engine.Abort(ctx, inst.ID, "alice"))

	_, err = h.engine.UpdateVariable(ctx, inst.ID, "v-amount", "1")
	require.ErrorIs(t, err, ErrNotOperable)
}

func TestSendReminders(t *testing.T) {
	ctx := context.Background()
	notifier := &mocks.MockNotifier{}
	notifier.On("Send", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Recipient == "bob" && msg.Address == "bob@example.com"
	})).Return(nil)

	h := newHarness(t, approvalWorkflow(approvalStep(), testutil.WithReminder(1, "TF_hr")), func(o *Options) {
		o.Notifier = notifier
	})

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	sent, err := h.engine.SendReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	h.now = h.now.Add(90 * time.Minute)

	sent, err = h.engine.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = h.engine.SendReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	h.now = h.now.Add(time.Hour)

	sent, err = h.engine.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	notifier.AssertNumberOfCalls(t, "Send", 2)

	var reminders int
	for _, e := range h.events(t, inst.ID) {
		if e.Type == models.EventReminder {
			reminders++
		}
	}

	assert.Equal(t, 2, reminders)
}

func TestFindTasks(t *testing.T) {
	ctx := context.Background()
	step := approvalStep()
	step.Crowds = []models.Crowd{{Type: models.CrowdTypeUserGroup, UserGroupID: "approvers", MinApprovals: 2}}
	h := newHarness(t, approvalWorkflow(step))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	tasks, total, err := h.engine.FindTasks(ctx, TaskFilter{InstanceID: inst.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, tasks, 2)

	tasks, total, err = h.engine.FindTasks(ctx, TaskFilter{AssignedUserID: "carol", Status: models.TaskStatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "carol", tasks[0].AssignedUserID)

	count, err := h.engine.CountTasks(ctx, TaskFilter{AssignedUserID: "alice"})
	require.NoError(t, err)
	assert.Zero(t, count)

	_, _, err = h.engine.FindTasks(ctx, TaskFilter{OrderBy: "secret"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetInstance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, approvalWorkflow(approvalStep(), testutil.WithVariables(
		testutil.Variable("v-amount", "amount", models.VariableTypeNumber, "10"),
	)))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	view, err := h.engine.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, view.ID)
	assert.Len(t, view.Variables, 1)
	assert.Len(t, view.Tasks, 1)
	assert.Len(t, view.Events, 6)

	_, err = h.engine.GetInstance(ctx, "inst-missing")
	require.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestInitiators(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testutil.CreateTestWorkflow())

	initiator := &models.Initiator{WorkflowID: "wf-test", UserGroupID: "approvers"}
	require.NoError(t, h.engine.CreateInitiator(ctx, initiator))
	assert.Equal(t, testutil.Now, initiator.FromDate)

	h.now = h.now.Add(time.Hour)

	expired, err := h.engine.ExpireInitiator(ctx, initiator.ID)
	require.NoError(t, err)
	require.NotNil(t, expired.ThruDate)
	assert.Equal(t, h.now, *expired.ThruDate)

	list, err := h.engine.ListInitiators(ctx, "wf-test")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active(h.now))

	_, err = h.engine.ExpireInitiator(ctx, "missing")
	require.ErrorIs(t, err, ErrInitiatorNotFound)
}

func TestWorker_AdvancesOnTaskUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{}, gochannel.DefaultBuffer, false)
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, log.Discard())
	t.Cleanup(func() { _ = bus.Close() })

	h := newHarness(t, approvalWorkflow(approvalStep()), func(o *Options) {
		o.Publisher = bus
	})

	require.NoError(t, h.engine.RegisterHandlers(bus))
	require.NoError(t, bus.Subscribe(ctx))

	inst := h.create(t, "order-1")
	require.NoError(t, h.engine.Start(ctx, inst.ID))

	task := h.tasks(t, inst.ID)[0]

	_, err = h.engine.UpdateTask(ctx, UpdateTaskRequest{TaskID: task.ID, UserID: "bob", Status: models.TaskStatusApproved})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.instance(t, inst.ID).Status == models.InstanceStatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.engine.handleStartRequested(ctx, &events.InstanceStartRequested{
		BaseEvent: events.NewBaseEvent(events.InstanceStartRequestedEvent, inst.ID),
		Reason:    "finished instances are dropped",
	}))
}
