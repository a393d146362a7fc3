// Package memory provides an in-memory Persistence for tests and single-process development.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
)

// Store keeps every record in maps guarded by one RWMutex. Records are copied on the way
// in and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	workflows  map[string]*models.Workflow
	initiators map[string]*models.Initiator
	instances  map[string]*models.Instance
	tasks      map[string]*models.Task
	variables  map[string]*models.InstanceVariable // key: instance ID + "/" + variable ID
	events     map[string][]*models.Event          // key: instance ID
	entities   map[string]*models.Entity           // key: entity name + "/" + key
	users      map[string]*models.User
	members    map[string][]*models.GroupMember // key: group ID

	onChange func()
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		workflows:  make(map[string]*models.Workflow),
		initiators: make(map[string]*models.Initiator),
		instances:  make(map[string]*models.Instance),
		tasks:      make(map[string]*models.Task),
		variables:  make(map[string]*models.InstanceVariable),
		events:     make(map[string][]*models.Event),
		entities:   make(map[string]*models.Entity),
		users:      make(map[string]*models.User),
		members:    make(map[string][]*models.GroupMember),
	}
}

// OnChange registers fn to run after every successful mutation, outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onChange = fn
}

func (s *Store) write(fn func() error) error {
	s.mu.Lock()
	err := fn()
	hook := s.onChange
	s.mu.Unlock()

	if err == nil && hook != nil {
		hook()
	}

	return err
}

func (s *Store) Workflows() persistence.WorkflowRepository  { return workflowRepo{s} }
func (s *Store) Instances() persistence.InstanceRepository  { return instanceRepo{s} }
func (s *Store) Tasks() persistence.TaskRepository          { return taskRepo{s} }
func (s *Store) Variables() persistence.VariableRepository  { return variableRepo{s} }
func (s *Store) Events() persistence.EventRepository        { return eventRepo{s} }
func (s *Store) Entities() persistence.EntityRepository     { return entityRepo{s} }
func (s *Store) Directory() persistence.DirectoryRepository { return directoryRepo{s} }
func (s *Store) HealthCheck(_ context.Context) error        { return nil }
func (s *Store) Close(_ context.Context) error              { return nil }

// Workflows

type workflowRepo struct{ s *Store }

func (r workflowRepo) Save(_ context.Context, wf *models.Workflow) error {
	return r.s.write(func() error {
		now := time.Now().UTC()
		if existing, ok := r.s.workflows[wf.ID]; ok {
			wf.CreatedAt = existing.CreatedAt
		} else if wf.CreatedAt.IsZero() {
			wf.CreatedAt = now
		}

		wf.UpdatedAt = now
		r.s.workflows[wf.ID] = cloneWorkflow(wf)

		return nil
	})
}

func (r workflowRepo) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wf, ok := r.s.workflows[id]
	if !ok {
		return nil, persistence.NotFound("GetByID", "workflow", id)
	}

	return cloneWorkflow(wf), nil
}

func (r workflowRepo) List(_ context.Context) ([]*models.Workflow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(r.s.workflows))
	for _, wf := range r.s.workflows {
		out = append(out, cloneWorkflow(wf))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (r workflowRepo) SetDisabled(_ context.Context, id string, disabled bool) error {
	return r.s.write(func() error {
		wf, ok := r.s.workflows[id]
		if !ok {
			return persistence.NotFound("SetDisabled", "workflow", id)
		}

		wf.Disabled = disabled
		wf.UpdatedAt = time.Now().UTC()

		return nil
	})
}

func (r workflowRepo) SaveVariable(_ context.Context, v *models.WorkflowVariable) error {
	return r.s.write(func() error {
		wf, ok := r.s.workflows[v.WorkflowID]
		if !ok {
			return persistence.NotFound("SaveVariable", "workflow", v.WorkflowID)
		}

		cp := *v
		for i, existing := range wf.Variables {
			if existing.ID == v.ID {
				wf.Variables[i] = &cp

				return nil
			}
		}

		wf.Variables = append(wf.Variables, &cp)

		return nil
	})
}

func (r workflowRepo) SaveInitiator(_ context.Context, in *models.Initiator) error {
	return r.s.write(func() error {
		if _, ok := r.s.workflows[in.WorkflowID]; !ok {
			return persistence.NotFound("SaveInitiator", "workflow", in.WorkflowID)
		}

		r.s.initiators[in.ID] = cloneInitiator(in)

		return nil
	})
}

func (r workflowRepo) GetInitiator(_ context.Context, id string) (*models.Initiator, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	in, ok := r.s.initiators[id]
	if !ok {
		return nil, persistence.NotFound("GetInitiator", "initiator", id)
	}

	return cloneInitiator(in), nil
}

func (r workflowRepo) Initiators(_ context.Context, workflowID string) ([]*models.Initiator, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.Initiator

	for _, in := range r.s.initiators {
		if in.WorkflowID == workflowID {
			out = append(out, cloneInitiator(in))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// Instances

type instanceRepo struct{ s *Store }

func (r instanceRepo) Create(_ context.Context, inst *models.Instance) error {
	return r.s.write(func() error {
		if _, ok := r.s.instances[inst.ID]; ok {
			return persistence.NewError("Create", "instance", inst.ID, persistence.ErrConflict)
		}

		r.s.instances[inst.ID] = cloneInstance(inst)

		return nil
	})
}

func (r instanceRepo) GetByID(_ context.Context, id string) (*models.Instance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	inst, ok := r.s.instances[id]
	if !ok {
		return nil, persistence.NotFound("GetByID", "instance", id)
	}

	return cloneInstance(inst), nil
}

func (r instanceRepo) Update(_ context.Context, inst *models.Instance) error {
	return r.s.write(func() error {
		existing, ok := r.s.instances[inst.ID]
		if !ok {
			return persistence.NotFound("Update", "instance", inst.ID)
		}

		cp := cloneInstance(inst)
		cp.Owner = existing.Owner
		cp.OwnerExpiresAt = existing.OwnerExpiresAt
		r.s.instances[inst.ID] = cp

		return nil
	})
}

func (r instanceRepo) Find(_ context.Context, opts query.Options) ([]*models.Instance, int64, error) {
	if err := opts.Validate(persistence.InstanceFields); err != nil {
		return nil, 0, persistence.NewError("Find", "instance", "", errors.Join(persistence.ErrInvalidField, err))
	}

	r.s.mu.RLock()
	all := make([]*models.Instance, 0, len(r.s.instances))
	for _, inst := range r.s.instances {
		all = append(all, cloneInstance(inst))
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	page, total := query.Apply(all, opts)

	return page, total, nil
}

func (r instanceRepo) SetOwner(_ context.Context, id, owner string) error {
	return r.s.write(func() error {
		inst, ok := r.s.instances[id]
		if !ok {
			return persistence.NotFound("SetOwner", "instance", id)
		}

		inst.Owner = owner
		inst.OwnerExpiresAt = nil

		return nil
	})
}

func (r instanceRepo) TryAcquireOwner(_ context.Context, id, owner string, now, expiresAt time.Time) (bool, error) {
	acquired := false

	err := r.s.write(func() error {
		inst, ok := r.s.instances[id]
		if !ok {
			return persistence.NotFound("TryAcquireOwner", "instance", id)
		}

		free := inst.Owner == "" || inst.Owner == owner ||
			(inst.OwnerExpiresAt != nil && inst.OwnerExpiresAt.Before(now))
		if !free {
			return nil
		}

		inst.Owner = owner
		exp := expiresAt
		inst.OwnerExpiresAt = &exp
		acquired = true

		return nil
	})

	return acquired, err
}

func (r instanceRepo) ReleaseOwner(_ context.Context, id, owner string) error {
	return r.s.write(func() error {
		inst, ok := r.s.instances[id]
		if !ok {
			return persistence.NotFound("ReleaseOwner", "instance", id)
		}

		if inst.Owner == owner {
			inst.Owner = ""
			inst.OwnerExpiresAt = nil
		}

		return nil
	})
}

// Tasks

type taskRepo struct{ s *Store }

func (r taskRepo) Create(_ context.Context, task *models.Task) error {
	return r.s.write(func() error {
		if _, ok := r.s.tasks[task.ID]; ok {
			return persistence.NewError("Create", "task", task.ID, persistence.ErrConflict)
		}

		r.s.tasks[task.ID] = cloneTask(task)

		return nil
	})
}

func (r taskRepo) GetByID(_ context.Context, id string) (*models.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	task, ok := r.s.tasks[id]
	if !ok {
		return nil, persistence.NotFound("GetByID", "task", id)
	}

	return cloneTask(task), nil
}

func (r taskRepo) Update(_ context.Context, task *models.Task) error {
	return r.s.write(func() error {
		if _, ok := r.s.tasks[task.ID]; !ok {
			return persistence.NotFound("Update", "task", task.ID)
		}

		r.s.tasks[task.ID] = cloneTask(task)

		return nil
	})
}

func (r taskRepo) Find(_ context.Context, opts query.Options) ([]*models.Task, int64, error) {
	if err := opts.Validate(persistence.TaskFields); err != nil {
		return nil, 0, persistence.NewError("Find", "task", "", errors.Join(persistence.ErrInvalidField, err))
	}

	r.s.mu.RLock()
	all := make([]*models.Task, 0, len(r.s.tasks))
	for _, task := range r.s.tasks {
		all = append(all, cloneTask(task))
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}

		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	page, total := query.Apply(all, opts)

	return page, total, nil
}

func (r taskRepo) Count(ctx context.Context, where query.Condition) (int64, error) {
	_, total, err := r.Find(ctx, query.Options{Where: where})

	return total, err
}

// Variables

type variableRepo struct{ s *Store }

func variableKey(instanceID, variableID string) string {
	return instanceID + "/" + variableID
}

func (r variableRepo) Create(_ context.Context, v *models.InstanceVariable) error {
	return r.s.write(func() error {
		key := variableKey(v.InstanceID, v.VariableID)
		if _, ok := r.s.variables[key]; ok {
			return persistence.NewError("Create", "variable", v.ID, persistence.ErrConflict)
		}

		cp := *v
		r.s.variables[key] = &cp

		return nil
	})
}

func (r variableRepo) Update(_ context.Context, v *models.InstanceVariable) error {
	return r.s.write(func() error {
		key := variableKey(v.InstanceID, v.VariableID)
		if _, ok := r.s.variables[key]; !ok {
			return persistence.NotFound("Update", "variable", v.VariableID)
		}

		cp := *v
		r.s.variables[key] = &cp

		return nil
	})
}

func (r variableRepo) Get(_ context.Context, instanceID, variableID string) (*models.InstanceVariable, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.variables[variableKey(instanceID, variableID)]
	if !ok {
		return nil, persistence.NotFound("Get", "variable", variableID)
	}

	cp := *v

	return &cp, nil
}

func (r variableRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.InstanceVariable, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.InstanceVariable

	for _, v := range r.s.variables {
		if v.InstanceID == instanceID {
			cp := *v
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// Events

type eventRepo struct{ s *Store }

func (r eventRepo) Append(_ context.Context, e *models.Event) error {
	return r.s.write(func() error {
		cp := *e
		r.s.events[e.InstanceID] = append(r.s.events[e.InstanceID], &cp)

		return nil
	})
}

func (r eventRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.Event, 0, len(r.s.events[instanceID]))
	for _, e := range r.s.events[instanceID] {
		cp := *e
		out = append(out, &cp)
	}

	return out, nil
}

// Entities

type entityRepo struct{ s *Store }

func entityKey(name, key string) string {
	return name + "/" + key
}

func (r entityRepo) Get(_ context.Context, name, key string) (*models.Entity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.entities[entityKey(name, key)]
	if !ok {
		return nil, persistence.NotFound("Get", name, key)
	}

	return cloneEntity(e), nil
}

func (r entityRepo) Save(_ context.Context, e *models.Entity) error {
	return r.s.write(func() error {
		r.s.entities[entityKey(e.Name, e.Key)] = cloneEntity(e)

		return nil
	})
}

func (r entityRepo) UpdateStatus(_ context.Context, name, key, statusID string) error {
	return r.s.write(func() error {
		e, ok := r.s.entities[entityKey(name, key)]
		if !ok {
			return persistence.NotFound("UpdateStatus", name, key)
		}

		e.StatusID = statusID

		return nil
	})
}

// Directory

type directoryRepo struct{ s *Store }

func (r directoryRepo) GetUser(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, persistence.NotFound("GetUser", "user", id)
	}

	cp := *u

	return &cp, nil
}

func (r directoryRepo) SaveUser(_ context.Context, u *models.User) error {
	return r.s.write(func() error {
		cp := *u
		r.s.users[u.ID] = &cp

		return nil
	})
}

func (r directoryRepo) AddGroupMember(_ context.Context, m *models.GroupMember) error {
	return r.s.write(func() error {
		cp := *m
		r.s.members[m.GroupID] = append(r.s.members[m.GroupID], &cp)

		return nil
	})
}

func (r directoryRepo) GroupMembers(_ context.Context, groupID string, at time.Time) ([]*models.GroupMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.GroupMember

	for _, m := range r.s.members[groupID] {
		if m.Covers(at) {
			cp := *m
			out = append(out, &cp)
		}
	}

	return out, nil
}

func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	data, err := json.Marshal(wf)
	if err != nil {
		panic(err)
	}

	var cp models.Workflow
	if err := json.Unmarshal(data, &cp); err != nil {
		panic(err)
	}

	return &cp
}

func cloneInitiator(in *models.Initiator) *models.Initiator {
	cp := *in
	cp.ThruDate = cloneTime(in.ThruDate)

	return &cp
}

func cloneInstance(inst *models.Instance) *models.Instance {
	cp := *inst
	cp.TimeoutAt = cloneTime(inst.TimeoutAt)
	cp.OwnerExpiresAt = cloneTime(inst.OwnerExpiresAt)

	return &cp
}

func cloneTask(task *models.Task) *models.Task {
	cp := *task
	cp.CompletedAt = cloneTime(task.CompletedAt)
	cp.RemindedAt = cloneTime(task.RemindedAt)

	return &cp
}

func cloneEntity(e *models.Entity) *models.Entity {
	cp := *e
	cp.Fields = make(map[string]string, len(e.Fields))

	for k, v := range e.Fields {
		cp.Fields[k] = v
	}

	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	cp := *t

	return &cp
}
