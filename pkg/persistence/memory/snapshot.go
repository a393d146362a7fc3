package memory

import "github.com/netvariant/moqui-workflow/pkg/models"

// Snapshot is a serialisable copy of the whole store.
type Snapshot struct {
	Workflows    []*models.Workflow         `json:"workflows"`
	Initiators   []*models.Initiator        `json:"initiators"`
	Instances    []*models.Instance         `json:"instances"`
	Tasks        []*models.Task             `json:"tasks"`
	Variables    []*models.InstanceVariable `json:"variables"`
	Events       []*models.Event            `json:"events"`
	Entities     []*models.Entity           `json:"entities"`
	Users        []*models.User             `json:"users"`
	GroupMembers []*models.GroupMember      `json:"group_members"`
}

// Snapshot copies the current contents of the store.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{}

	for _, wf := range s.workflows {
		snap.Workflows = append(snap.Workflows, cloneWorkflow(wf))
	}

	for _, in := range s.initiators {
		snap.Initiators = append(snap.Initiators, cloneInitiator(in))
	}

	for _, inst := range s.instances {
		snap.Instances = append(snap.Instances, cloneInstance(inst))
	}

	for _, task := range s.tasks {
		snap.Tasks = append(snap.Tasks, cloneTask(task))
	}

	for _, v := range s.variables {
		cp := *v
		snap.Variables = append(snap.Variables, &cp)
	}

	for _, events := range s.events {
		for _, e := range events {
			cp := *e
			snap.Events = append(snap.Events, &cp)
		}
	}

	for _, e := range s.entities {
		snap.Entities = append(snap.Entities, cloneEntity(e))
	}

	for _, u := range s.users {
		cp := *u
		snap.Users = append(snap.Users, &cp)
	}

	for _, members := range s.members {
		for _, m := range members {
			cp := *m
			snap.GroupMembers = append(snap.GroupMembers, &cp)
		}
	}

	return snap
}

// Restore replaces the store contents with snap. The change hook is not invoked.
func (s *Store) Restore(snap *Snapshot) {
	fresh := NewStore()

	for _, wf := range snap.Workflows {
		fresh.workflows[wf.ID] = cloneWorkflow(wf)
	}

	for _, in := range snap.Initiators {
		fresh.initiators[in.ID] = cloneInitiator(in)
	}

	for _, inst := range snap.Instances {
		fresh.instances[inst.ID] = cloneInstance(inst)
	}

	for _, task := range snap.Tasks {
		fresh.tasks[task.ID] = cloneTask(task)
	}

	for _, v := range snap.Variables {
		cp := *v
		fresh.variables[variableKey(v.InstanceID, v.VariableID)] = &cp
	}

	for _, e := range snap.Events {
		cp := *e
		fresh.events[e.InstanceID] = append(fresh.events[e.InstanceID], &cp)
	}

	for _, e := range snap.Entities {
		fresh.entities[entityKey(e.Name, e.Key)] = cloneEntity(e)
	}

	for _, u := range snap.Users {
		cp := *u
		fresh.users[u.ID] = &cp
	}

	for _, m := range snap.GroupMembers {
		cp := *m
		fresh.members[m.GroupID] = append(fresh.members[m.GroupID], &cp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows = fresh.workflows
	s.initiators = fresh.initiators
	s.instances = fresh.instances
	s.tasks = fresh.tasks
	s.variables = fresh.variables
	s.events = fresh.events
	s.entities = fresh.entities
	s.users = fresh.users
	s.members = fresh.members
}
