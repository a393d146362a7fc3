package persistence

import (
	"context"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
)

// Persistence is the storage collaborator. Each repository call is its own atomic unit;
// there is no transaction spanning several calls.
type Persistence interface {
	Workflows() WorkflowRepository
	Instances() InstanceRepository
	Tasks() TaskRepository
	Variables() VariableRepository
	Events() EventRepository
	Entities() EntityRepository
	Directory() DirectoryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores definitions together with their activities, transitions and variables.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error

	SaveVariable(ctx context.Context, variable *models.WorkflowVariable) error

	SaveInitiator(ctx context.Context, initiator *models.Initiator) error
	GetInitiator(ctx context.Context, id string) (*models.Initiator, error)
	Initiators(ctx context.Context, workflowID string) ([]*models.Initiator, error)
}

// InstanceRepository stores workflow instances and their owner token.
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.Instance) error
	GetByID(ctx context.Context, id string) (*models.Instance, error)
	// Update writes every column except the owner token and its lease.
	Update(ctx context.Context, instance *models.Instance) error
	Find(ctx context.Context, opts query.Options) ([]*models.Instance, int64, error)

	// SetOwner writes the owner token unconditionally and clears any lease.
	SetOwner(ctx context.Context, id, owner string) error
	// TryAcquireOwner sets owner and lease only when the token is empty, already
	// held by owner, or its lease expired before now. It reports whether it won.
	TryAcquireOwner(ctx context.Context, id, owner string, now, expiresAt time.Time) (bool, error)
	// ReleaseOwner clears the token when it is still held by owner.
	ReleaseOwner(ctx context.Context, id, owner string) error
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Find(ctx context.Context, opts query.Options) ([]*models.Task, int64, error)
	Count(ctx context.Context, where query.Condition) (int64, error)
}

type VariableRepository interface {
	Create(ctx context.Context, variable *models.InstanceVariable) error
	Update(ctx context.Context, variable *models.InstanceVariable) error
	Get(ctx context.Context, instanceID, variableID string) (*models.InstanceVariable, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.InstanceVariable, error)
}

type EventRepository interface {
	Append(ctx context.Context, event *models.Event) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.Event, error)
}

// EntityRepository reads and adjusts the external records instances track.
type EntityRepository interface {
	Get(ctx context.Context, name, key string) (*models.Entity, error)
	Save(ctx context.Context, entity *models.Entity) error
	UpdateStatus(ctx context.Context, name, key, statusID string) error
}

// DirectoryRepository resolves users and time-bounded group membership.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	AddGroupMember(ctx context.Context, member *models.GroupMember) error
	// GroupMembers returns the members whose window covers at.
	GroupMembers(ctx context.Context, groupID string, at time.Time) ([]*models.GroupMember, error)
}

// Instance and task columns accepted by query conditions.
var (
	InstanceFields = query.Fields("id", "workflow_id", "primary_key_value", "status", "activity_id",
		"timeout_at", "owner", "input_user_id", "created_at", "updated_at")
	TaskFields = query.Fields("id", "instance_id", "activity_id", "visit", "assigned_user_id", "type",
		"status", "completed_at", "reminded_at", "created_at", "updated_at")
)
