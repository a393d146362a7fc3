package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
)

// VariableRepository stores instance variable values.
type VariableRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewVariableRepository(db *sql.DB, logger *slog.Logger) *VariableRepository {
	return &VariableRepository{db: db, logger: logger}
}

func (r *VariableRepository) Create(ctx context.Context, variable *models.InstanceVariable) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instance_variables (id, instance_id, variable_id, name, type, value, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		variable.ID, variable.InstanceID, variable.VariableID, variable.Name, variable.Type,
		variable.Value, variable.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrap("Create", "variable", variable.ID, err)
	}

	return nil
}

func (r *VariableRepository) Update(ctx context.Context, variable *models.InstanceVariable) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE instance_variables SET value = $3, updated_at = $4
		WHERE instance_id = $1 AND variable_id = $2`,
		variable.InstanceID, variable.VariableID, variable.Value, variable.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrap("Update", "variable", variable.VariableID, err)
	}

	return expectOne("Update", "variable", variable.VariableID, result)
}

const selectVariable = `SELECT id, instance_id, variable_id, name, type, value, updated_at FROM instance_variables`

func (r *VariableRepository) Get(ctx context.Context, instanceID, variableID string) (*models.InstanceVariable, error) {
	row := r.db.QueryRowContext(ctx, selectVariable+" WHERE instance_id = $1 AND variable_id = $2", instanceID, variableID)

	variable, err := scanVariable(row)
	if err != nil {
		return nil, wrap("Get", "variable", variableID, err)
	}

	return variable, nil
}

func (r *VariableRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.InstanceVariable, error) {
	rows, err := r.db.QueryContext(ctx, selectVariable+" WHERE instance_id = $1 ORDER BY name", instanceID)
	if err != nil {
		return nil, wrap("ListByInstance", "variable", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	var variables []*models.InstanceVariable

	for rows.Next() {
		variable, err := scanVariable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}

		variables = append(variables, variable)
	}

	return variables, rows.Err()
}

func scanVariable(row scanner) (*models.InstanceVariable, error) {
	var v models.InstanceVariable

	err := row.Scan(&v.ID, &v.InstanceID, &v.VariableID, &v.Name, &v.Type, &v.Value, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}

	v.UpdatedAt = v.UpdatedAt.UTC()

	return &v, nil
}

// EventRepository appends to and reads the per-instance audit log.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instance_events (id, instance_id, type, description, is_error, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.InstanceID, event.Type, event.Description, event.IsError, event.UserID, event.CreatedAt.UTC(),
	)
	if err != nil {
		return wrap("Append", "event", event.ID, err)
	}

	return nil
}

func (r *EventRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_id, type, description, is_error, user_id, created_at
		FROM instance_events WHERE instance_id = $1 ORDER BY seq`, instanceID)
	if err != nil {
		return nil, wrap("ListByInstance", "event", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	events := make([]*models.Event, 0)

	for rows.Next() {
		var e models.Event

		err := rows.Scan(&e.ID, &e.InstanceID, &e.Type, &e.Description, &e.IsError, &e.UserID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, &e)
	}

	return events, rows.Err()
}

// EntityRepository reads and adjusts tracked entity records.
type EntityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEntityRepository(db *sql.DB, logger *slog.Logger) *EntityRepository {
	return &EntityRepository{db: db, logger: logger}
}

func (r *EntityRepository) Get(ctx context.Context, name, key string) (*models.Entity, error) {
	var (
		entity = models.Entity{Name: name, Key: key}
		fields []byte
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT status_id, fields FROM entities WHERE name = $1 AND key = $2", name, key,
	).Scan(&entity.StatusID, &fields)
	if err != nil {
		return nil, wrap("Get", name, key, err)
	}

	entity.Fields = make(map[string]string)

	if len(fields) > 0 {
		err = json.Unmarshal(fields, &entity.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity fields: %w", err)
		}
	}

	return &entity, nil
}

func (r *EntityRepository) Save(ctx context.Context, entity *models.Entity) error {
	fields, err := json.Marshal(entity.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal entity fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entities (name, key, status_id, fields) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, key) DO UPDATE SET status_id = EXCLUDED.status_id, fields = EXCLUDED.fields`,
		entity.Name, entity.Key, entity.StatusID, fields,
	)
	if err != nil {
		return wrap("Save", entity.Name, entity.Key, err)
	}

	return nil
}

func (r *EntityRepository) UpdateStatus(ctx context.Context, name, key, statusID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE entities SET status_id = $3 WHERE name = $1 AND key = $2", name, key, statusID)
	if err != nil {
		return wrap("UpdateStatus", name, key, err)
	}

	return expectOne("UpdateStatus", name, key, result)
}

// DirectoryRepository resolves users and group membership.
type DirectoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDirectoryRepository(db *sql.DB, logger *slog.Logger) *DirectoryRepository {
	return &DirectoryRepository{db: db, logger: logger}
}

func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User

	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, phone FROM users WHERE id = $1", id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Phone)
	if err != nil {
		return nil, wrap("GetUser", "user", id, err)
	}

	return &user, nil
}

func (r *DirectoryRepository) SaveUser(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, phone) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email, phone = EXCLUDED.phone`,
		user.ID, user.Username, user.Email, user.Phone,
	)
	if err != nil {
		return wrap("SaveUser", "user", user.ID, err)
	}

	return nil
}

func (r *DirectoryRepository) AddGroupMember(ctx context.Context, member *models.GroupMember) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO group_members (group_id, user_id, from_date, thru_date) VALUES ($1, $2, $3, $4)",
		member.GroupID, member.UserID, member.FromDate.UTC(), nullTime(member.ThruDate),
	)
	if err != nil {
		return wrap("AddGroupMember", "group member", member.UserID, err)
	}

	return nil
}

func (r *DirectoryRepository) GroupMembers(ctx context.Context, groupID string, at time.Time) ([]*models.GroupMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, user_id, from_date, thru_date FROM group_members
		WHERE group_id = $1 AND from_date <= $2 AND (thru_date IS NULL OR thru_date > $2)
		ORDER BY id`, groupID, at.UTC())
	if err != nil {
		return nil, wrap("GroupMembers", "group member", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	var members []*models.GroupMember

	for rows.Next() {
		var (
			member models.GroupMember
			thru   sql.NullTime
		)

		err := rows.Scan(&member.GroupID, &member.UserID, &member.FromDate, &thru)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}

		member.FromDate = member.FromDate.UTC()
		member.ThruDate = timePtr(thru)
		members = append(members, &member)
	}

	return members, rows.Err()
}
