package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const selectWorkflow = `
	SELECT
		id
	  , name
	  , description
	  , entity_name
	  , primary_key_field
	  , field_types
	  , disabled
	  , reminder_interval
	  , reminder_uom
	  , created_at
	  , updated_at
	FROM workflows
`

// List returns every workflow ordered by name.
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, selectWorkflow+" ORDER BY name, id")
	if err != nil {
		return nil, wrap("List", "workflow", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, selectWorkflow+" WHERE id = $1", id))
	if err != nil {
		return nil, wrap("GetByID", "workflow", id, err)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Save upserts the workflow and replaces its activities, transitions and variables.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) (err error) {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	fieldTypes, err := json.Marshal(workflow.FieldTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal field types: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workflows (id, name, description, entity_name, primary_key_field, field_types,
			disabled, reminder_interval, reminder_uom, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			entity_name = EXCLUDED.entity_name,
			primary_key_field = EXCLUDED.primary_key_field,
			field_types = EXCLUDED.field_types,
			disabled = EXCLUDED.disabled,
			reminder_interval = EXCLUDED.reminder_interval,
			reminder_uom = EXCLUDED.reminder_uom,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.EntityName,
		workflow.PrimaryKeyField,
		fieldTypes,
		workflow.Disabled,
		workflow.ReminderInterval,
		workflow.ReminderUom,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	).Scan(&workflow.CreatedAt)
	if err != nil {
		return wrap("Save", "workflow", workflow.ID, err)
	}

	for _, table := range []string{"workflow_activities", "workflow_transitions", "workflow_variables"} {
		_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE workflow_id = $1", workflow.ID)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, activity := range workflow.Activities {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_activities (id, workflow_id, position, name, type, data)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			activity.ID, workflow.ID, i, activity.Name, activity.Type, jsonOrNil(activity.Data),
		)
		if err != nil {
			return wrap("Save", "activity", activity.ID, err)
		}
	}

	for i, transition := range workflow.Transitions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_transitions (id, workflow_id, position, from_activity_id, from_port, to_activity_id, to_port)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			transition.ID, workflow.ID, i, transition.FromActivityID, transition.FromPort,
			transition.ToActivityID, transition.ToPort,
		)
		if err != nil {
			return wrap("Save", "transition", transition.ID, err)
		}
	}

	for i, variable := range workflow.Variables {
		err = insertVariable(ctx, tx, workflow.ID, i, variable)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET disabled = $2, updated_at = $3 WHERE id = $1", id, disabled, time.Now().UTC())
	if err != nil {
		return wrap("SetDisabled", "workflow", id, err)
	}

	return expectOne("SetDisabled", "workflow", id, result)
}

// SaveVariable upserts one variable definition, appending new ones after the existing ones.
func (r *WorkflowRepository) SaveVariable(ctx context.Context, variable *models.WorkflowVariable) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflows WHERE id = $1)", variable.WorkflowID).Scan(&exists)
	if err != nil {
		return wrap("SaveVariable", "workflow", variable.WorkflowID, err)
	}

	if !exists {
		return persistence.NotFound("SaveVariable", "workflow", variable.WorkflowID)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_variables (id, workflow_id, position, name, type, description, default_value)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position), -1) + 1 FROM workflow_variables WHERE workflow_id = $2), $3, $4, $5, $6)
		ON CONFLICT (workflow_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			default_value = EXCLUDED.default_value`,
		variable.ID, variable.WorkflowID, variable.Name, variable.Type, variable.Description, variable.DefaultValue,
	)
	if err != nil {
		return wrap("SaveVariable", "variable", variable.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) SaveInitiator(ctx context.Context, initiator *models.Initiator) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_initiators (id, workflow_id, user_group_id, from_date, thru_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_group_id = EXCLUDED.user_group_id,
			from_date = EXCLUDED.from_date,
			thru_date = EXCLUDED.thru_date`,
		initiator.ID, initiator.WorkflowID, initiator.UserGroupID, initiator.FromDate.UTC(), nullTime(initiator.ThruDate),
	)
	if isForeignKeyViolation(err) {
		return persistence.NotFound("SaveInitiator", "workflow", initiator.WorkflowID)
	}

	if err != nil {
		return wrap("SaveInitiator", "initiator", initiator.ID, err)
	}

	return nil
}

const selectInitiator = `SELECT id, workflow_id, user_group_id, from_date, thru_date FROM workflow_initiators`

func (r *WorkflowRepository) GetInitiator(ctx context.Context, id string) (*models.Initiator, error) {
	initiator, err := scanInitiator(r.db.QueryRowContext(ctx, selectInitiator+" WHERE id = $1", id))
	if err != nil {
		return nil, wrap("GetInitiator", "initiator", id, err)
	}

	return initiator, nil
}

func (r *WorkflowRepository) Initiators(ctx context.Context, workflowID string) ([]*models.Initiator, error) {
	rows, err := r.db.QueryContext(ctx, selectInitiator+" WHERE workflow_id = $1 ORDER BY id", workflowID)
	if err != nil {
		return nil, wrap("Initiators", "initiator", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	var initiators []*models.Initiator

	for rows.Next() {
		initiator, err := scanInitiator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan initiator: %w", err)
		}

		initiators = append(initiators, initiator)
	}

	return initiators, rows.Err()
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	err := r.loadActivities(ctx, workflow)
	if err != nil {
		return err
	}

	err = r.loadTransitions(ctx, workflow)
	if err != nil {
		return err
	}

	return r.loadVariables(ctx, workflow)
}

func (r *WorkflowRepository) loadActivities(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, type, data FROM workflow_activities WHERE workflow_id = $1 ORDER BY position", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query activities: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	workflow.Activities = make([]*models.Activity, 0)

	for rows.Next() {
		var (
			activity = &models.Activity{WorkflowID: workflow.ID}
			data     []byte
		)

		err := rows.Scan(&activity.ID, &activity.Name, &activity.Type, &data)
		if err != nil {
			return fmt.Errorf("failed to scan activity: %w", err)
		}

		if len(data) > 0 && string(data) != "null" {
			activity.Data = json.RawMessage(data)
		}

		workflow.Activities = append(workflow.Activities, activity)
	}

	return rows.Err()
}

func (r *WorkflowRepository) loadTransitions(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, from_activity_id, from_port, to_activity_id, to_port
		FROM workflow_transitions WHERE workflow_id = $1 ORDER BY position`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query transitions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	workflow.Transitions = make([]*models.Transition, 0)

	for rows.Next() {
		transition := &models.Transition{WorkflowID: workflow.ID}

		err := rows.Scan(&transition.ID, &transition.FromActivityID, &transition.FromPort,
			&transition.ToActivityID, &transition.ToPort)
		if err != nil {
			return fmt.Errorf("failed to scan transition: %w", err)
		}

		workflow.Transitions = append(workflow.Transitions, transition)
	}

	return rows.Err()
}

func (r *WorkflowRepository) loadVariables(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, description, default_value
		FROM workflow_variables WHERE workflow_id = $1 ORDER BY position`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query variables: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	workflow.Variables = nil

	for rows.Next() {
		variable := &models.WorkflowVariable{WorkflowID: workflow.ID}

		err := rows.Scan(&variable.ID, &variable.Name, &variable.Type, &variable.Description, &variable.DefaultValue)
		if err != nil {
			return fmt.Errorf("failed to scan variable: %w", err)
		}

		workflow.Variables = append(workflow.Variables, variable)
	}

	return rows.Err()
}

func insertVariable(ctx context.Context, tx *sql.Tx, workflowID string, position int, variable *models.WorkflowVariable) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_variables (id, workflow_id, position, name, type, description, default_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		variable.ID, workflowID, position, variable.Name, variable.Type, variable.Description, variable.DefaultValue,
	)
	if err != nil {
		return wrap("Save", "variable", variable.ID, err)
	}

	return nil
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow   models.Workflow
		fieldTypes []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.EntityName,
		&workflow.PrimaryKeyField,
		&fieldTypes,
		&workflow.Disabled,
		&workflow.ReminderInterval,
		&workflow.ReminderUom,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(fieldTypes) > 0 {
		err = json.Unmarshal(fieldTypes, &workflow.FieldTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal field types: %w", err)
		}
	}

	return &workflow, nil
}

func scanInitiator(row scanner) (*models.Initiator, error) {
	var (
		initiator models.Initiator
		thru      sql.NullTime
	)

	err := row.Scan(&initiator.ID, &initiator.WorkflowID, &initiator.UserGroupID, &initiator.FromDate, &thru)
	if err != nil {
		return nil, err
	}

	initiator.FromDate = initiator.FromDate.UTC()
	initiator.ThruDate = timePtr(thru)

	return &initiator, nil
}

func jsonOrNil(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}

	return []byte(data)
}
