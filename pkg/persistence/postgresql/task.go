package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
)

// TaskRepository handles task database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `
		id
	  , instance_id
	  , activity_id
	  , visit
	  , assigned_user_id
	  , type
	  , variable_id
	  , status
	  , summary
	  , description
	  , value
	  , remark
	  , completed_at
	  , reminded_at
	  , created_at
	  , updated_at
`

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		task.ID,
		task.InstanceID,
		task.ActivityID,
		task.Visit,
		task.AssignedUserID,
		task.Type,
		task.VariableID,
		task.Status,
		task.Summary,
		task.Description,
		task.Value,
		task.Remark,
		nullTime(task.CompletedAt),
		nullTime(task.RemindedAt),
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrap("Create", "task", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id))
	if err != nil {
		return nil, wrap("GetByID", "task", id, err)
	}

	return task, nil
}

func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET
			assigned_user_id = $2,
			status = $3,
			summary = $4,
			description = $5,
			value = $6,
			remark = $7,
			completed_at = $8,
			reminded_at = $9,
			updated_at = $10
		WHERE id = $1`,
		task.ID,
		task.AssignedUserID,
		task.Status,
		task.Summary,
		task.Description,
		task.Value,
		task.Remark,
		nullTime(task.CompletedAt),
		nullTime(task.RemindedAt),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrap("Update", "task", task.ID, err)
	}

	return expectOne("Update", "task", task.ID, result)
}

func (r *TaskRepository) Find(ctx context.Context, opts query.Options) ([]*models.Task, int64, error) {
	if err := opts.Validate(persistence.TaskFields); err != nil {
		return nil, 0, persistence.NewError("Find", "task", "", errors.Join(persistence.ErrInvalidField, err))
	}

	total, err := r.Count(ctx, opts.Where)
	if err != nil {
		return nil, 0, err
	}

	where, args := opts.Where.SQL(0)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE "+where+
			orderClause(opts.OrderBy, opts.Desc, "created_at, id")+pageClause(opts.Limit, opts.Offset),
		args...)
	if err != nil {
		return nil, 0, wrap("Find", "task", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	var tasks []*models.Task

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, total, nil
}

func (r *TaskRepository) Count(ctx context.Context, where query.Condition) (int64, error) {
	if err := where.Validate(persistence.TaskFields); err != nil {
		return 0, persistence.NewError("Count", "task", "", errors.Join(persistence.ErrInvalidField, err))
	}

	clause, args := where.SQL(0)

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE "+clause, args...).Scan(&total)
	if err != nil {
		return 0, wrap("Count", "task", "", err)
	}

	return total, nil
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		task                  models.Task
		completedAt, reminded sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.InstanceID,
		&task.ActivityID,
		&task.Visit,
		&task.AssignedUserID,
		&task.Type,
		&task.VariableID,
		&task.Status,
		&task.Summary,
		&task.Description,
		&task.Value,
		&task.Remark,
		&completedAt,
		&reminded,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.CompletedAt = timePtr(completedAt)
	task.RemindedAt = timePtr(reminded)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()

	return &task, nil
}
