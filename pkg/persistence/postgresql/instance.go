package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
)

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
		id
	  , workflow_id
	  , primary_key_value
	  , status
	  , activity_id
	  , activity_executed
	  , outgoing_port
	  , visit
	  , timeout_at
	  , owner
	  , owner_expires_at
	  , input_user_id
	  , result_code
	  , created_at
	  , updated_at
`

func (r *InstanceRepository) Create(ctx context.Context, instance *models.Instance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		instance.ID,
		instance.WorkflowID,
		instance.PrimaryKeyValue,
		instance.Status,
		nullString(instance.ActivityID),
		instance.ActivityExecuted,
		instance.OutgoingPort,
		instance.Visit,
		nullTime(instance.TimeoutAt),
		nullString(instance.Owner),
		nullTime(instance.OwnerExpiresAt),
		instance.InputUserID,
		instance.ResultCode,
		instance.CreatedAt.UTC(),
		instance.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrap("Create", "instance", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.Instance, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE id = $1", id)

	instance, err := scanInstance(row)
	if err != nil {
		return nil, wrap("GetByID", "instance", id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) Update(ctx context.Context, instance *models.Instance) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE instances SET
			workflow_id = $2,
			primary_key_value = $3,
			status = $4,
			activity_id = $5,
			activity_executed = $6,
			outgoing_port = $7,
			visit = $8,
			timeout_at = $9,
			input_user_id = $10,
			result_code = $11,
			updated_at = $12
		WHERE id = $1`,
		instance.ID,
		instance.WorkflowID,
		instance.PrimaryKeyValue,
		instance.Status,
		nullString(instance.ActivityID),
		instance.ActivityExecuted,
		instance.OutgoingPort,
		instance.Visit,
		nullTime(instance.TimeoutAt),
		instance.InputUserID,
		instance.ResultCode,
		instance.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrap("Update", "instance", instance.ID, err)
	}

	return expectOne("Update", "instance", instance.ID, result)
}

func (r *InstanceRepository) Find(ctx context.Context, opts query.Options) ([]*models.Instance, int64, error) {
	if err := opts.Validate(persistence.InstanceFields); err != nil {
		return nil, 0, persistence.NewError("Find", "instance", "", errors.Join(persistence.ErrInvalidField, err))
	}

	where, args := opts.Where.SQL(0)

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM instances WHERE "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, wrap("Find", "instance", "", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+instanceColumns+" FROM instances WHERE "+where+
			orderClause(opts.OrderBy, opts.Desc, "id")+pageClause(opts.Limit, opts.Offset),
		args...)
	if err != nil {
		return nil, 0, wrap("Find", "instance", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	var instances []*models.Instance

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, total, nil
}

func (r *InstanceRepository) SetOwner(ctx context.Context, id, owner string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE instances SET owner = $2, owner_expires_at = NULL WHERE id = $1", id, nullString(owner))
	if err != nil {
		return wrap("SetOwner", "instance", id, err)
	}

	return expectOne("SetOwner", "instance", id, result)
}

// TryAcquireOwner takes the token with a single conditional UPDATE so that two workers
// racing for the same instance cannot both win.
func (r *InstanceRepository) TryAcquireOwner(ctx context.Context, id, owner string, now, expiresAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE instances SET owner = $2, owner_expires_at = $4
		WHERE id = $1 AND (owner IS NULL OR owner = $2 OR owner_expires_at < $3)`,
		id, owner, now.UTC(), expiresAt.UTC())
	if err != nil {
		return false, wrap("TryAcquireOwner", "instance", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, wrap("TryAcquireOwner", "instance", id, err)
	}

	if n == 1 {
		return true, nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM instances WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, wrap("TryAcquireOwner", "instance", id, err)
	}

	if !exists {
		return false, persistence.NotFound("TryAcquireOwner", "instance", id)
	}

	return false, nil
}

func (r *InstanceRepository) ReleaseOwner(ctx context.Context, id, owner string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE instances SET
			owner = CASE WHEN owner = $2 THEN NULL ELSE owner END,
			owner_expires_at = CASE WHEN owner = $2 THEN NULL ELSE owner_expires_at END
		WHERE id = $1`, id, owner)
	if err != nil {
		return wrap("ReleaseOwner", "instance", id, err)
	}

	return expectOne("ReleaseOwner", "instance", id, result)
}

func scanInstance(row scanner) (*models.Instance, error) {
	var (
		instance                  models.Instance
		activityID, owner         sql.NullString
		timeoutAt, ownerExpiresAt sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.PrimaryKeyValue,
		&instance.Status,
		&activityID,
		&instance.ActivityExecuted,
		&instance.OutgoingPort,
		&instance.Visit,
		&timeoutAt,
		&owner,
		&ownerExpiresAt,
		&instance.InputUserID,
		&instance.ResultCode,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.ActivityID = activityID.String
	instance.Owner = owner.String
	instance.TimeoutAt = timePtr(timeoutAt)
	instance.OwnerExpiresAt = timePtr(ownerExpiresAt)
	instance.CreatedAt = instance.CreatedAt.UTC()
	instance.UpdatedAt = instance.UpdatedAt.UTC()

	return &instance, nil
}
