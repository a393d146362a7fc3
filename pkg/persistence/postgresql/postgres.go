// Package postgresql provides PostgreSQL persistence for workflow definitions, instances and tasks.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/sqlbase"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Persistence implements persistence.Persistence for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo  *WorkflowRepository
	instanceRepo  *InstanceRepository
	taskRepo      *TaskRepository
	variableRepo  *VariableRepository
	eventRepo     *EventRepository
	entityRepo    *EntityRepository
	directoryRepo *DirectoryRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgres_persistence")

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		instanceRepo:  NewInstanceRepository(database, logger),
		taskRepo:      NewTaskRepository(database, logger),
		variableRepo:  NewVariableRepository(database, logger),
		eventRepo:     NewEventRepository(database, logger),
		entityRepo:    NewEntityRepository(database, logger),
		directoryRepo: NewDirectoryRepository(database, logger),
	}

	// Run migrations on initialization
	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository  { return p.workflowRepo }
func (p *Persistence) Instances() persistence.InstanceRepository  { return p.instanceRepo }
func (p *Persistence) Tasks() persistence.TaskRepository          { return p.taskRepo }
func (p *Persistence) Variables() persistence.VariableRepository  { return p.variableRepo }
func (p *Persistence) Events() persistence.EventRepository        { return p.eventRepo }
func (p *Persistence) Entities() persistence.EntityRepository     { return p.entityRepo }
func (p *Persistence) Directory() persistence.DirectoryRepository { return p.directoryRepo }

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// wrap converts driver errors into persistence errors.
func wrap(op, entity, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NotFound(op, entity, id)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return persistence.NewError(op, entity, id, persistence.ErrConflict)
	}

	return persistence.NewError(op, entity, id, err)
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

// expectOne maps a zero-row update to ErrNotFound.
func expectOne(op, entity, id string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return persistence.NewError(op, entity, id, err)
	}

	if n == 0 {
		return persistence.NotFound(op, entity, id)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time.UTC()

	return &v
}

// orderClause renders ORDER BY for a validated column, falling back to fallback.
func orderClause(column string, desc bool, fallback string) string {
	if column == "" {
		return " ORDER BY " + fallback
	}

	dir := " ASC"
	if desc {
		dir = " DESC"
	}

	return " ORDER BY " + column + dir + ", " + fallback
}

func pageClause(limit, offset int) string {
	clause := ""
	if limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", limit)
	}

	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}

	return clause
}
