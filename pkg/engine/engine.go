// Package engine advances workflow instances through their activity graphs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/netvariant/moqui-workflow/pkg/activity"
	"github.com/netvariant/moqui-workflow/pkg/crowd"
	"github.com/netvariant/moqui-workflow/pkg/eventbus"
	"github.com/netvariant/moqui-workflow/pkg/events"
	"github.com/netvariant/moqui-workflow/pkg/lock"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/netvariant/moqui-workflow/pkg/otelhelper"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/persistence/query"
	"github.com/netvariant/moqui-workflow/pkg/script"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options configure an Engine. Store, Locker, Scripts and Logger are required.
type Options struct {
	Store    persistence.Persistence
	Locker   lock.Locker
	Scripts  script.Engine
	Services activity.ServiceCaller
	Notifier notify.Notifier
	// Publisher, when set, receives instance and task events. UpdateTask and Resume then
	// leave running the instance to whoever consumes them.
	Publisher eventbus.EventPublisher
	Tracer    trace.Tracer
	Logger    *slog.Logger
	// Owner is the lock token of this process. Defaults to lock.DefaultOwner().
	Owner    string
	Location *time.Location
	Now      func() time.Time
}

type Engine struct {
	store      persistence.Persistence
	dispatcher *activity.Dispatcher
	variables  *activity.Variables
	resolver   *crowd.Resolver
	quorum     *crowd.Quorum
	locker     lock.Locker
	notifier   notify.Notifier
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	validate   *validator.Validate
	logger     *slog.Logger
	owner      string
	now        func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Locker == nil || opts.Scripts == nil || opts.Logger == nil {
		return nil, errors.New("engine: store, locker, scripts and logger are required")
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	owner := opts.Owner
	if owner == "" {
		owner = lock.DefaultOwner()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otelhelper.Noop()
	}

	resolver := crowd.NewResolver(opts.Store.Directory(), opts.Logger).WithClock(now)

	dispatcher, err := activity.NewDispatcher(activity.Dependencies{
		Store:    opts.Store,
		Resolver: resolver,
		Scripts:  opts.Scripts,
		Services: opts.Services,
		Notifier: opts.Notifier,
		Logger:   opts.Logger,
		Location: opts.Location,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      opts.Store,
		dispatcher: dispatcher,
		variables:  dispatcher.Variables(),
		resolver:   resolver,
		quorum:     crowd.NewQuorum(resolver, opts.Logger),
		locker:     opts.Locker,
		notifier:   opts.Notifier,
		publisher:  opts.Publisher,
		tracer:     tracer,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     opts.Logger.With("module", "engine", "worker_id", owner),
		owner:      owner,
		now:        now,
	}, nil
}

// Owner is the lock token this engine acquires instances with.
func (e *Engine) Owner() string {
	return e.owner
}

// HealthCheck reports whether the store is reachable.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.store.HealthCheck(ctx)
}

// errHeld reports that another process holds the instance, or took it over mid-run.
var errHeld = errors.New("instance held by another worker")

// Start runs the execution loop of an instance until it waits, finishes or is blocked.
// Returns nil without advancing when another process holds the instance.
func (e *Engine) Start(ctx context.Context, instanceID string) error {
	err := e.traceStart(ctx, instanceID)
	if errors.Is(err, errHeld) {
		return nil
	}

	return err
}

func (e *Engine) traceStart(ctx context.Context, instanceID string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.WorkerIDKey, e.owner))
	defer span.End()

	err := e.start(ctx, instanceID)

	switch {
	case errors.Is(err, errHeld):
		span.SetAttributes(attribute.Bool("instance.held", true))
	case err != nil:
		otelhelper.SetError(span, err)
	}

	return err
}

func (e *Engine) start(ctx context.Context, instanceID string) error {
	inst, wf, err := e.load(ctx, "start", instanceID)
	if err != nil {
		return err
	}

	if err := startable(inst, wf); err != nil {
		return err
	}

	logger := e.logger.With("instance_id", instanceID, "workflow_id", wf.ID)

	acquired, err := e.locker.Acquire(ctx, instanceID, e.owner)
	if err != nil {
		return fmt.Errorf("failed to acquire instance %s: %w", instanceID, err)
	}

	if !acquired {
		logger.DebugContext(ctx, "Instance held by another worker, not starting")

		return errHeld
	}

	defer e.release(ctx, instanceID, logger)

	return e.run(ctx, wf, instanceID, logger)
}

func startable(inst *models.Instance, wf *models.Workflow) error {
	if inst.Status.Terminal() || inst.Status == models.InstanceStatusSuspended {
		return newError("start", inst.ID, ErrNotOperable, "instance is %s", inst.Status)
	}

	if wf.Disabled {
		return newError("start", inst.ID, ErrWorkflowDisabled, "workflow %s is disabled", wf.ID)
	}

	if inst.ActivityID == "" {
		if _, ok := wf.EnterActivity(); !ok {
			return newError("start", inst.ID, ErrNoEnterActivity, "workflow %s", wf.ID)
		}
	}

	return nil
}

func (e *Engine) release(ctx context.Context, instanceID string, logger *slog.Logger) {
	if err := e.locker.Release(context.WithoutCancel(ctx), instanceID, e.owner); err != nil {
		logger.ErrorContext(ctx, "Failed to release instance", "error", err)
	}
}

// renew extends an expiring lock before an activity runs. Losing it stops the loop with
// errHeld, leaving the instance to the new holder.
func (e *Engine) renew(ctx context.Context, instanceID string, logger *slog.Logger) error {
	renewer, ok := e.locker.(lock.Renewer)
	if !ok {
		return nil
	}

	held, err := renewer.Renew(ctx, instanceID, e.owner)
	if err != nil {
		return fmt.Errorf("failed to renew instance %s: %w", instanceID, err)
	}

	if !held {
		logger.WarnContext(ctx, "Lease lost to another worker, stopping")

		return errHeld
	}

	return nil
}

// run is the loop body. The caller holds the instance.
func (e *Engine) run(ctx context.Context, wf *models.Workflow, instanceID string, logger *slog.Logger) error {
	inst, err := e.reload(ctx, instanceID)
	if err != nil {
		return err
	}

	// The instance may have changed between validation and acquisition.
	if err := startable(inst, wf); err != nil {
		logger.DebugContext(ctx, "Instance no longer startable", "error", err)

		return nil
	}

	if inst.ActivityID == "" {
		enter, _ := wf.EnterActivity()
		inst.ActivityID = enter.ID
		inst.ActivityExecuted = false
		inst.OutgoingPort = ""
		inst.Visit = 1
	}

	inst.Status = models.InstanceStatusActive
	if err := e.update(ctx, inst); err != nil {
		return err
	}

	if inst, err = e.reload(ctx, instanceID); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		act, ok := wf.Activity(inst.ActivityID)
		if !ok {
			e.park(ctx, logger, inst, "", "Current activity is not part of the workflow")

			return nil
		}

		actLogger := logger.With("activity_id", act.ID, "activity_type", act.Type, "visit", inst.Visit)
		executedNow := false

		if !inst.ActivityExecuted {
			if err := e.renew(ctx, instanceID, actLogger); err != nil {
				return err
			}

			outcome, err := e.dispatcher.Execute(ctx, wf, act, inst)
			if err != nil {
				if errors.Is(err, activity.ErrInvalidData) || errors.Is(err, activity.ErrUnknownType) {
					e.park(ctx, actLogger, inst, "", err.Error())

					return nil
				}

				return fmt.Errorf("failed to execute activity %s of instance %s: %w", act.ID, instanceID, err)
			}

			inst.ActivityExecuted = true
			inst.OutgoingPort = ""

			if act.Type != models.ActivityTypeUser && act.Type != models.ActivityTypeExit {
				if port, ok := outcome.Port(); ok {
					inst.OutgoingPort = port
				}
			}

			if err := e.update(ctx, inst); err != nil {
				return err
			}

			if inst, err = e.reload(ctx, instanceID); err != nil {
				return err
			}

			executedNow = true
		}

		if act.Type == models.ActivityTypeExit || inst.Status.Terminal() {
			if executedNow {
				actLogger.InfoContext(ctx, "Instance finished", "status", inst.Status, "result_code", inst.ResultCode)
				e.publish(ctx, inst.ID, &events.InstanceFinished{
					BaseEvent:  events.NewBaseEvent(events.InstanceFinishedEvent, inst.ID),
					WorkflowID: wf.ID,
					Status:     inst.Status,
					ResultCode: inst.ResultCode,
				})
			}

			return nil
		}

		port, decided, err := e.port(ctx, act, inst, actLogger)
		if err != nil {
			return err
		}

		if !decided {
			return nil
		}

		transition, ok := e.resolveTransition(ctx, wf, act.ID, port)
		if !ok {
			e.park(ctx, actLogger, inst, port, "No transition leaves the activity through the port")

			return nil
		}

		if err := e.follow(ctx, wf, act, transition, inst); err != nil {
			return err
		}

		if inst, err = e.reload(ctx, instanceID); err != nil {
			return err
		}
	}
}

// port decides which port the executed activity leaves through. decided is false while
// the instance waits.
func (e *Engine) port(ctx context.Context, act *models.Activity, inst *models.Instance, logger *slog.Logger) (port models.Port, decided bool, err error) {
	if act.Type != models.ActivityTypeUser {
		if inst.OutgoingPort == "" {
			logger.WarnContext(ctx, "Executed activity has no outgoing port, instance may be stuck")

			return "", false, nil
		}

		return inst.OutgoingPort, true, nil
	}

	if inst.TimeoutAt != nil && inst.TimeoutAt.Before(e.now()) {
		logger.InfoContext(ctx, "User activity timed out", "timeout_at", inst.TimeoutAt)

		return models.PortTimeout, true, nil
	}

	var data models.UserData
	if err := act.DecodeData(&data); err != nil {
		e.park(ctx, logger, inst, "", err.Error())

		return "", false, nil
	}

	tasks, _, err := e.store.Tasks().Find(ctx, query.Options{Where: activity.VisitTasks(inst, act.ID)})
	if err != nil {
		return "", false, err
	}

	verdict := crowd.Completion(tasks)
	if data.TaskType == models.TaskTypeApproval {
		verdict, err = e.quorum.Evaluate(ctx, data.JoinOperator, data.Crowds, inst, tasks)
		if err != nil {
			return "", false, err
		}
	}

	port, decided = verdict.Port()
	if !decided {
		logger.DebugContext(ctx, "Waiting for tasks", "task_type", data.TaskType, "tasks", len(tasks))
	}

	return port, decided, nil
}

// park leaves a structurally blocked instance where it is. Nothing retries it.
func (e *Engine) park(ctx context.Context, logger *slog.Logger, inst *models.Instance, port models.Port, reason string) {
	logger.ErrorContext(ctx, "Instance parked on structural error",
		"instance_id", inst.ID,
		"activity_id", inst.ActivityID,
		"port", port,
		"reason", reason)
}

func (e *Engine) load(ctx context.Context, op, instanceID string) (*models.Instance, *models.Workflow, error) {
	if instanceID == "" {
		return nil, nil, newError(op, "", ErrInvalidInput, "instance id is required")
	}

	inst, err := e.store.Instances().GetByID(ctx, instanceID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, nil, newError(op, instanceID, ErrInstanceNotFound, "")
		}

		return nil, nil, err
	}

	wf, err := e.store.Workflows().GetByID(ctx, inst.WorkflowID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, nil, newError(op, instanceID, ErrWorkflowNotFound, "workflow %s", inst.WorkflowID)
		}

		return nil, nil, err
	}

	return inst, wf, nil
}

func (e *Engine) reload(ctx context.Context, instanceID string) (*models.Instance, error) {
	inst, err := e.store.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload instance %s: %w", instanceID, err)
	}

	return inst, nil
}

func (e *Engine) update(ctx context.Context, inst *models.Instance) error {
	inst.UpdatedAt = e.now()

	if err := e.store.Instances().Update(ctx, inst); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", inst.ID, err)
	}

	return nil
}

func (e *Engine) record(ctx context.Context, instanceID string, eventType models.EventType, userID, description string) error {
	event := models.NewEvent(instanceID, eventType, description, e.now())
	event.UserID = userID

	return e.store.Events().Append(ctx, event)
}

// publish hands an event to the bus when one is configured. Failures are logged only.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}
