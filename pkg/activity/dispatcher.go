// Package activity executes the activities of a workflow instance.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/crowd"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/script"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrInvalidData = errors.New("invalid activity data")
	ErrUnknownType = errors.New("unknown activity type")
)

type Outcome int

const (
	Pending Outcome = iota
	Success
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "pending"
	}
}

// Port maps a decided outcome to the outgoing port. Pending has no port.
func (o Outcome) Port() (models.Port, bool) {
	switch o {
	case Success:
		return models.PortSuccess, true
	case Failure:
		return models.PortFailure, true
	}

	return "", false
}

// ServiceCaller invokes a named service with validated parameters.
type ServiceCaller interface {
	Call(ctx context.Context, id string, params map[string]any) (map[string]any, error)
}

// Dependencies are the collaborators activities act through. Resolver, Location and
// Now are optional.
type Dependencies struct {
	Store    persistence.Persistence
	Resolver *crowd.Resolver
	Scripts  script.Engine
	Services ServiceCaller
	Notifier notify.Notifier
	Logger   *slog.Logger
	Location *time.Location
	Now      func() time.Time
}

// Dispatcher runs one activity of an instance.
type Dispatcher struct {
	store     persistence.Persistence
	resolver  *crowd.Resolver
	scripts   script.Engine
	services  ServiceCaller
	notifier  notify.Notifier
	variables *Variables
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
	schemas   map[models.ActivityType]*gojsonschema.Schema
}

func NewDispatcher(deps Dependencies) (*Dispatcher, error) {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	logger := deps.Logger.With("module", "activity")

	resolver := deps.Resolver
	if resolver == nil {
		resolver = crowd.NewResolver(deps.Store.Directory(), deps.Logger).WithClock(now)
	}

	location := deps.Location
	if location == nil {
		location = time.UTC
	}

	compiled, err := CompileSchemas()
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		store:     deps.Store,
		resolver:  resolver,
		scripts:   deps.Scripts,
		services:  deps.Services,
		notifier:  deps.Notifier,
		variables: NewVariables(deps.Store.Variables(), deps.Scripts, now),
		logger:    logger,
		location:  location,
		now:       now,
		schemas:   compiled,
	}, nil
}

// CompileSchemas compiles the data schema of every activity type.
func CompileSchemas() (map[models.ActivityType]*gojsonschema.Schema, error) {
	compiled := make(map[models.ActivityType]*gojsonschema.Schema, len(schemas))

	for activityType, schema := range schemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", activityType, err)
		}

		compiled[activityType] = s
	}

	return compiled, nil
}

// Variables exposes the variable helper shared with the engine.
func (d *Dispatcher) Variables() *Variables {
	return d.variables
}

// ValidateData checks the activity payload against the schema of its type.
func (d *Dispatcher) ValidateData(act *models.Activity) error {
	return ValidateData(d.schemas, act)
}

// ValidateData checks act.Data against the compiled schema of act.Type. An empty payload
// is validated as an empty object.
func ValidateData(compiled map[models.ActivityType]*gojsonschema.Schema, act *models.Activity) error {
	schema, ok := compiled[act.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, act.Type)
	}

	data := []byte(act.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: activity %s: %w", ErrInvalidData, act.ID, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return fmt.Errorf("%w: activity %s: %s", ErrInvalidData, act.ID, strings.Join(msgs, "; "))
	}

	return nil
}

// run is one execution of one activity.
type run struct {
	workflow *models.Workflow
	activity *models.Activity
	instance *models.Instance
	logger   *slog.Logger
}

type handler interface {
	execute(ctx context.Context, r *run) (Outcome, error)
}

// Execute runs act for inst and reports its outcome. Handlers mutate inst in memory (EXIT
// completes it, USER sets its timeout); persisting it is the caller's job. A payload that
// does not match the activity type yields an error wrapping ErrInvalidData.
func (d *Dispatcher) Execute(ctx context.Context, wf *models.Workflow, act *models.Activity, inst *models.Instance) (Outcome, error) {
	if err := d.ValidateData(act); err != nil {
		return Failure, err
	}

	var h handler

	switch act.Type {
	case models.ActivityTypeEnter:
		h = enterHandler{d}
	case models.ActivityTypeExit:
		h = exitHandler{d}
	case models.ActivityTypeAdjust:
		h = adjustHandler{d}
	case models.ActivityTypeCondition:
		h = conditionHandler{d}
	case models.ActivityTypeUser:
		h = userHandler{d}
	case models.ActivityTypeService:
		h = serviceHandler{d}
	case models.ActivityTypeNotify:
		h = notifyHandler{d}
	default:
		return Failure, fmt.Errorf("%w: %s", ErrUnknownType, act.Type)
	}

	r := &run{
		workflow: wf,
		activity: act,
		instance: inst,
		logger: d.logger.With(
			"instance_id", inst.ID,
			"activity_id", act.ID,
			"activity_type", act.Type),
	}

	r.logger.DebugContext(ctx, "Executing activity")

	outcome, err := h.execute(ctx, r)
	if err != nil {
		return outcome, err
	}

	r.logger.DebugContext(ctx, "Activity executed", "outcome", outcome)

	return outcome, nil
}

func decode[T any](act *models.Activity) (T, error) {
	var data T
	if err := act.DecodeData(&data); err != nil {
		return data, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	return data, nil
}

func (d *Dispatcher) record(ctx context.Context, inst *models.Instance, eventType models.EventType, description string) error {
	return d.store.Events().Append(ctx, models.NewEvent(inst.ID, eventType, description, d.now()))
}

func (d *Dispatcher) executed(ctx context.Context, r *run) error {
	return d.record(ctx, r.instance, models.EventActivity, fmt.Sprintf("Executed %s activity (%s)", label(r.activity), r.activity.ID))
}

// failed writes an error event for the activity and returns Failure.
func (d *Dispatcher) failed(ctx context.Context, r *run, cause error) (Outcome, error) {
	r.logger.WarnContext(ctx, "Activity failed", "error", cause)

	event := models.NewEvent(r.instance.ID, models.EventActivity,
		fmt.Sprintf("Failed to execute %s activity (%s) due to error: %s", label(r.activity), r.activity.ID, cause), d.now())
	event.IsError = true

	if err := d.store.Events().Append(ctx, event); err != nil {
		return Failure, err
	}

	return Failure, nil
}

func label(act *models.Activity) string {
	return strings.ToLower(string(act.Type))
}
