// Package definition loads workflow definitions from YAML files.
package definition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/netvariant/moqui-workflow/pkg/activity"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDefinition = errors.New("invalid workflow definition")

// document is the YAML layout of a definition. Activity data stays a free mapping and
// is checked against the activity schemas after conversion.
type document struct {
	ID               string                      `yaml:"id"`
	Name             string                      `yaml:"name"`
	Description      string                      `yaml:"description"`
	EntityName       string                      `yaml:"entity_name"`
	PrimaryKeyField  string                      `yaml:"primary_key_field"`
	FieldTypes       map[string]models.FieldType `yaml:"field_types"`
	Disabled         bool                        `yaml:"disabled"`
	ReminderInterval int                         `yaml:"reminder_interval"`
	ReminderUom      string                      `yaml:"reminder_uom"`
	Activities       []activityDocument          `yaml:"activities"`
	Transitions      []*models.Transition        `yaml:"transitions"`
	Variables        []*models.WorkflowVariable  `yaml:"variables"`
}

type activityDocument struct {
	ID   string              `yaml:"id"`
	Name string              `yaml:"name"`
	Type models.ActivityType `yaml:"type"`
	Data map[string]any      `yaml:"data"`
}

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	schemas  = sync.OnceValues(activity.CompileSchemas)
)

// Parse decodes and validates a YAML definition.
func Parse(data []byte) (*models.Workflow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: definition is empty", ErrInvalidDefinition)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	wf, err := doc.workflow()
	if err != nil {
		return nil, err
	}

	if err := Validate(wf); err != nil {
		return nil, err
	}

	return wf, nil
}

// Load reads a YAML definition from r.
func Load(r io.Reader) (*models.Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}

	return Parse(data)
}

func LoadFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return wf, nil
}

func (d document) workflow() (*models.Workflow, error) {
	wf := &models.Workflow{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		EntityName:       d.EntityName,
		PrimaryKeyField:  d.PrimaryKeyField,
		FieldTypes:       d.FieldTypes,
		Disabled:         d.Disabled,
		ReminderInterval: d.ReminderInterval,
		ReminderUom:      d.ReminderUom,
		Transitions:      d.Transitions,
		Variables:        d.Variables,
	}

	if wf.ID == "" {
		wf.ID = models.NewID()
	}

	for i, a := range d.Activities {
		act := &models.Activity{ID: a.ID, WorkflowID: wf.ID, Name: a.Name, Type: a.Type}
		if act.ID == "" {
			act.ID = fmt.Sprintf("activity-%d", i+1)
		}

		if a.Data != nil {
			raw, err := json.Marshal(a.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: activity %s data: %w", ErrInvalidDefinition, act.ID, err)
			}

			act.Data = raw
		}

		wf.Activities = append(wf.Activities, act)
	}

	for _, t := range wf.Transitions {
		t.WorkflowID = wf.ID

		if t.ID == "" {
			t.ID = fmt.Sprintf("%s-%s-%s", t.FromActivityID, t.FromPort, t.ToActivityID)
		}

		if t.ToPort == "" {
			t.ToPort = models.PortInput
		}
	}

	for _, v := range wf.Variables {
		v.WorkflowID = wf.ID

		if v.ID == "" {
			v.ID = wf.ID + "-" + v.Name
		}
	}

	return wf, nil
}

// Validate checks a definition is complete: struct constraints, a single ENTER
// activity, unique activity ids, transitions between known activities and activity data
// matching its schema.
func Validate(wf *models.Workflow) error {
	if err := validate.Struct(wf); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	compiled, err := schemas()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(wf.Activities))
	enters := 0

	for _, act := range wf.Activities {
		if seen[act.ID] {
			return fmt.Errorf("%w: duplicate activity id %s", ErrInvalidDefinition, act.ID)
		}

		seen[act.ID] = true

		if act.Type == models.ActivityTypeEnter {
			enters++
		}

		if err := activity.ValidateData(compiled, act); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
	}

	if enters != 1 {
		return fmt.Errorf("%w: expected one ENTER activity, found %d", ErrInvalidDefinition, enters)
	}

	for _, t := range wf.Transitions {
		if !seen[t.FromActivityID] || !seen[t.ToActivityID] {
			return fmt.Errorf("%w: transition %s joins unknown activities", ErrInvalidDefinition, t.ID)
		}
	}

	names := make(map[string]bool, len(wf.Variables))
	for _, v := range wf.Variables {
		if names[v.Name] {
			return fmt.Errorf("%w: duplicate variable %s", ErrInvalidDefinition, v.Name)
		}

		names[v.Name] = true
	}

	return nil
}

// Import stores a loaded definition. An existing definition with the same id is
// replaced; its instances keep running against the new graph.
func Import(ctx context.Context, store persistence.Persistence, wf *models.Workflow) error {
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}

	wf.UpdatedAt = now

	if err := store.Workflows().Save(ctx, wf); err != nil {
		return fmt.Errorf("failed to import workflow %s: %w", wf.ID, err)
	}

	return nil
}
