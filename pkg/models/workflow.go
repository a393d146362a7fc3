// Package models defines the domain models for workflow definitions and their running instances.
package models

import "time"

// FieldType types a field of the tracked entity for FIELD conditions.
type FieldType string

const (
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeNumber  FieldType = "number"
	FieldTypeText    FieldType = "text"
)

// Workflow is a workflow definition: an activity graph bound to one kind of tracked entity.
type Workflow struct {
	ID               string               `json:"id"                          yaml:"id"`
	Name             string               `json:"name"                        validate:"required,min=3"   yaml:"name"`
	Description      string               `json:"description"                 yaml:"description"`
	EntityName       string               `json:"entity_name"                 validate:"required"         yaml:"entity_name"`
	PrimaryKeyField  string               `json:"primary_key_field"           validate:"required"         yaml:"primary_key_field"`
	FieldTypes       map[string]FieldType `json:"field_types,omitempty"       yaml:"field_types"`
	Disabled         bool                 `json:"disabled"                    yaml:"disabled"`
	ReminderInterval int                  `json:"reminder_interval,omitempty" validate:"min=0"            yaml:"reminder_interval"`
	ReminderUom      string               `json:"reminder_uom,omitempty"      yaml:"reminder_uom"`
	Activities       []*Activity          `json:"activities"                  validate:"required,min=2,dive" yaml:"activities"`
	Transitions      []*Transition        `json:"transitions"                 validate:"dive"             yaml:"transitions"`
	Variables        []*WorkflowVariable  `json:"variables,omitempty"         validate:"dive"             yaml:"variables"`
	CreatedAt        time.Time            `json:"created_at"                  yaml:"-"`
	UpdatedAt        time.Time            `json:"updated_at"                  yaml:"-"`
}

// Activity returns the activity with the given id.
func (w *Workflow) Activity(id string) (*Activity, bool) {
	for _, a := range w.Activities {
		if a.ID == id {
			return a, true
		}
	}

	return nil, false
}

// EnterActivity returns the first ENTER activity of the definition.
func (w *Workflow) EnterActivity() (*Activity, bool) {
	for _, a := range w.Activities {
		if a.Type == ActivityTypeEnter {
			return a, true
		}
	}

	return nil, false
}

// TransitionsFrom returns the transitions leaving activityID through port, in definition order.
func (w *Workflow) TransitionsFrom(activityID string, port Port) []*Transition {
	var out []*Transition

	for _, t := range w.Transitions {
		if t.FromActivityID == activityID && t.FromPort == port {
			out = append(out, t)
		}
	}

	return out
}

// Variable returns the variable definition with the given id.
func (w *Workflow) Variable(id string) (*WorkflowVariable, bool) {
	for _, v := range w.Variables {
		if v.ID == id {
			return v, true
		}
	}

	return nil, false
}

type VariableType string

const (
	VariableTypeText   VariableType = "TEXT"
	VariableTypeNumber VariableType = "NUMBER"
)

// WorkflowVariable declares a variable and its default value on a definition.
type WorkflowVariable struct {
	ID           string       `json:"id"            yaml:"id"`
	WorkflowID   string       `json:"workflow_id"   yaml:"-"`
	Name         string       `json:"name"          validate:"required"                  yaml:"name"`
	Type         VariableType `json:"type"          validate:"required,oneof=TEXT NUMBER" yaml:"type"`
	Description  string       `json:"description"   yaml:"description"`
	DefaultValue string       `json:"default_value" yaml:"default_value"`
}

// Initiator grants a user group the right to create instances of a workflow during a window.
type Initiator struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"   validate:"required"`
	UserGroupID string     `json:"user_group_id" validate:"required"`
	FromDate    time.Time  `json:"from_date"`
	ThruDate    *time.Time `json:"thru_date,omitempty"`
}

// Active reports whether the initiator window covers at.
func (i *Initiator) Active(at time.Time) bool {
	if at.Before(i.FromDate) {
		return false
	}

	return i.ThruDate == nil || at.Before(*i.ThruDate)
}
