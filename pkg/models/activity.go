package models

import (
	"encoding/json"
	"fmt"
)

type ActivityType string

const (
	ActivityTypeEnter     ActivityType = "ENTER"
	ActivityTypeExit      ActivityType = "EXIT"
	ActivityTypeCondition ActivityType = "CONDITION"
	ActivityTypeUser      ActivityType = "USER"
	ActivityTypeAdjust    ActivityType = "ADJUST"
	ActivityTypeService   ActivityType = "SERVICE"
	ActivityTypeNotify    ActivityType = "NOTIFY"
)

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTypeEnter, ActivityTypeExit, ActivityTypeCondition, ActivityTypeUser,
		ActivityTypeAdjust, ActivityTypeService, ActivityTypeNotify:
		return true
	}

	return false
}

// Port names an exit (or, for INPUT, the entry) of an activity.
type Port string

const (
	PortInput   Port = "INPUT"
	PortSuccess Port = "SUCCESS"
	PortFailure Port = "FAILURE"
	PortTimeout Port = "TIMEOUT"
)

// Activity is one node of a workflow graph. Data holds the type-specific configuration.
type Activity struct {
	ID         string          `json:"id"             yaml:"id"`
	WorkflowID string          `json:"workflow_id"    yaml:"-"`
	Name       string          `json:"name,omitempty" yaml:"name"`
	Type       ActivityType    `json:"type"           validate:"required,oneof=ENTER EXIT CONDITION USER ADJUST SERVICE NOTIFY" yaml:"type"`
	Data       json.RawMessage `json:"data,omitempty" yaml:"-"`
}

// DecodeData unmarshals the activity configuration into dst. An empty payload leaves dst untouched.
func (a *Activity) DecodeData(dst any) error {
	if len(a.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(a.Data, dst); err != nil {
		return fmt.Errorf("activity %s: invalid %s data: %w", a.ID, a.Type, err)
	}

	return nil
}

// Transition is a directed edge from one activity's port to another activity.
type Transition struct {
	ID             string `json:"id"               yaml:"id"`
	WorkflowID     string `json:"workflow_id"      yaml:"-"`
	FromActivityID string `json:"from_activity_id" validate:"required" yaml:"from"`
	FromPort       Port   `json:"from_port"        validate:"required,oneof=INPUT SUCCESS FAILURE TIMEOUT" yaml:"from_port"`
	ToActivityID   string `json:"to_activity_id"   validate:"required" yaml:"to"`
	ToPort         Port   `json:"to_port"          yaml:"to_port"`
}

type JoinOperator string

const (
	JoinAnd JoinOperator = "AND"
	JoinOr  JoinOperator = "OR"
)

type CrowdType string

const (
	CrowdTypeUser      CrowdType = "USER"
	CrowdTypeUserGroup CrowdType = "USER_GROUP"
	CrowdTypeInitiator CrowdType = "INITIATOR"
)

// Crowd is an abstract set of users, optionally carrying quorum thresholds.
type Crowd struct {
	Type          CrowdType `json:"type"`
	UserID        string    `json:"userId,omitempty"`
	UserGroupID   string    `json:"userGroupId,omitempty"`
	MinApprovals  int64     `json:"minApprovals,omitempty"`
	MinRejections int64     `json:"minRejections,omitempty"`
}

// UserData configures a USER activity.
type UserData struct {
	TaskType        TaskType     `json:"taskType"`
	JoinOperator    JoinOperator `json:"joinOperator,omitempty"`
	Crowds          []Crowd      `json:"crowds"`
	VariableID      string       `json:"variableId,omitempty"`
	Summary         string       `json:"summary,omitempty"`
	Description     string       `json:"description,omitempty"`
	TimeoutInterval int          `json:"timeoutInterval,omitempty"`
	TimeoutUom      string       `json:"timeoutUom,omitempty"`
	TimeoutDuration string       `json:"timeoutDuration,omitempty"`
}

type ConditionSource string

const (
	ConditionSourceField    ConditionSource = "FIELD"
	ConditionSourceVariable ConditionSource = "VARIABLE"
	ConditionSourceScript   ConditionSource = "SCRIPT"
)

// ConditionData configures a CONDITION activity.
type ConditionData struct {
	ConditionType ConditionSource  `json:"conditionType"`
	JoinOperator  JoinOperator     `json:"joinOperator"`
	Conditions    []ConditionEntry `json:"conditions"`
}

// ConditionEntry is one raw condition; which fields apply depends on ConditionData.ConditionType.
type ConditionEntry struct {
	FieldName    string `json:"fieldName,omitempty"`
	VariableName string `json:"variableName,omitempty"`
	Operator     string `json:"operator,omitempty"`
	Value        string `json:"value,omitempty"`
	Script       string `json:"script,omitempty"`
}

type AdjustType string

const (
	AdjustTypeStatus   AdjustType = "STATUS"
	AdjustTypeVariable AdjustType = "VARIABLE"
)

// AdjustData configures an ADJUST activity.
type AdjustData struct {
	AdjustType   AdjustType `json:"adjustType"`
	StatusID     string     `json:"statusId,omitempty"`
	VariableID   string     `json:"variableId,omitempty"`
	DefinedValue string     `json:"definedValue,omitempty"`
}

type ExitData struct {
	ResultCode string `json:"resultCode,omitempty"`
}

type NotificationType string

const (
	NotificationEmail NotificationType = "EMAIL"
	NotificationSMS   NotificationType = "SMS"
	NotificationPush  NotificationType = "PUSH"
)

// NotifyData configures a NOTIFY activity.
type NotifyData struct {
	NotificationType NotificationType `json:"notificationType"`
	Crowd            Crowd            `json:"crowd"`
	Template         string           `json:"template,omitempty"`
	Message          string           `json:"message"`
}

// ServiceData configures a SERVICE activity.
type ServiceData struct {
	Service          string         `json:"service"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	ResultVariableID string         `json:"resultVariableId,omitempty"`
}
