package activity

import (
	"github.com/netvariant/moqui-workflow/pkg/models"
)

var crowdSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"type": map[string]any{
			"type":        "string",
			"description": "How the crowd is resolved into users",
			"enum":        []string{"USER", "USER_GROUP", "INITIATOR"},
		},
		"userId":        map[string]any{"type": "string"},
		"userGroupId":   map[string]any{"type": "string"},
		"minApprovals":  map[string]any{"type": "integer", "minimum": 0},
		"minRejections": map[string]any{"type": "integer", "minimum": 0},
	},
	"required": []string{"type"},
}

var joinOperatorSchema = map[string]any{
	"type": "string",
	"enum": []string{"AND", "OR"},
}

// schemas describe the data payload of each activity type.
var schemas = map[models.ActivityType]map[string]any{
	models.ActivityTypeEnter: {
		"type": "object",
	},
	models.ActivityTypeExit: {
		"type": "object",
		"properties": map[string]any{
			"resultCode": map[string]any{
				"type":        "string",
				"description": "Result code recorded on the finished instance",
			},
		},
	},
	models.ActivityTypeCondition: {
		"type": "object",
		"properties": map[string]any{
			"conditionType": map[string]any{
				"type": "string",
				"enum": []string{"FIELD", "VARIABLE", "SCRIPT"},
			},
			"joinOperator": joinOperatorSchema,
			"conditions": map[string]any{
				"type": []string{"array", "null"},
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"fieldName":    map[string]any{"type": "string"},
						"variableName": map[string]any{"type": "string"},
						"operator":     map[string]any{"type": "string"},
						"value":        map[string]any{"type": "string"},
						"script":       map[string]any{"type": "string"},
					},
				},
			},
		},
		"required": []string{"conditionType"},
	},
	models.ActivityTypeUser: {
		"type": "object",
		"properties": map[string]any{
			"taskType": map[string]any{
				"type": "string",
				"enum": []string{"APPROVAL", "MANUAL", "VARIABLE"},
			},
			"joinOperator": joinOperatorSchema,
			"crowds": map[string]any{
				"type":  []string{"array", "null"},
				"items": crowdSchema,
			},
			"variableId":      map[string]any{"type": "string"},
			"summary":         map[string]any{"type": "string"},
			"description":     map[string]any{"type": "string"},
			"timeoutInterval": map[string]any{"type": "integer", "minimum": 0},
			"timeoutUom": map[string]any{
				"type": "string",
				"enum": []string{"", "TF_ms", "TF_s", "TF_min", "TF_hr", "TF_day", "TF_wk", "TF_mon", "TF_yr"},
			},
			"timeoutDuration": map[string]any{
				"type":        "string",
				"description": "ISO-8601 duration, used instead of timeoutInterval and timeoutUom",
				"examples":    []string{"PT30M", "P2D"},
			},
		},
		"required": []string{"taskType"},
	},
	models.ActivityTypeAdjust: {
		"type": "object",
		"properties": map[string]any{
			"adjustType": map[string]any{
				"type": "string",
				"enum": []string{"STATUS", "VARIABLE"},
			},
			"statusId":   map[string]any{"type": "string"},
			"variableId": map[string]any{"type": "string"},
			"definedValue": map[string]any{
				"type":        "string",
				"description": "Expression evaluated against the instance variables",
				"examples":    []string{"{{amount}} * 2", `"approved"`},
			},
		},
		"required": []string{"adjustType"},
	},
	models.ActivityTypeService: {
		"type": "object",
		"properties": map[string]any{
			"service": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"parameters": map[string]any{
				"type":        "object",
				"description": "Service parameters; string values are rendered as templates",
			},
			"resultVariableId": map[string]any{"type": "string"},
		},
		"required": []string{"service"},
	},
	models.ActivityTypeNotify: {
		"type": "object",
		"properties": map[string]any{
			"notificationType": map[string]any{
				"type": "string",
				"enum": []string{"EMAIL", "SMS", "PUSH"},
			},
			"crowd":    crowdSchema,
			"template": map[string]any{"type": "string"},
			"message":  map[string]any{"type": "string"},
		},
		"required": []string{"notificationType", "crowd"},
	},
}
