// Package template renders text/template strings over instance data for service
// parameters and notification messages.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/script"
)

// Data builds the template root: .vars holds instance variables by name (numbers as
// int64) and .instance the identity of the run.
func Data(inst *models.Instance, vars []*models.InstanceVariable) map[string]any {
	data := map[string]any{
		"vars": script.Environment(vars),
	}

	if inst != nil {
		data["instance"] = map[string]any{
			"id":                inst.ID,
			"workflow_id":       inst.WorkflowID,
			"primary_key_value": inst.PrimaryKeyValue,
			"input_user_id":     inst.InputUserID,
			"status":            string(inst.Status),
		}
	}

	return data
}

func parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("workflow").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// Text renders templateStr to a string. Referencing a missing key is an error.
func Text(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render renders templateStr and reads the output back as JSON, a number or a boolean
// when it looks like one.
func Render(templateStr string, data any) (any, error) {
	out, err := Text(templateStr, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(out)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return out, nil
}

// Params renders every string leaf of params. Other values are copied as they are.
func Params(params map[string]any, data any) (map[string]any, error) {
	out := make(map[string]any, len(params))

	for k, v := range params {
		rendered, err := renderValue(v, data)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", k, err)
		}

		out[k] = rendered
	}

	return out, nil
}

func renderValue(v any, data any) (any, error) {
	switch x := v.(type) {
	case string:
		if !strings.Contains(x, "{{") {
			return x, nil
		}

		return Render(x, data)
	case map[string]any:
		return Params(x, data)
	case []any:
		out := make([]any, len(x))

		for i, item := range x {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	}

	return v, nil
}
