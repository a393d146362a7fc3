// Package script evaluates the small expressions and scripts used by condition and adjust
// activities. Scripts see the instance variables as an environment; the legacy
// {{name}} placeholder form is rewritten to bound identifiers before evaluation.
package script

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/netvariant/moqui-workflow/pkg/models"
)

const (
	LanguageJavaScript = "javascript"
	LanguageExpr       = "expr"
)

var (
	ErrUnknownVariable = errors.New("unknown script variable")
	ErrNotANumber      = errors.New("script result is not a number")
)

// Engine evaluates code against an environment of named values.
type Engine interface {
	Evaluate(ctx context.Context, code string, env map[string]any) (any, error)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Bind rewrites every {{name}} placeholder in code to a generated identifier and returns
// the rewritten code with an environment holding env plus the generated bindings.
// Values are never spliced into the source text.
func Bind(code string, env map[string]any) (string, map[string]any, error) {
	bound := make(map[string]any, len(env))
	for k, v := range env {
		bound[k] = v
	}

	names := make(map[string]string)

	var missing []string

	rewritten := placeholder.ReplaceAllStringFunc(code, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]

		if id, ok := names[name]; ok {
			return id
		}

		value, ok := env[name]
		if !ok {
			missing = append(missing, name)

			return match
		}

		id := fmt.Sprintf("__v%d", len(names))
		names[name] = id
		bound[id] = value

		return id
	})

	if len(missing) > 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownVariable, strings.Join(missing, ", "))
	}

	return rewritten, bound, nil
}

// Environment maps instance variables by name. NUMBER variables become int64 (0 when
// blank or unparsable); everything else stays a string.
func Environment(vars []*models.InstanceVariable) map[string]any {
	env := make(map[string]any, len(vars))

	for _, v := range vars {
		if v.Type == models.VariableTypeNumber {
			n, err := strconv.ParseInt(strings.TrimSpace(v.Value), 10, 64)
			if err != nil {
				n = 0
			}

			env[v.Name] = n

			continue
		}

		env[v.Name] = v.Value
	}

	return env
}

// ToBool coerces a script result: booleans are themselves, numbers are true when
// positive and everything else is false.
func ToBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}

	if f, ok := toFloat(v); ok {
		return f > 0
	}

	return false
}

// ToInt64 coerces a numeric script result, truncating fractions. Numeric strings are accepted.
func ToInt64(v any) (int64, error) {
	if s, ok := v.(string); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotANumber, s)
		}

		return int64(n), nil
	}

	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNotANumber, v)
	}

	return int64(f), nil
}

// ToString renders a script result as variable text.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}

		return strconv.FormatFloat(x, 'f', -1, 64)
	}

	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}

	return 0, false
}
