// Package condition implements the comparisons a CONDITION activity joins into a verdict.
package condition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/script"
)

type Operator string

const (
	BoolTrue  Operator = "BOOL_TRUE"
	BoolFalse Operator = "BOOL_FALSE"

	NumLessThan          Operator = "NUM_LESS_THAN"
	NumLessThanEquals    Operator = "NUM_LESS_THAN_EQUALS"
	NumGreaterThan       Operator = "NUM_GREATER_THAN"
	NumGreaterThanEquals Operator = "NUM_GREATER_THAN_EQUALS"
	NumEquals            Operator = "NUM_EQUALS"
	NumNotEquals         Operator = "NUM_NOT_EQUALS"

	TxtStartsWith  Operator = "TXT_STARTS_WITH"
	TxtEndsWith    Operator = "TXT_ENDS_WITH"
	TxtContains    Operator = "TXT_CONTAINS"
	TxtNotContains Operator = "TXT_NOT_CONTAINS"
	TxtEquals      Operator = "TXT_EQUALS"
	TxtNotEquals   Operator = "TXT_NOT_EQUALS"
	TxtEmpty       Operator = "TXT_EMPTY"
	TxtNotEmpty    Operator = "TXT_NOT_EMPTY"

	DateBefore    Operator = "DATE_BEFORE"
	DateAfter     Operator = "DATE_AFTER"
	DateEquals    Operator = "DATE_EQUALS"
	DateNotEquals Operator = "DATE_NOT_EQUALS"
)

var (
	ErrUnknownOperator  = errors.New("unknown comparison operator")
	ErrInvalidValue     = errors.New("invalid comparison value")
	ErrUnknownFieldType = errors.New("unknown field type")
)

var operators = map[models.FieldType][]Operator{
	models.FieldTypeBoolean: {BoolTrue, BoolFalse},
	models.FieldTypeNumber:  {NumLessThan, NumLessThanEquals, NumGreaterThan, NumGreaterThanEquals, NumEquals, NumNotEquals},
	models.FieldTypeText:    {TxtStartsWith, TxtEndsWith, TxtContains, TxtNotContains, TxtEquals, TxtNotEquals, TxtEmpty, TxtNotEmpty},
	models.FieldTypeDate:    {DateBefore, DateAfter, DateEquals, DateNotEquals},
}

// Supports reports whether op applies to values of type ft.
func Supports(ft models.FieldType, op Operator) bool {
	for _, candidate := range operators[ft] {
		if candidate == op {
			return true
		}
	}

	return false
}

// Condition is one comparison.
type Condition interface {
	Evaluate(ctx context.Context) (bool, error)
}

type Boolean struct {
	Value    bool
	Operator Operator
}

func (c Boolean) Evaluate(_ context.Context) (bool, error) {
	switch c.Operator {
	case BoolTrue:
		return c.Value, nil
	case BoolFalse:
		return !c.Value, nil
	}

	return false, fmt.Errorf("%w: %s", ErrUnknownOperator, c.Operator)
}

func (c Boolean) String() string { return fmt.Sprintf("%t %s", c.Value, c.Operator) }

type Number struct {
	Left     int64
	Operator Operator
	Right    int64
}

func (c Number) Evaluate(_ context.Context) (bool, error) {
	switch c.Operator {
	case NumLessThan:
		return c.Left < c.Right, nil
	case NumLessThanEquals:
		return c.Left <= c.Right, nil
	case NumGreaterThan:
		return c.Left > c.Right, nil
	case NumGreaterThanEquals:
		return c.Left >= c.Right, nil
	case NumEquals:
		return c.Left == c.Right, nil
	case NumNotEquals:
		return c.Left != c.Right, nil
	}

	return false, fmt.Errorf("%w: %s", ErrUnknownOperator, c.Operator)
}

func (c Number) String() string { return fmt.Sprintf("%d %s %d", c.Left, c.Operator, c.Right) }

// Text comparisons are case-sensitive.
type Text struct {
	Left     string
	Operator Operator
	Right    string
}

func (c Text) Evaluate(_ context.Context) (bool, error) {
	switch c.Operator {
	case TxtStartsWith:
		return strings.HasPrefix(c.Left, c.Right), nil
	case TxtEndsWith:
		return strings.HasSuffix(c.Left, c.Right), nil
	case TxtContains:
		return strings.Contains(c.Left, c.Right), nil
	case TxtNotContains:
		return !strings.Contains(c.Left, c.Right), nil
	case TxtEquals:
		return c.Left == c.Right, nil
	case TxtNotEquals:
		return c.Left != c.Right, nil
	case TxtEmpty:
		return c.Left == "", nil
	case TxtNotEmpty:
		return c.Left != "", nil
	}

	return false, fmt.Errorf("%w: %s", ErrUnknownOperator, c.Operator)
}

func (c Text) String() string { return fmt.Sprintf("%q %s %q", c.Left, c.Operator, c.Right) }

// Date compares calendar days in Location (UTC when nil).
type Date struct {
	Left     time.Time
	Operator Operator
	Right    time.Time
	Location *time.Location
}

func (c Date) Evaluate(_ context.Context) (bool, error) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}

	left, right := day(c.Left, loc), day(c.Right, loc)

	switch c.Operator {
	case DateBefore:
		return left.Before(right), nil
	case DateAfter:
		return left.After(right), nil
	case DateEquals:
		return left.Equal(right), nil
	case DateNotEquals:
		return !left.Equal(right), nil
	}

	return false, fmt.Errorf("%w: %s", ErrUnknownOperator, c.Operator)
}

func (c Date) String() string {
	return fmt.Sprintf("%s %s %s", c.Left.Format(time.DateOnly), c.Operator, c.Right.Format(time.DateOnly))
}

func day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()

	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Script evaluates Code with Engine and coerces the result with script.ToBool.
type Script struct {
	Code   string
	Env    map[string]any
	Engine script.Engine
}

func (c Script) Evaluate(ctx context.Context) (bool, error) {
	if strings.TrimSpace(c.Code) == "" {
		return false, fmt.Errorf("%w: empty script", ErrInvalidValue)
	}

	result, err := c.Engine.Evaluate(ctx, c.Code, c.Env)
	if err != nil {
		return false, err
	}

	return script.ToBool(result), nil
}

func (c Script) String() string { return c.Code }

// New builds the comparison of a source value of type ft against literal. A blank
// number literal counts as zero.
func New(ft models.FieldType, source string, op Operator, literal string, loc *time.Location) (Condition, error) {
	if _, ok := operators[ft]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFieldType, ft)
	}

	if !Supports(ft, op) {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnknownOperator, op, ft)
	}

	switch ft {
	case models.FieldTypeBoolean:
		return Boolean{Value: ParseBool(source), Operator: op}, nil
	case models.FieldTypeNumber:
		right := int64(0)
		if strings.TrimSpace(literal) != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(literal), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: number %q", ErrInvalidValue, literal)
			}

			right = n
		}

		left, err := strconv.ParseInt(strings.TrimSpace(source), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: source number %q", ErrInvalidValue, source)
		}

		return Number{Left: left, Operator: op, Right: right}, nil
	case models.FieldTypeDate:
		right, err := ParseDate(literal, loc)
		if err != nil {
			return nil, err
		}

		left, err := ParseDate(source, loc)
		if err != nil {
			return nil, err
		}

		return Date{Left: left, Operator: op, Right: right, Location: loc}, nil
	default:
		return Text{Left: source, Operator: op, Right: literal}, nil
	}
}

// ParseBool reads the indicator forms used by tracked entities.
func ParseBool(s string) bool {
	switch strings.TrimSpace(s) {
	case "Y", "true":
		return true
	}

	return false
}

var dateLayouts = []string{time.DateOnly, time.RFC3339, time.DateTime, "2006-01-02 15:04:05.000"}

// ParseDate accepts a calendar date, an RFC 3339 timestamp or a SQL timestamp.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidValue, s)
}

// Join folds conditions with op. Conditions that fail to evaluate are logged and
// skipped. OR stops on the first true, AND on the first false; with nothing left to
// decide the result is op == AND.
func Join(ctx context.Context, op models.JoinOperator, conditions []Condition, logger *slog.Logger) bool {
	met := op == models.JoinAnd

	for i, c := range conditions {
		ok, err := c.Evaluate(ctx)
		if err != nil {
			logger.WarnContext(ctx, "Failed to evaluate condition, skipping", "index", i, "condition", c, "error", err)

			continue
		}

		logger.DebugContext(ctx, "Condition evaluated", "index", i, "condition", c, "result", ok)

		if op == models.JoinOr && ok {
			return true
		}

		if op == models.JoinAnd && !ok {
			return false
		}
	}

	return met
}
