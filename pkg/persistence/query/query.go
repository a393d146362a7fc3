// Package query is the small condition language used for filtered list queries. The same
// condition tree is matched in memory by the memory and file stores and rendered to SQL by
// the postgres store.
package query

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Record is anything whose columns can be read by name.
type Record interface {
	Field(name string) any
}

type Op string

const (
	OpEq      Op = "="
	OpNeq     Op = "<>"
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpIn      Op = "IN"
	OpBetween Op = "BETWEEN"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
	OpAnd     Op = "AND"
	OpOr      Op = "OR"
)

// Condition is a node of a condition tree.
type Condition struct {
	Op       Op
	Field    string
	Values   []any
	Children []Condition
}

func Eq(field string, value any) Condition  { return cmp(OpEq, field, value) }
func Neq(field string, value any) Condition { return cmp(OpNeq, field, value) }
func Lt(field string, value any) Condition  { return cmp(OpLt, field, value) }
func Lte(field string, value any) Condition { return cmp(OpLte, field, value) }
func Gt(field string, value any) Condition  { return cmp(OpGt, field, value) }
func Gte(field string, value any) Condition { return cmp(OpGte, field, value) }

func cmp(op Op, field string, value any) Condition {
	return Condition{Op: op, Field: field, Values: []any{value}}
}

// In matches when the field equals one of values. An empty set never matches.
func In[T any](field string, values ...T) Condition {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}

	return Condition{Op: OpIn, Field: field, Values: vs}
}

// Between is a date range, inclusive of from and exclusive of thru.
func Between(field string, from, thru time.Time) Condition {
	return Condition{Op: OpBetween, Field: field, Values: []any{from, thru}}
}

func IsNull(field string) Condition  { return Condition{Op: OpIsNull, Field: field} }
func NotNull(field string) Condition { return Condition{Op: OpNotNull, Field: field} }

func And(conds ...Condition) Condition { return Condition{Op: OpAnd, Children: conds} }
func Or(conds ...Condition) Condition  { return Condition{Op: OpOr, Children: conds} }

// IsZero reports whether c is the empty condition, which matches everything.
func (c Condition) IsZero() bool {
	return c.Op == ""
}

// Match evaluates the condition against r.
func (c Condition) Match(r Record) bool {
	switch c.Op {
	case "":
		return true
	case OpAnd:
		for _, child := range c.Children {
			if !child.Match(r) {
				return false
			}
		}

		return true
	case OpOr:
		for _, child := range c.Children {
			if child.Match(r) {
				return true
			}
		}

		return false
	}

	v := normalize(r.Field(c.Field))

	switch c.Op {
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	case OpIn:
		for _, want := range c.Values {
			if n, ok := compare(v, normalize(want)); ok && n == 0 {
				return true
			}
		}

		return false
	case OpBetween:
		lo, okLo := compare(v, normalize(c.Values[0]))
		hi, okHi := compare(v, normalize(c.Values[1]))

		return okLo && okHi && lo >= 0 && hi < 0
	}

	n, ok := compare(v, normalize(c.Values[0]))
	if !ok {
		return c.Op == OpNeq && v != nil
	}

	switch c.Op {
	case OpEq:
		return n == 0
	case OpNeq:
		return n != 0
	case OpLt:
		return n < 0
	case OpLte:
		return n <= 0
	case OpGt:
		return n > 0
	case OpGte:
		return n >= 0
	}

	return false
}

// Validate checks that every field referenced by c is allowed.
func (c Condition) Validate(allowed FieldSet) error {
	if c.Op == OpAnd || c.Op == OpOr {
		for _, child := range c.Children {
			if err := child.Validate(allowed); err != nil {
				return err
			}
		}

		return nil
	}

	if c.Op != "" && !allowed[c.Field] {
		return fmt.Errorf("unknown field %q", c.Field)
	}

	return nil
}

// SQL renders c as a WHERE fragment using $n placeholders starting after argOffset.
// The empty condition renders as "TRUE".
func (c Condition) SQL(argOffset int) (string, []any) {
	var args []any

	next := func(v any) string {
		args = append(args, v)

		return fmt.Sprintf("$%d", argOffset+len(args))
	}

	var render func(c Condition) string

	render = func(c Condition) string {
		switch c.Op {
		case "":
			return "TRUE"
		case OpAnd, OpOr:
			if len(c.Children) == 0 {
				if c.Op == OpAnd {
					return "TRUE"
				}

				return "FALSE"
			}

			parts := make([]string, len(c.Children))
			for i, child := range c.Children {
				parts[i] = render(child)
			}

			return "(" + strings.Join(parts, " "+string(c.Op)+" ") + ")"
		case OpIsNull, OpNotNull:
			return c.Field + " " + string(c.Op)
		case OpIn:
			if len(c.Values) == 0 {
				return "FALSE"
			}

			placeholders := make([]string, len(c.Values))
			for i, v := range c.Values {
				placeholders[i] = next(v)
			}

			return c.Field + " IN (" + strings.Join(placeholders, ", ") + ")"
		case OpBetween:
			return "(" + c.Field + " >= " + next(c.Values[0]) + " AND " + c.Field + " < " + next(c.Values[1]) + ")"
		default:
			return c.Field + " " + string(c.Op) + " " + next(c.Values[0])
		}
	}

	return render(c), args
}

// FieldSet is an allow-list of column names.
type FieldSet map[string]bool

func Fields(names ...string) FieldSet {
	set := make(FieldSet, len(names))
	for _, n := range names {
		set[n] = true
	}

	return set
}

// Options are the filter, ordering and paging of a list query.
type Options struct {
	Where   Condition
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Validate checks the where clause and the ordering column against allowed.
func (o Options) Validate(allowed FieldSet) error {
	if o.OrderBy != "" && !allowed[o.OrderBy] {
		return fmt.Errorf("unknown order field %q", o.OrderBy)
	}

	return o.Where.Validate(allowed)
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *time.Time:
		if x == nil {
			return nil
		}

		return *x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case string, int64, float64, bool, time.Time:
		return x
	case fmt.Stringer:
		return x.String()
	}

	return fmt.Sprint(v)
}

// compare orders two normalized values of the same kind.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}

		return strings.Compare(x, y), true
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}

		return cmpOrdered(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}

		return cmpOrdered(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}

		if x == y {
			return 0, true
		}

		if !x {
			return -1, true
		}

		return 1, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}

		return x.Compare(y), true
	}

	return 0, false
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Apply filters, orders and pages records in memory. It returns the page and the
// number of records that matched before paging.
func Apply[R Record](records []R, o Options) ([]R, int64) {
	var matched []R

	for _, r := range records {
		if o.Where.Match(r) {
			matched = append(matched, r)
		}
	}

	if o.OrderBy != "" {
		slices.SortStableFunc(matched, func(a, b R) int {
			n, _ := compare(normalize(a.Field(o.OrderBy)), normalize(b.Field(o.OrderBy)))
			if o.Desc {
				return -n
			}

			return n
		})
	}

	total := int64(len(matched))

	if o.Offset > 0 {
		if o.Offset >= len(matched) {
			return nil, total
		}

		matched = matched[o.Offset:]
	}

	if o.Limit > 0 && o.Limit < len(matched) {
		matched = matched[:o.Limit]
	}

	return matched, total
}
