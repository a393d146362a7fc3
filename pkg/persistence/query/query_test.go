package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row map[string]any

func (r row) Field(name string) any { return r[name] }

type status string

func TestCondition_Match(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	r := row{
		"status":     "ACTIVE",
		"visit":      3,
		"timeout_at": &earlier,
		"owner":      nil,
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"empty matches", Condition{}, true},
		{"eq", Eq("status", "ACTIVE"), true},
		{"eq typed string", Eq("status", status("ACTIVE")), true},
		{"neq", Neq("status", "ACTIVE"), false},
		{"in", In("status", "PENDING", "ACTIVE"), true},
		{"in empty", In[string]("status"), false},
		{"lt int", Lt("visit", 4), true},
		{"gte int", Gte("visit", 3), true},
		{"gt int", Gt("visit", 3), false},
		{"time lt", Lt("timeout_at", now), true},
		{"between", Between("timeout_at", earlier, now), true},
		{"between exclusive end", Between("timeout_at", earlier.Add(-time.Hour), earlier), false},
		{"is null", IsNull("owner"), true},
		{"not null", NotNull("timeout_at"), true},
		{"lt on null never matches", Lt("owner", "x"), false},
		{"and", And(Eq("status", "ACTIVE"), Lt("timeout_at", now)), true},
		{"and short", And(Eq("status", "ACTIVE"), Eq("visit", 9)), false},
		{"or", Or(Eq("status", "DONE"), Eq("visit", 3)), true},
		{"or none", Or(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Match(r))
		})
	}
}

func TestCondition_SQL(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	cond := And(
		Eq("status", "ACTIVE"),
		NotNull("timeout_at"),
		Lt("timeout_at", now),
		Or(In("assigned_user_id", "a", "b"), IsNull("owner")),
	)

	sql, args := cond.SQL(1)

	assert.Equal(t,
		"(status = $2 AND timeout_at IS NOT NULL AND timeout_at < $3 AND (assigned_user_id IN ($4, $5) OR owner IS NULL))",
		sql)
	assert.Equal(t, []any{"ACTIVE", now, "a", "b"}, args)

	sql, args = Condition{}.SQL(0)
	assert.Equal(t, "TRUE", sql)
	assert.Empty(t, args)

	sql, _ = In[string]("status").SQL(0)
	assert.Equal(t, "FALSE", sql)
}

func TestOptions_Validate(t *testing.T) {
	allowed := Fields("status", "created_at")

	require.NoError(t, Options{Where: Eq("status", "x"), OrderBy: "created_at"}.Validate(allowed))
	assert.Error(t, Options{Where: Eq("owner; DROP TABLE", "x")}.Validate(allowed))
	assert.Error(t, Options{OrderBy: "nope"}.Validate(allowed))
	assert.Error(t, Options{Where: And(Eq("status", "x"), Or(Eq("bad", 1)))}.Validate(allowed))
}

func TestApply(t *testing.T) {
	rows := []row{
		{"id": "a", "n": 3},
		{"id": "b", "n": 1},
		{"id": "c", "n": 2},
		{"id": "d", "n": 5},
	}

	page, total := Apply(rows, Options{Where: Lt("n", 5), OrderBy: "n", Limit: 2})
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0]["id"])
	assert.Equal(t, "c", page[1]["id"])

	page, total = Apply(rows, Options{OrderBy: "n", Desc: true, Offset: 1, Limit: 10})
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 3)
	assert.Equal(t, "a", page[0]["id"])

	page, _ = Apply(rows, Options{Offset: 10})
	assert.Empty(t, page)
}
