package template

import (
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() map[string]any {
	return Data(
		&models.Instance{ID: "i-1", WorkflowID: "wf-1", PrimaryKeyValue: "ORD-7", InputUserID: "alice"},
		[]*models.InstanceVariable{
			{Name: "amount", Type: models.VariableTypeNumber, Value: "120"},
			{Name: "customer", Type: models.VariableTypeText, Value: "ACME"},
		},
	)
}

func TestText(t *testing.T) {
	got, err := Text("Order {{ .instance.primary_key_value }} for {{ .vars.customer }} needs review", testData())
	require.NoError(t, err)
	assert.Equal(t, "Order ORD-7 for ACME needs review", got)

	got, err = Text("no placeholders", nil)
	require.NoError(t, err)
	assert.Equal(t, "no placeholders", got)

	_, err = Text("{{ .vars.missing }}", testData())
	assert.Error(t, err, "missing keys are errors")

	_, err = Text("{{ .vars.amount", testData())
	assert.Error(t, err)
}

func TestRender_Coercion(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want any
	}{
		{"number", "{{ .vars.amount }}", 120.0},
		{"boolean", "{{ gt .vars.amount 100 }}", true},
		{"string", "{{ .vars.customer }}", "ACME"},
		{"json", `{"id": "{{ .instance.id }}", "total": {{ .vars.amount }}}`, map[string]any{"id": "i-1", "total": 120.0}},
		{"upper", "{{ upper .vars.customer }}-{{ lower .instance.workflow_id }}", "ACME-wf-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, testData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Render(`{"broken": {{ .vars.customer }}}`, testData())
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	got, err := Params(map[string]any{
		"url":     "https://erp.local/orders/{{ .instance.primary_key_value }}",
		"method":  "POST",
		"retries": 3,
		"headers": map[string]any{"X-Initiator": "{{ .instance.input_user_id }}"},
		"tags":    []any{"static", "{{ .vars.customer }}"},
	}, testData())
	require.NoError(t, err)

	assert.Equal(t, "https://erp.local/orders/ORD-7", got["url"])
	assert.Equal(t, "POST", got["method"])
	assert.Equal(t, 3, got["retries"])
	assert.Equal(t, map[string]any{"X-Initiator": "alice"}, got["headers"])
	assert.Equal(t, []any{"static", "ACME"}, got["tags"])

	_, err = Params(map[string]any{"bad": "{{ .nope.x }}"}, testData())
	assert.Error(t, err)
}
