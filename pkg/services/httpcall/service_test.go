package httpcall

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_JSONResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "wf", r.Header.Get("X-Caller"))

		body, _ := io.ReadAll(r.Body)

		var payload map[string]any
		assert.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "ORD-1", payload["order"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"approved": true, "score": 7}`))
	}))
	defer server.Close()

	svc := New(server.Client(), log.Discard())

	out, err := svc.Call(t.Context(), map[string]any{
		"url":     server.URL,
		"method":  "post",
		"headers": map[string]any{"X-Caller": "wf"},
		"body":    map[string]any{"order": "ORD-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out["status_code"])
	assert.Equal(t, map[string]any{"approved": true, "score": 7.0}, out["result"])
}

func TestCall_TextResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := New(server.Client(), log.Discard()).Call(t.Context(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	assert.Equal(t, "OK", out["result"])
}

func TestCall_Retries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"server errors are retried", http.StatusBadGateway, 3},
		{"client errors are not", http.StatusNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := New(server.Client(), log.Discard()).Call(t.Context(), map[string]any{
				"url":     server.URL,
				"retries": map[string]any{"attempts": 3, "delay": 1},
			})

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestCall_MissingURL(t *testing.T) {
	_, err := New(nil, log.Discard()).Call(t.Context(), map[string]any{})
	assert.Error(t, err)
}
