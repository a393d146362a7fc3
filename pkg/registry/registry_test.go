package registry

import (
	"context"
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/log"
	"github.com/netvariant/moqui-workflow/pkg/mocks"
	"github.com/netvariant/moqui-workflow/pkg/services/httpcall"
	"github.com/netvariant/moqui-workflow/pkg/services/logcall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry(log.Discard())
	require.NoError(t, r.RegisterDefaults(nil))

	assert.Equal(t, []string{httpcall.ID, logcall.ID}, r.IDs())

	out, err := r.Call(context.Background(), logcall.ID, map[string]any{"message": "hello", "level": "warn"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out["result"])
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry(log.Discard())
	require.NoError(t, r.Register(logcall.New(log.Discard())))
	assert.ErrorIs(t, r.Register(logcall.New(log.Discard())), ErrDuplicateService)
}

func TestCall_ValidatesParameters(t *testing.T) {
	r := NewRegistry(log.Discard())
	require.NoError(t, r.RegisterDefaults(nil))

	tests := []struct {
		name    string
		service string
		params  map[string]any
	}{
		{"missing message", logcall.ID, map[string]any{}},
		{"bad level", logcall.ID, map[string]any{"message": "x", "level": "loud"}},
		{"missing url", httpcall.ID, map[string]any{"method": "GET"}},
		{"bad scheme", httpcall.ID, map[string]any{"url": "ftp://example.com"}},
		{"bad method", httpcall.ID, map[string]any{"url": "http://example.com", "method": "BREW"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Call(context.Background(), tt.service, tt.params)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestCall_Unregistered(t *testing.T) {
	_, err := NewRegistry(log.Discard()).Call(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestCall_DelegatesToService(t *testing.T) {
	svc := mocks.NewMockService("erp.reserve", nil)
	svc.On("Call", mock.Anything, map[string]any{"sku": "A1"}).Return(map[string]any{"result": "R-9"}, nil).Once()

	r := NewRegistry(log.Discard())
	require.NoError(t, r.Register(svc))

	out, err := r.Call(context.Background(), "erp.reserve", map[string]any{"sku": "A1"})
	require.NoError(t, err)
	assert.Equal(t, "R-9", out["result"])
	svc.AssertExpectations(t)
}
