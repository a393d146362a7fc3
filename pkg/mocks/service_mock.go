package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockService is a mock implementation of protocol.Service.
type MockService struct {
	mock.Mock

	id     string
	schema map[string]any
}

func NewMockService(id string, schema map[string]any) *MockService {
	return &MockService{id: id, schema: schema}
}

func (m *MockService) ID() string             { return m.id }
func (m *MockService) Name() string           { return m.id }
func (m *MockService) Description() string    { return "mock service " + m.id }
func (m *MockService) Schema() map[string]any { return m.schema }

func (m *MockService) Call(ctx context.Context, params map[string]any) (map[string]any, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}
