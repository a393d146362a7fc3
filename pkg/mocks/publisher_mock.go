package mocks

import (
	"context"

	"github.com/netvariant/moqui-workflow/pkg/eventbus"
	"github.com/stretchr/testify/mock"
)

// MockPublisher records events handed to the bus.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}
