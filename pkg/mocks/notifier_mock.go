package mocks

import (
	"context"

	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}
