package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/netvariant/moqui-workflow/pkg/events"
	"github.com/netvariant/moqui-workflow/pkg/log"
	"github.com/netvariant/moqui-workflow/pkg/mocks"
	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer

	n := notify.NewLogNotifier(log.New(&buf, "info", "json"))

	require.NoError(t, n.Send(context.Background(), notify.Message{
		InstanceID: "inst-1",
		Recipient:  "alice",
		Channel:    models.NotificationEmail,
		Body:       "Order ORD-1 awaits approval",
	}))
	assert.Contains(t, buf.String(), `"recipient":"alice"`)
	assert.Contains(t, buf.String(), "Order ORD-1 awaits approval")

	assert.ErrorIs(t, n.Send(context.Background(), notify.Message{}), notify.ErrNoRecipient)
}

func TestBusNotifier(t *testing.T) {
	bus := &mocks.MockPublisher{}
	bus.On("Publish", mock.Anything, "bob", mock.MatchedBy(func(e *events.NotificationRequested) bool {
		return e.InstanceID == "inst-2" && e.Recipient == "bob" && e.Channel == models.NotificationSMS && e.Body == "hi"
	})).Return(nil).Once()

	n := notify.NewBusNotifier(bus)
	require.NoError(t, n.Send(context.Background(), notify.Message{InstanceID: "inst-2", Recipient: "bob", Channel: models.NotificationSMS, Body: "hi"}))
	bus.AssertExpectations(t)
}

func TestBusNotifier_PublishError(t *testing.T) {
	bus := &mocks.MockPublisher{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := notify.NewBusNotifier(bus).Send(context.Background(), notify.Message{Recipient: "bob"})
	assert.EqualError(t, err, "broker down")
}
