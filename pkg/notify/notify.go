// Package notify hands notifications to whatever delivers them. Delivery itself is out of
// process: the engine only records the request.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/netvariant/moqui-workflow/pkg/eventbus"
	"github.com/netvariant/moqui-workflow/pkg/events"
	"github.com/netvariant/moqui-workflow/pkg/models"
)

var ErrNoRecipient = errors.New("notification has no recipient")

// Message is one notification for one user.
type Message struct {
	InstanceID string
	Recipient  string
	Address    string
	Channel    models.NotificationType
	Template   string
	Body       string
	Params     map[string]any
}

// Notifier sends messages fire-and-forget: a nil error only means the message was accepted.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}

	n.logger.InfoContext(ctx, "Notification",
		"instance_id", msg.InstanceID,
		"channel", msg.Channel,
		"recipient", msg.Recipient,
		"address", msg.Address,
		"template", msg.Template,
		"body", msg.Body)

	return nil
}

// BusNotifier publishes notification.requested events for an external delivery service.
type BusNotifier struct {
	publisher eventbus.EventPublisher
}

func NewBusNotifier(publisher eventbus.EventPublisher) *BusNotifier {
	return &BusNotifier{publisher: publisher}
}

func (n *BusNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}

	return n.publisher.Publish(ctx, msg.Recipient, &events.NotificationRequested{
		BaseEvent: events.NewBaseEvent(events.NotificationRequestedEvent, msg.InstanceID),
		Channel:   msg.Channel,
		Recipient: msg.Recipient,
		Address:   msg.Address,
		Template:  msg.Template,
		Body:      msg.Body,
		Params:    msg.Params,
	})
}
