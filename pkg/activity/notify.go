package activity

import (
	"context"
	"errors"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/notify"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
	"github.com/netvariant/moqui-workflow/pkg/template"
)

var errNoNotifier = errors.New("no notifier configured")

type notifyHandler struct{ d *Dispatcher }

func (h notifyHandler) execute(ctx context.Context, r *run) (Outcome, error) {
	data, err := decode[models.NotifyData](r.activity)
	if err != nil {
		return Failure, err
	}

	if h.d.notifier == nil {
		return h.d.failed(ctx, r, errNoNotifier)
	}

	users, err := h.d.resolver.Resolve(ctx, data.Crowd, r.instance)
	if err != nil {
		return h.d.failed(ctx, r, err)
	}

	_, vars, err := h.d.variables.Environment(ctx, r.instance.ID)
	if err != nil {
		return Failure, err
	}

	body, err := template.Text(data.Message, template.Data(r.instance, vars))
	if err != nil {
		return h.d.failed(ctx, r, err)
	}

	sent, failed := 0, 0

	for _, userID := range users {
		msg := notify.Message{
			InstanceID: r.instance.ID,
			Recipient:  userID,
			Channel:    data.NotificationType,
			Template:   data.Template,
			Body:       body,
			Params:     map[string]any{"message": body},
		}

		user, err := h.d.store.Directory().GetUser(ctx, userID)
		switch {
		case err == nil:
			msg.Address = address(user, data.NotificationType)
		case !persistence.IsNotFound(err):
			return Failure, err
		}

		if err := h.d.notifier.Send(ctx, msg); err != nil {
			failed++

			r.logger.WarnContext(ctx, "Failed to send notification", "user_id", userID, "error", err)

			continue
		}

		sent++
	}

	r.logger.InfoContext(ctx, "Notifications sent",
		"channel", data.NotificationType,
		"sent", sent,
		"failed", failed)

	if err := h.d.executed(ctx, r); err != nil {
		return Failure, err
	}

	return Success, nil
}

func address(user *models.User, channel models.NotificationType) string {
	switch channel {
	case models.NotificationEmail:
		return user.Email
	case models.NotificationSMS:
		return user.Phone
	default:
		return user.ID
	}
}
