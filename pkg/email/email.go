// Package email abstracts the delivery provider used by send-email steps.
package email

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To         string
	Subject    string
	Body       string
	TemplateID string
	ContactID  string
	Metadata   map[string]string
}

// Delivery hands a rendered message to the provider. Send returns a delivery
// ID that executions record in their context; providers must treat Send as
// fire-and-forget, with bounces and opens arriving later as contact events.
type Delivery interface {
	Send(ctx context.Context, message Message) (string, error)
}

// LogDelivery writes messages to the log instead of sending them. Used in
// development and tests.
type LogDelivery struct {
	logger *slog.Logger
}

func NewLogDelivery(logger *slog.Logger) *LogDelivery {
	return &LogDelivery{logger: logger.With("module", "email")}
}

func (d *LogDelivery) Send(ctx context.Context, message Message) (string, error) {
	deliveryID := uuid.New().String()

	d.logger.InfoContext(ctx, "delivering email",
		"delivery_id", deliveryID,
		"to", message.To,
		"subject", message.Subject,
		"template_id", message.TemplateID,
		"contact_id", message.ContactID,
	)

	return deliveryID, nil
}
