package mailer

import (
	"context"
	"log"

	"github.com/indiehoy/discount-supervision/internal/model"
)

// Sender is the email transport collaborator. Implementations accept a
// fully rendered message and report a delivery status that is stored
// verbatim on the queue item. SMTP and provider integrations live
// outside this service.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (model.DeliveryStatus, error)
}

// LogSender is the default transport used in development and tests: it
// logs the message instead of delivering it and always reports sent.
type LogSender struct{}

// Send logs the outgoing message.
func (LogSender) Send(_ context.Context, to, subject, _ string) (model.DeliveryStatus, error) {
	log.Printf("mailer: send to=%s subject=%q", to, subject)
	return model.DeliverySent, nil
}
