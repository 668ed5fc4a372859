package notification

import (
	"context"
	"encoding/json"

	"github.com/fuegoaustral/ticketera-sub000/pkg/pubsub"
	"github.com/sirupsen/logrus"
)

const (
	TopicEmail = "notification-email"
	TopicSMS   = "notification-sms"
)

// Email templates rendered by the notification service.
const (
	TemplateOrderConfirmed       = "order_confirmed"
	TemplateTransferInvitation   = "transfer_invitation"
	TemplateTransferReceived     = "transfer_received"
	TemplateTransferCompleted    = "transfer_completed"
	TemplateInvitationReminder   = "transfer_invitation_reminder"
	TemplateSenderReminder       = "transfer_sender_reminder"
	TemplateUnsharedTicketRemind = "unshared_ticket_reminder"
)

// Notifier hands messages to the notification service. A nil error means
// "accepted for send", nothing more; duplicate suppression is the caller's
// job.
type Notifier interface {
	SendEmail(ctx context.Context, template string, recipients []string, data map[string]interface{}) error
	SendSMS(ctx context.Context, to string, body string) error
}

type EmailMessage struct {
	Template   string                 `json:"template"`
	Recipients []string               `json:"recipients"`
	Context    map[string]interface{} `json:"context"`
}

type SMSMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type publisherNotifier struct {
	logger    *logrus.Logger
	publisher pubsub.Publisher
}

func NewPublisherNotifier(logger *logrus.Logger, publisher pubsub.Publisher) Notifier {
	return &publisherNotifier{
		logger:    logger,
		publisher: publisher,
	}
}

func (n *publisherNotifier) SendEmail(ctx context.Context, template string, recipients []string, data map[string]interface{}) error {
	buff, err := json.Marshal(EmailMessage{Template: template, Recipients: recipients, Context: data})
	if err != nil {
		n.logger.WithContext(ctx).WithError(err).Error()
		return err
	}

	var key string
	if len(recipients) > 0 {
		key = recipients[0]
	}

	return n.publisher.Publish(ctx, TopicEmail, key, map[string]string{"template": template}, buff)
}

func (n *publisherNotifier) SendSMS(ctx context.Context, to string, body string) error {
	buff, err := json.Marshal(SMSMessage{To: to, Body: body})
	if err != nil {
		n.logger.WithContext(ctx).WithError(err).Error()
		return err
	}

	return n.publisher.Publish(ctx, TopicSMS, to, nil, buff)
}
