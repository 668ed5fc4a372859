package memstoretest

import (
	"context"
	"sync"

	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
)

type Email struct {
	Template   string
	Recipients []string
	Data       map[string]interface{}
}

type SMS struct {
	To   string
	Body string
}

type Message struct {
	Topic   string
	Key     string
	Message []byte
}

// Outbox records everything handed to it as a notification.Notifier and as
// a pubsub.Publisher. FailEmailsTo makes sends to that recipient fail.
type Outbox struct {
	mu       sync.Mutex
	emails   []Email
	sms      []SMS
	messages []Message

	FailEmailsTo string
	FailErr      error
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) SendEmail(ctx context.Context, template string, recipients []string, data map[string]interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, r := range recipients {
		if o.FailEmailsTo != "" && r == o.FailEmailsTo {
			return o.FailErr
		}
	}

	o.emails = append(o.emails, Email{Template: template, Recipients: recipients, Data: data})
	return nil
}

func (o *Outbox) SendSMS(ctx context.Context, to string, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sms = append(o.sms, SMS{To: to, Body: body})
	return nil
}

func (o *Outbox) Publish(ctx context.Context, topic string, key string, headers map[string]string, message []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.messages = append(o.messages, Message{Topic: topic, Key: key, Message: message})
	return nil
}

func (o *Outbox) Close() error { return nil }

func (o *Outbox) Emails(template string) []Email {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Email, 0)
	for _, e := range o.emails {
		if template == "" || e.Template == template {
			out = append(out, e)
		}
	}
	return out
}

func (o *Outbox) SMS() []SMS {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SMS(nil), o.sms...)
}

func (o *Outbox) Messages(topic string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Message, 0)
	for _, m := range o.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emails, o.sms, o.messages = nil, nil, nil
}

var _ notification.Notifier = (*Outbox)(nil)
