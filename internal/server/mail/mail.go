// Package mail dispatches outbound email. The core only hands messages to a
// Dispatcher; rendering and delivery belong to the adapter.
package mail

import (
	"context"
	"errors"
	"sync"
)

// Message is one outbound email. When Templated is set HTMLBody holds a
// template name understood by the delivery service rather than markup.
type Message struct {
	Subject     string
	HTMLBody    string
	Recipient   string
	DisplayName string
	Templated   bool
}

// Dispatcher sends messages. A returned error means the message was not
// accepted for delivery.
type Dispatcher interface {
	Send(ctx context.Context, m Message) error
}

// ErrNoRecipient is returned for messages without a recipient.
var ErrNoRecipient = errors.New("message has no recipient")

// Outbox is an in-process Dispatcher that records messages instead of
// sending them. It backs local runs without an SMTP relay and tests.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func NewOutbox() *Outbox { return &Outbox{} }

func (o *Outbox) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Recipient == "" {
		return ErrNoRecipient
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.sent = append(o.sent, m)
	return nil
}

// Sent returns a copy of the recorded messages.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}

// Last returns the most recent message sent to recipient.
func (o *Outbox) Last(recipient string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Recipient == recipient {
			return o.sent[i], true
		}
	}
	return Message{}, false
}
