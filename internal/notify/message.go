package notify

import (
	"context"
	"strings"
)

// Message is the envelope routed by the Dispatcher. Channel selects the
// Sender; Type selects the sender's delivery variant.
type Message struct {
	To      string `json:"to"`
	Content string `json:"content"`
	Channel string `json:"channel"`
	Type    string `json:"type,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Sender delivers one message over one transport. Implementations report
// failure through the return value and never panic or return errors.
type Sender interface {
	Deliver(ctx context.Context, m Message) bool
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) bool

func (f SenderFunc) Deliver(ctx context.Context, m Message) bool { return f(ctx, m) }

func (m Message) hasRecipientAndContent() bool {
	return strings.TrimSpace(m.To) != "" && m.Content != ""
}
