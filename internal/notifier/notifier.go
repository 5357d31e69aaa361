// Package notifier delivers trade and system notifications.
package notifier

import "context"

// Message is one notification. Text is plain text; the transport decides how
// to format it.
type Message struct {
	Title string
	Text  string
}

// Notifier delivers messages out of band. Delivery failures are the
// notifier's problem; callers fire and forget.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Noop drops every message. Used when no transport is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Message) error { return nil }
