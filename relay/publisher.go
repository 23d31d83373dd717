package relay

import "context"

// Publisher delivers a translated integration event to the message broker.
// Implementations must not return until the broker has acknowledged (or
// rejected) the message, so the relay can decide whether to stamp the entry.
type Publisher interface {
	Publish(ctx context.Context, m *Message) error
}
