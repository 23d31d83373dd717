// Package outbox defines the durable record of raised domain events and the
// store contract the relay drains. Entries are written in the same
// transaction as the aggregate mutation that produced them (the
// transactional outbox pattern) and are marked processed, never deleted, so
// retention stays an operational concern.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"delivery-calendar/calendar"
)

// LockMaxDuration is the maximum lifetime of a relay claim on the outbox.
const LockMaxDuration = 15 * time.Second

// Entry is one raised domain event awaiting relay. An entry with a nil
// ProcessedAt is pending; once stamped it is terminal and excluded from
// future scans.
type Entry struct {
	ID          uuid.UUID
	Kind        calendar.EventKind
	Payload     []byte
	OccurredAt  time.Time
	ProcessedAt *time.Time
}

// Pending reports whether the entry still awaits a successful publish.
func (e *Entry) Pending() bool { return e.ProcessedAt == nil }

// Capture serializes every event raised by the calendar since its last
// persistence into one entry each and clears the aggregate's buffer. The
// caller must persist the returned entries in the same transaction as the
// aggregate row write.
func Capture(c *calendar.Calendar, now time.Time) ([]*Entry, error) {
	events := c.Events()
	if len(events) == 0 {
		return nil, nil
	}
	entries := make([]*Entry, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("serializing %s event: %w", e.Kind(), err)
		}
		entries = append(entries, &Entry{
			ID:         uuid.New(),
			Kind:       e.Kind(),
			Payload:    payload,
			OccurredAt: now,
		})
	}
	c.ClearEvents()
	return entries, nil
}

// Store manages outbox entries in durable storage. Append joins the business
// transaction carried by the context; the scan and stamp operations run in
// their own transactions on behalf of the relay.
type Store interface {
	// Append persists entries within the transaction present in the context.
	Append(ctx context.Context, entries []*Entry) error

	// FindPending returns up to limit pending entries ordered by occurrence
	// timestamp ascending, oldest first.
	FindPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkProcessed stamps the processed timestamp on the given entries in
	// one write.
	MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error

	// AcquireLock claims the outbox for a relay instance using optimistic
	// locking, so concurrent replicas do not scan the same pending rows.
	AcquireLock(relayID uuid.UUID) (bool, error)

	// ReleaseLock releases a claim obtained with AcquireLock.
	ReleaseLock(relayID uuid.UUID) error
}
