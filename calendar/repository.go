package calendar

import (
	"context"

	"github.com/google/uuid"
)

// TxKey identifies the value under which a repository implementation expects
// to find the active transaction in the context.
type TxKey any

// Repository is the persistence boundary for delivery calendars. Save must
// persist the aggregate and the outbox entries captured from its raised
// events atomically, inside the unit of work carried by the context.
type Repository interface {
	// Load returns the calendar with the given id, or ErrCalendarNotFound.
	Load(ctx context.Context, id uuid.UUID) (*Calendar, error)

	// LoadByPatient returns the patient's active calendar, or
	// ErrCalendarNotFound.
	LoadByPatient(ctx context.Context, patientID uuid.UUID) (*Calendar, error)

	// ListActive returns every active calendar.
	ListActive(ctx context.Context) ([]*Calendar, error)

	// Save persists the aggregate state and captures its raised events into
	// the outbox within the transaction present in the context.
	Save(ctx context.Context, c *Calendar) error
}

// UnitOfWork demarcates an atomic persistence scope. Begin returns a context
// carrying the open transaction; Repository.Save and outbox appends executed
// under that context join it.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
