package gorm

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"delivery-calendar/calendar"
	"delivery-calendar/outbox"
)

// scanner abstracts *sql.Rows for row mapping.
type scanner interface {
	Scan(dest ...any) error
}

type calendarRow struct {
	id        uuid.UUID
	patientID uuid.UUID
	planID    uuid.UUID
	startDate time.Time
	endDate   time.Time
	active    bool
	createdAt time.Time
}

func (cr *calendarRow) scan(row scanner) error {
	return row.Scan(&cr.id, &cr.patientID, &cr.planID, &cr.startDate, &cr.endDate, &cr.active, &cr.createdAt)
}

func (cr *calendarRow) rehydrate(addresses []*calendar.Address) *calendar.Calendar {
	return calendar.Rehydrate(cr.id, cr.patientID, cr.planID,
		calendar.DateOf(cr.startDate), calendar.DateOf(cr.endDate), cr.active, cr.createdAt, addresses)
}

type addressRow struct {
	id           uuid.UUID
	calendarID   uuid.UUID
	date         time.Time
	address      string
	notes        string
	latitude     float64
	longitude    float64
	active       bool
	createdAt    time.Time
	lastModified sql.NullTime
}

func (ar *addressRow) scan(row scanner) error {
	return row.Scan(&ar.id, &ar.calendarID, &ar.date, &ar.address, &ar.notes,
		&ar.latitude, &ar.longitude, &ar.active, &ar.createdAt, &ar.lastModified)
}

func (ar *addressRow) rehydrate() *calendar.Address {
	var lastModified *time.Time
	if ar.lastModified.Valid {
		modified := ar.lastModified.Time
		lastModified = &modified
	}
	return calendar.RehydrateAddress(ar.id, ar.calendarID, calendar.DateOf(ar.date),
		ar.address, ar.notes, calendar.Latitude(ar.latitude), calendar.Longitude(ar.longitude),
		ar.active, ar.createdAt, lastModified)
}

type outboxRow struct {
	id          uuid.UUID
	kind        string
	payload     []byte
	occurredAt  time.Time
	processedAt sql.NullTime
}

func (er *outboxRow) scan(row scanner) error {
	return row.Scan(&er.id, &er.kind, &er.payload, &er.occurredAt, &er.processedAt)
}

func (er *outboxRow) entry() *outbox.Entry {
	e := &outbox.Entry{
		ID:         er.id,
		Kind:       calendar.EventKind(er.kind),
		Payload:    er.payload,
		OccurredAt: er.occurredAt,
	}
	if er.processedAt.Valid {
		processed := er.processedAt.Time
		e.ProcessedAt = &processed
	}
	return e
}

type outboxLock struct {
	ID          int
	Locked      bool
	LockedBy    uuid.UUID
	LockedAt    sql.NullTime
	LockedUntil sql.NullTime
	Version     int64
}

func (o *outboxLock) String() string {
	return fmt.Sprintf("{locked=%t, lockedBy=%v, lockedAt=%v, lockedUntil=%v, version=%d}",
		o.Locked,
		o.LockedBy,
		o.LockedAt,
		o.LockedUntil,
		o.Version)
}
