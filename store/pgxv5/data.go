package pgxv5

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"delivery-calendar/calendar"
)

type calendarRow struct {
	id        uuid.UUID
	patientID uuid.UUID
	planID    uuid.UUID
	startDate time.Time
	endDate   time.Time
	active    bool
	createdAt time.Time
}

func (cr *calendarRow) scan(row pgx.Row) error {
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
	lastModified *time.Time
}

func (ar *addressRow) scan(row pgx.Row) error {
	return row.Scan(&ar.id, &ar.calendarID, &ar.date, &ar.address, &ar.notes,
		&ar.latitude, &ar.longitude, &ar.active, &ar.createdAt, &ar.lastModified)
}

func (ar *addressRow) rehydrate() *calendar.Address {
	return calendar.RehydrateAddress(ar.id, ar.calendarID, calendar.DateOf(ar.date),
		ar.address, ar.notes, calendar.Latitude(ar.latitude), calendar.Longitude(ar.longitude),
		ar.active, ar.createdAt, ar.lastModified)
}

type outboxLock struct {
	id          int
	locked      bool
	lockedBy    pgtype.UUID
	lockedAt    pgtype.Timestamptz
	lockedUntil pgtype.Timestamptz
	version     int64
}

func (o *outboxLock) String() string {
	return fmt.Sprintf("{locked=%t, lockedBy=%v, lockedAt=%v, lockedUntil=%v, version=%d}",
		o.locked,
		o.lockedBy,
		o.lockedAt,
		o.lockedUntil,
		o.version)
}
