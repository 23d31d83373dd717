package calendar

import (
	"time"

	"github.com/google/uuid"
)

// MinNoticeDays is the minimum number of whole days that must remain before
// a delivery for its details to be changed.
const MinNoticeDays = 2

// Address is one calendar day's delivery address. It is owned exclusively by
// its Calendar and is only ever mutated through the aggregate's operations.
type Address struct {
	id           uuid.UUID
	calendarID   uuid.UUID
	date         Date
	text         string
	notes        string
	latitude     Latitude
	longitude    Longitude
	active       bool
	createdAt    time.Time
	lastModified *time.Time
}

func newAddress(now time.Time, calendarID uuid.UUID, date Date, text, notes string, lat Latitude, lon Longitude) (*Address, error) {
	if text == "" {
		return nil, ErrEmptyAddress
	}
	return &Address{
		id:         uuid.New(),
		calendarID: calendarID,
		date:       date,
		text:       text,
		notes:      notes,
		latitude:   lat,
		longitude:  lon,
		active:     true,
		createdAt:  now,
	}, nil
}

// RehydrateAddress rebuilds an Address from persisted state. It is intended
// for repository implementations only and performs no validation.
func RehydrateAddress(id, calendarID uuid.UUID, date Date, text, notes string, lat Latitude, lon Longitude, active bool, createdAt time.Time, lastModified *time.Time) *Address {
	return &Address{
		id:           id,
		calendarID:   calendarID,
		date:         date,
		text:         text,
		notes:        notes,
		latitude:     lat,
		longitude:    lon,
		active:       active,
		createdAt:    createdAt,
		lastModified: lastModified,
	}
}

func (a *Address) ID() uuid.UUID            { return a.id }
func (a *Address) CalendarID() uuid.UUID    { return a.calendarID }
func (a *Address) Date() Date               { return a.date }
func (a *Address) Text() string             { return a.text }
func (a *Address) Notes() string            { return a.notes }
func (a *Address) Latitude() Latitude       { return a.latitude }
func (a *Address) Longitude() Longitude     { return a.longitude }
func (a *Address) Active() bool             { return a.active }
func (a *Address) CreatedAt() time.Time     { return a.createdAt }
func (a *Address) LastModified() *time.Time { return a.lastModified }

// DaysRemaining returns the whole days from today until the delivery date.
// It is negative for past dates; no clamping is applied.
func (a *Address) DaysRemaining(today Date) int {
	return today.DaysUntil(a.date)
}

// modify replaces the address details. It fails when the notice window has
// already closed.
func (a *Address) modify(now time.Time, text, notes string, lat Latitude, lon Longitude) error {
	if err := a.checkNoticeWindow(now); err != nil {
		return err
	}
	if text == "" {
		return ErrEmptyAddress
	}
	a.text = text
	a.notes = notes
	a.latitude = lat
	a.longitude = lon
	a.stampModified(now)
	return nil
}

// markInactive flags the day as non-delivery, subject to the notice window.
func (a *Address) markInactive(now time.Time) error {
	if err := a.checkNoticeWindow(now); err != nil {
		return err
	}
	a.active = false
	a.stampModified(now)
	return nil
}

// reactivate re-enables delivery for the day, subject to the notice window.
func (a *Address) reactivate(now time.Time) error {
	if err := a.checkNoticeWindow(now); err != nil {
		return err
	}
	a.active = true
	a.stampModified(now)
	return nil
}

func (a *Address) checkNoticeWindow(now time.Time) error {
	if a.DaysRemaining(DateOf(now)) < MinNoticeDays {
		return ErrNoticeWindow
	}
	return nil
}

func (a *Address) stampModified(now time.Time) {
	modified := now
	a.lastModified = &modified
}
