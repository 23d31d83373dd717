// Package calendar implements the delivery calendar aggregate: a bounded
// date window of per-day delivery addresses for a patient's meal plan. All
// invariants are enforced by the aggregate's own operations, and every
// mutation raises a domain event into an instance-owned buffer that the
// persistence boundary drains into the outbox.
package calendar

import (
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Calendar is the aggregate root for a patient's delivery schedule.
type Calendar struct {
	id        uuid.UUID
	patientID uuid.UUID
	planID    uuid.UUID
	startDate Date
	endDate   Date
	active    bool
	createdAt time.Time
	addresses []*Address
	events    []Event
}

// NewCalendar creates a calendar covering the inclusive [start, end] range.
// It fails with ErrInvalidDateRange unless end is strictly after start, and
// raises CalendarCreated.
func NewCalendar(now time.Time, patientID, planID uuid.UUID, start, end Date) (*Calendar, error) {
	if !end.After(start) {
		return nil, ErrInvalidDateRange
	}
	c := &Calendar{
		id:        uuid.New(),
		patientID: patientID,
		planID:    planID,
		startDate: start,
		endDate:   end,
		active:    true,
		createdAt: now,
	}
	c.raise(CalendarCreated{
		CalendarID: c.id,
		PatientID:  patientID,
		PlanID:     planID,
		StartDate:  start,
		EndDate:    end,
	})
	return c, nil
}

// Rehydrate rebuilds a Calendar from persisted state. It is intended for
// repository implementations only and performs no validation.
func Rehydrate(id, patientID, planID uuid.UUID, start, end Date, active bool, createdAt time.Time, addresses []*Address) *Calendar {
	return &Calendar{
		id:        id,
		patientID: patientID,
		planID:    planID,
		startDate: start,
		endDate:   end,
		active:    active,
		createdAt: createdAt,
		addresses: addresses,
	}
}

func (c *Calendar) ID() uuid.UUID        { return c.id }
func (c *Calendar) PatientID() uuid.UUID { return c.patientID }
func (c *Calendar) PlanID() uuid.UUID    { return c.planID }
func (c *Calendar) StartDate() Date      { return c.startDate }
func (c *Calendar) EndDate() Date        { return c.endDate }
func (c *Calendar) Active() bool         { return c.active }
func (c *Calendar) CreatedAt() time.Time { return c.createdAt }

// Addresses returns the calendar's addresses in insertion order.
func (c *Calendar) Addresses() []*Address {
	return slices.Clone(c.addresses)
}

// AddAddress registers a delivery address for a day inside the calendar
// range. At most one address may exist per date. Raises AddressAdded.
func (c *Calendar) AddAddress(now time.Time, date Date, text, notes string, lat Latitude, lon Longitude) (*Address, error) {
	if date.Before(c.startDate) || date.After(c.endDate) {
		return nil, ErrDateOutOfRange
	}
	if c.AddressOn(date) != nil {
		return nil, ErrDuplicateDate
	}
	addr, err := newAddress(now, c.id, date, text, notes, lat, lon)
	if err != nil {
		return nil, err
	}
	c.addresses = append(c.addresses, addr)
	c.raise(AddressAdded{
		CalendarID: c.id,
		AddressID:  addr.id,
		Date:       date,
		Address:    text,
		Latitude:   lat.Float64(),
		Longitude:  lon.Float64(),
	})
	return addr, nil
}

// ModifyAddress replaces the delivery details of an existing day, subject to
// the notice window. Raises AddressModified.
func (c *Calendar) ModifyAddress(now time.Time, date Date, text, notes string, lat Latitude, lon Longitude) error {
	addr := c.AddressOn(date)
	if addr == nil {
		return ErrAddressNotFound
	}
	if err := addr.modify(now, text, notes, lat, lon); err != nil {
		return err
	}
	c.raise(AddressModified{
		CalendarID:   c.id,
		AddressID:    addr.id,
		Date:         date,
		NewAddress:   text,
		NewLatitude:  lat.Float64(),
		NewLongitude: lon.Float64(),
	})
	return nil
}

// MarkNonDelivery flags a day as non-delivery, subject to the notice window.
// Raises DeliveryCancelled.
func (c *Calendar) MarkNonDelivery(now time.Time, date Date) error {
	addr := c.AddressOn(date)
	if addr == nil {
		return ErrAddressNotFound
	}
	if err := addr.markInactive(now); err != nil {
		return err
	}
	c.raise(DeliveryCancelled{CalendarID: c.id, AddressID: addr.id, Date: date})
	return nil
}

// ReactivateDelivery re-enables a previously cancelled day, subject to the
// notice window. Raises DeliveryReactivated.
func (c *Calendar) ReactivateDelivery(now time.Time, date Date) error {
	addr := c.AddressOn(date)
	if addr == nil {
		return ErrAddressNotFound
	}
	if err := addr.reactivate(now); err != nil {
		return err
	}
	c.raise(DeliveryReactivated{CalendarID: c.id, AddressID: addr.id, Date: date})
	return nil
}

// Deactivate turns the calendar off. Deactivation is terminal: a calendar is
// never hard-deleted, and deactivating an already-inactive calendar fails
// with ErrAlreadyDeactivated. Raises CalendarDeactivated.
func (c *Calendar) Deactivate() error {
	if !c.active {
		return ErrAlreadyDeactivated
	}
	c.active = false
	c.raise(CalendarDeactivated{CalendarID: c.id, PatientID: c.patientID})
	return nil
}

// AddressOn returns the address registered for a date, or nil.
func (c *Calendar) AddressOn(date Date) *Address {
	for _, a := range c.addresses {
		if a.date.Equal(date) {
			return a
		}
	}
	return nil
}

// ActiveAddressesFrom yields the active addresses with date >= from, ordered
// ascending by date. The sequence is computed lazily and can be ranged over
// more than once.
func (c *Calendar) ActiveAddressesFrom(from Date) iter.Seq[*Address] {
	return func(yield func(*Address) bool) {
		sorted := slices.Clone(c.addresses)
		slices.SortStableFunc(sorted, func(a, b *Address) int {
			return a.date.Time().Compare(b.date.Time())
		})
		for _, a := range sorted {
			if a.active && !a.date.Before(from) {
				if !yield(a) {
					return
				}
			}
		}
	}
}

// NextDelivery returns the earliest active address on or after today, or nil
// when there is none.
func (c *Calendar) NextDelivery(today Date) *Address {
	for a := range c.ActiveAddressesFrom(today) {
		return a
	}
	return nil
}

// CompletionPercentage reports how much of the calendar range is already
// settled: days whose delivery was cancelled plus days already in the past,
// as an integer percentage of the total days in range.
func (c *Calendar) CompletionPercentage(today Date) int {
	totalDays := c.startDate.DaysUntil(c.endDate) + 1
	if totalDays <= 0 {
		return 0
	}
	settled := 0
	for _, a := range c.addresses {
		if !a.active || a.date.Before(today) {
			settled++
		}
	}
	return settled * 100 / totalDays
}

// Events returns the domain events raised since the last ClearEvents call.
func (c *Calendar) Events() []Event {
	return slices.Clone(c.events)
}

// ClearEvents empties the event buffer. The persistence boundary calls it
// after capturing the events into outbox entries within the same
// transaction.
func (c *Calendar) ClearEvents() {
	c.events = nil
}

func (c *Calendar) raise(e Event) {
	c.events = append(c.events, e)
}
