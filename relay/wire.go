package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"delivery-calendar/calendar"
	"delivery-calendar/outbox"
)

// ErrUnknownEventKind is returned when an outbox entry carries an event kind
// outside the closed domain set. Such entries are surfaced to operators
// instead of being silently skipped.
var ErrUnknownEventKind = errors.New("unknown outbox event kind")

// Message is a translated integration event ready for the broker. Key is the
// originating calendar id so consumers keyed by aggregate observe entries in
// publish order.
type Message struct {
	EntryID    uuid.UUID
	Kind       calendar.EventKind
	Key        string
	Payload    []byte
	OccurredAt time.Time
}

// Integration events published to other services. Each mirrors its domain
// event's fields plus the occurrence timestamp; consumers key idempotency on
// (calendarId, addressId, kind, date).

type CalendarCreatedEvent struct {
	CalendarID uuid.UUID     `json:"calendarId"`
	PatientID  uuid.UUID     `json:"patientId"`
	PlanID     uuid.UUID     `json:"planId"`
	StartDate  calendar.Date `json:"startDate"`
	EndDate    calendar.Date `json:"endDate"`
	OccurredAt time.Time     `json:"occurredAt"`
}

type AddressAddedEvent struct {
	CalendarID uuid.UUID     `json:"calendarId"`
	AddressID  uuid.UUID     `json:"addressId"`
	Date       calendar.Date `json:"date"`
	Address    string        `json:"address"`
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	OccurredAt time.Time     `json:"occurredAt"`
}

type AddressModifiedEvent struct {
	CalendarID   uuid.UUID     `json:"calendarId"`
	AddressID    uuid.UUID     `json:"addressId"`
	Date         calendar.Date `json:"date"`
	NewAddress   string        `json:"newAddress"`
	NewLatitude  float64       `json:"newLatitude"`
	NewLongitude float64       `json:"newLongitude"`
	OccurredAt   time.Time     `json:"occurredAt"`
}

type DeliveryCancelledEvent struct {
	CalendarID uuid.UUID     `json:"calendarId"`
	AddressID  uuid.UUID     `json:"addressId"`
	Date       calendar.Date `json:"date"`
	OccurredAt time.Time     `json:"occurredAt"`
}

type DeliveryReactivatedEvent struct {
	CalendarID uuid.UUID     `json:"calendarId"`
	AddressID  uuid.UUID     `json:"addressId"`
	Date       calendar.Date `json:"date"`
	OccurredAt time.Time     `json:"occurredAt"`
}

type CalendarDeactivatedEvent struct {
	CalendarID uuid.UUID     `json:"calendarId"`
	PatientID  uuid.UUID     `json:"patientId"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// Translate maps an outbox entry to its wire-level integration event. The
// switch is exhaustive over the closed event-kind set; any other kind fails
// with ErrUnknownEventKind.
func Translate(e *outbox.Entry) (*Message, error) {
	switch e.Kind {
	case calendar.KindCalendarCreated:
		var de calendar.CalendarCreated
		if err := json.Unmarshal(e.Payload, &de); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
		}
		return encode(e, de.CalendarID, CalendarCreatedEvent{
			CalendarID: de.CalendarID,
			PatientID:  de.PatientID,
			PlanID:     de.PlanID,
			StartDate:  de.StartDate,
			EndDate:    de.EndDate,
			OccurredAt: e.OccurredAt,
		})
	case calendar.KindAddressAdded:
		var de calendar.AddressAdded
		if err := json.Unmarshal(e.Payload, &de); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
		}
		return encode(e, de.CalendarID, AddressAddedEvent{
			CalendarID: de.CalendarID,
			AddressID:  de.AddressID,
			Date:       de.Date,
			Address:    de.Address,
			Latitude:   de.Latitude,
			Longitude:  de.Longitude,
			OccurredAt: e.OccurredAt,
		})
	case calendar.KindAddressModified:
		var de calendar.AddressModified
		if err := json.Unmarshal(e.Payload, &de); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
		}
		return encode(e, de.CalendarID, AddressModifiedEvent{
			CalendarID:   de.CalendarID,
			AddressID:    de.AddressID,
			Date:         de.Date,
			NewAddress:   de.NewAddress,
			NewLatitude:  de.NewLatitude,
			NewLongitude: de.NewLongitude,
			OccurredAt:   e.OccurredAt,
		})
	case calendar.KindDeliveryCancelled:
		var de calendar.DeliveryCancelled
		if err := json.Unmarshal(e.Payload, &de); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
		}
		return encode(e, de.CalendarID, DeliveryCancelledEvent{
			CalendarID: de.CalendarID,
			AddressID:  de.AddressID,
			Date:       de.Date,
			OccurredAt: e.OccurredAt,
		})
	case calendar.KindDeliveryReactivated:
		var de calendar.DeliveryReactivated
		if err := json.Unmarshal(e.Payload, &de); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
		}
		return encode(e, de.CalendarID, DeliveryReactivatedEvent{
			CalendarID: de.CalendarID,
			AddressID:  de.AddressID,
			Date:       de.Date,
			OccurredAt: e.OccurredAt,
		})
	case calendar.KindCalendarDeactivated:
		var de calendar.CalendarDeactivated
		if err := json.Unmarshal(e.Payload, &de); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
		}
		return encode(e, de.CalendarID, CalendarDeactivatedEvent{
			CalendarID: de.CalendarID,
			PatientID:  de.PatientID,
			OccurredAt: e.OccurredAt,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, e.Kind)
	}
}

func encode(e *outbox.Entry, calendarID uuid.UUID, event any) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding %s integration event: %w", e.Kind, err)
	}
	return &Message{
		EntryID:    e.ID,
		Kind:       e.Kind,
		Key:        calendarID.String(),
		Payload:    payload,
		OccurredAt: e.OccurredAt,
	}, nil
}
