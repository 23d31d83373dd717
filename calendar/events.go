package calendar

import "github.com/google/uuid"

// EventKind tags every domain event variant. The set is closed: the outbox
// relay switches exhaustively over these values when building integration
// events.
type EventKind string

const (
	KindCalendarCreated     EventKind = "CalendarCreated"
	KindAddressAdded        EventKind = "AddressAdded"
	KindAddressModified     EventKind = "AddressModified"
	KindDeliveryCancelled   EventKind = "DeliveryCancelled"
	KindDeliveryReactivated EventKind = "DeliveryReactivated"
	KindCalendarDeactivated EventKind = "CalendarDeactivated"
)

// Event is a fact raised by a calendar mutation. Events are immutable once
// raised and carry just enough data to build the external notification.
type Event interface {
	Kind() EventKind
}

// CalendarCreated is raised when a new delivery calendar is created.
type CalendarCreated struct {
	CalendarID uuid.UUID `json:"calendarId"`
	PatientID  uuid.UUID `json:"patientId"`
	PlanID     uuid.UUID `json:"planId"`
	StartDate  Date      `json:"startDate"`
	EndDate    Date      `json:"endDate"`
}

// AddressAdded is raised when a delivery address is registered for a day.
type AddressAdded struct {
	CalendarID uuid.UUID `json:"calendarId"`
	AddressID  uuid.UUID `json:"addressId"`
	Date       Date      `json:"date"`
	Address    string    `json:"address"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
}

// AddressModified is raised when a day's delivery address changes.
type AddressModified struct {
	CalendarID   uuid.UUID `json:"calendarId"`
	AddressID    uuid.UUID `json:"addressId"`
	Date         Date      `json:"date"`
	NewAddress   string    `json:"newAddress"`
	NewLatitude  float64   `json:"newLatitude"`
	NewLongitude float64   `json:"newLongitude"`
}

// DeliveryCancelled is raised when a day is marked as non-delivery.
type DeliveryCancelled struct {
	CalendarID uuid.UUID `json:"calendarId"`
	AddressID  uuid.UUID `json:"addressId"`
	Date       Date      `json:"date"`
}

// DeliveryReactivated is raised when a cancelled day is reactivated.
type DeliveryReactivated struct {
	CalendarID uuid.UUID `json:"calendarId"`
	AddressID  uuid.UUID `json:"addressId"`
	Date       Date      `json:"date"`
}

// CalendarDeactivated is raised when the whole calendar is deactivated.
type CalendarDeactivated struct {
	CalendarID uuid.UUID `json:"calendarId"`
	PatientID  uuid.UUID `json:"patientId"`
}

func (CalendarCreated) Kind() EventKind     { return KindCalendarCreated }
func (AddressAdded) Kind() EventKind        { return KindAddressAdded }
func (AddressModified) Kind() EventKind     { return KindAddressModified }
func (DeliveryCancelled) Kind() EventKind   { return KindDeliveryCancelled }
func (DeliveryReactivated) Kind() EventKind { return KindDeliveryReactivated }
func (CalendarDeactivated) Kind() EventKind { return KindCalendarDeactivated }
