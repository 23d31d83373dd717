package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-calendar/calendar"
	"delivery-calendar/outbox"
)

func entryFor(t *testing.T, event calendar.Event, occurredAt time.Time) *outbox.Entry {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return &outbox.Entry{
		ID:         uuid.New(),
		Kind:       event.Kind(),
		Payload:    payload,
		OccurredAt: occurredAt,
	}
}

func TestTranslate(t *testing.T) {
	calendarID := uuid.New()
	addressID := uuid.New()
	occurredAt := time.Date(2025, time.February, 1, 10, 0, 0, 0, time.UTC)
	date := calendar.NewDate(2025, time.February, 5)

	testcases := []struct {
		name   string
		event  calendar.Event
		decode func(t *testing.T, payload []byte)
	}{
		{
			name: "calendar created",
			event: calendar.CalendarCreated{
				CalendarID: calendarID,
				PatientID:  uuid.New(),
				PlanID:     uuid.New(),
				StartDate:  calendar.NewDate(2025, time.February, 1),
				EndDate:    calendar.NewDate(2025, time.February, 15),
			},
			decode: func(t *testing.T, payload []byte) {
				var ie CalendarCreatedEvent
				require.NoError(t, json.Unmarshal(payload, &ie))
				assert.Equal(t, calendarID, ie.CalendarID)
				assert.Equal(t, calendar.NewDate(2025, time.February, 1), ie.StartDate)
				assert.Equal(t, occurredAt, ie.OccurredAt)
			},
		},
		{
			name: "address added",
			event: calendar.AddressAdded{
				CalendarID: calendarID,
				AddressID:  addressID,
				Date:       date,
				Address:    "123 Main St",
				Latitude:   40.4,
				Longitude:  -3.7,
			},
			decode: func(t *testing.T, payload []byte) {
				var ie AddressAddedEvent
				require.NoError(t, json.Unmarshal(payload, &ie))
				assert.Equal(t, addressID, ie.AddressID)
				assert.Equal(t, "123 Main St", ie.Address)
				assert.Equal(t, 40.4, ie.Latitude)
				assert.Equal(t, occurredAt, ie.OccurredAt)
			},
		},
		{
			name: "address modified",
			event: calendar.AddressModified{
				CalendarID:   calendarID,
				AddressID:    addressID,
				Date:         date,
				NewAddress:   "456 Oak Ave",
				NewLatitude:  41.0,
				NewLongitude: -4.0,
			},
			decode: func(t *testing.T, payload []byte) {
				var ie AddressModifiedEvent
				require.NoError(t, json.Unmarshal(payload, &ie))
				assert.Equal(t, "456 Oak Ave", ie.NewAddress)
				assert.Equal(t, date, ie.Date)
			},
		},
		{
			name:  "delivery cancelled",
			event: calendar.DeliveryCancelled{CalendarID: calendarID, AddressID: addressID, Date: date},
			decode: func(t *testing.T, payload []byte) {
				var ie DeliveryCancelledEvent
				require.NoError(t, json.Unmarshal(payload, &ie))
				assert.Equal(t, date, ie.Date)
			},
		},
		{
			name:  "delivery reactivated",
			event: calendar.DeliveryReactivated{CalendarID: calendarID, AddressID: addressID, Date: date},
			decode: func(t *testing.T, payload []byte) {
				var ie DeliveryReactivatedEvent
				require.NoError(t, json.Unmarshal(payload, &ie))
				assert.Equal(t, addressID, ie.AddressID)
			},
		},
		{
			name:  "calendar deactivated",
			event: calendar.CalendarDeactivated{CalendarID: calendarID, PatientID: uuid.New()},
			decode: func(t *testing.T, payload []byte) {
				var ie CalendarDeactivatedEvent
				require.NoError(t, json.Unmarshal(payload, &ie))
				assert.Equal(t, calendarID, ie.CalendarID)
			},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			entry := entryFor(t, tc.event, occurredAt)

			msg, err := Translate(entry)
			require.NoError(t, err)
			assert.Equal(t, entry.ID, msg.EntryID)
			assert.Equal(t, entry.Kind, msg.Kind)
			assert.Equal(t, calendarID.String(), msg.Key)
			assert.Equal(t, occurredAt, msg.OccurredAt)
			tc.decode(t, msg.Payload)
		})
	}
}

func TestTranslateUnknownKind(t *testing.T) {
	entry := &outbox.Entry{
		ID:      uuid.New(),
		Kind:    "MealPlanShredded",
		Payload: []byte(`{}`),
	}

	msg, err := Translate(entry)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrUnknownEventKind)
}

func TestTranslateMalformedPayload(t *testing.T) {
	entry := &outbox.Entry{
		ID:      uuid.New(),
		Kind:    calendar.KindCalendarCreated,
		Payload: []byte(`{not json`),
	}

	_, err := Translate(entry)
	assert.Error(t, err)
}
