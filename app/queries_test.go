package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-calendar/calendar"
)

func seedCalendarWithAddresses(t *testing.T, repo *fakeRepo) *calendar.Calendar {
	t.Helper()
	cal := seedCalendar(t, repo)
	created := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	lat, err := calendar.NewLatitude(40.4)
	require.NoError(t, err)
	lon, err := calendar.NewLongitude(-3.7)
	require.NoError(t, err)
	for _, day := range []int{3, 6, 9} {
		_, err := cal.AddAddress(created, calendar.NewDate(2025, time.February, day), "123 Main St", "", lat, lon)
		require.NoError(t, err)
	}
	require.NoError(t, cal.MarkNonDelivery(created, calendar.NewDate(2025, time.February, 6)))
	cal.ClearEvents()
	return cal
}

func TestGetCalendar(t *testing.T) {
	repo := newFakeRepo()
	cal := seedCalendarWithAddresses(t, repo)
	q := NewQueryService(repo, WithQueryClock(fixedClock(calendar.NewDate(2025, time.February, 4))))

	view, err := q.GetCalendar(context.Background(), cal.ID())
	require.NoError(t, err)
	assert.Equal(t, cal.ID(), view.ID)
	assert.Equal(t, cal.PatientID(), view.PatientID)
	assert.True(t, view.Active)
	require.Len(t, view.Addresses, 3)

	// Feb 3 is past and Feb 6 is cancelled; 2 settled days out of 15.
	assert.Equal(t, 100*2/15, view.CompletionPercentage)

	byDate := map[string]AddressView{}
	for _, a := range view.Addresses {
		byDate[a.Date.String()] = a
	}
	assert.False(t, byDate["2025-02-06"].Active)
	assert.Equal(t, 5, byDate["2025-02-09"].DaysRemaining)

	_, err = q.GetCalendar(context.Background(), uuid.New())
	assert.ErrorIs(t, err, calendar.ErrCalendarNotFound)
}

func TestGetCalendarByPatient(t *testing.T) {
	repo := newFakeRepo()
	cal := seedCalendarWithAddresses(t, repo)
	q := NewQueryService(repo, WithQueryClock(fixedClock(calendar.NewDate(2025, time.February, 1))))

	view, err := q.GetCalendarByPatient(context.Background(), cal.PatientID())
	require.NoError(t, err)
	assert.Equal(t, cal.ID(), view.ID)

	_, err = q.GetCalendarByPatient(context.Background(), uuid.New())
	assert.ErrorIs(t, err, calendar.ErrCalendarNotFound)
}

func TestListCalendars(t *testing.T) {
	repo := newFakeRepo()
	active := seedCalendarWithAddresses(t, repo)
	inactive := seedCalendar(t, repo)
	require.NoError(t, inactive.Deactivate())
	q := NewQueryService(repo, WithQueryClock(fixedClock(calendar.NewDate(2025, time.February, 1))))

	views, err := q.ListCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, active.ID(), views[0].ID)
}

func TestActiveAddressesQuery(t *testing.T) {
	repo := newFakeRepo()
	cal := seedCalendarWithAddresses(t, repo)
	q := NewQueryService(repo, WithQueryClock(fixedClock(calendar.NewDate(2025, time.February, 4))))

	views, err := q.ActiveAddresses(context.Background(), cal.ID())
	require.NoError(t, err)
	// Feb 3 is past, Feb 6 cancelled; only Feb 9 remains.
	require.Len(t, views, 1)
	assert.Equal(t, calendar.NewDate(2025, time.February, 9), views[0].Date)
	assert.Equal(t, 5, views[0].DaysRemaining)
}

func TestNextDeliveryQuery(t *testing.T) {
	repo := newFakeRepo()
	cal := seedCalendarWithAddresses(t, repo)

	t.Run("returns the earliest upcoming active address", func(t *testing.T) {
		q := NewQueryService(repo, WithQueryClock(fixedClock(calendar.NewDate(2025, time.February, 1))))
		view, err := q.NextDelivery(context.Background(), cal.ID())
		require.NoError(t, err)
		require.NotNil(t, view)
		assert.Equal(t, calendar.NewDate(2025, time.February, 3), view.Date)
		assert.Equal(t, 2, view.DaysRemaining)
	})

	t.Run("returns nil past the last delivery", func(t *testing.T) {
		q := NewQueryService(repo, WithQueryClock(fixedClock(calendar.NewDate(2025, time.February, 10))))
		view, err := q.NextDelivery(context.Background(), cal.ID())
		require.NoError(t, err)
		assert.Nil(t, view)
	})
}
