package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"delivery-calendar/calendar"
)

// AddressView is the read-only projection of one day's delivery address.
type AddressView struct {
	ID            uuid.UUID     `json:"id"`
	Date          calendar.Date `json:"date"`
	Address       string        `json:"address"`
	Notes         string        `json:"notes"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	Active        bool          `json:"active"`
	DaysRemaining int           `json:"daysRemaining"`
}

// CalendarView is the read-only projection of a delivery calendar.
type CalendarView struct {
	ID                   uuid.UUID     `json:"id"`
	PatientID            uuid.UUID     `json:"patientId"`
	PlanID               uuid.UUID     `json:"planId"`
	StartDate            calendar.Date `json:"startDate"`
	EndDate              calendar.Date `json:"endDate"`
	Active               bool          `json:"active"`
	CompletionPercentage int           `json:"completionPercentage"`
	Addresses            []AddressView `json:"addresses"`
}

// QueryService serves read-only calendar projections. It has no side
// effects.
type QueryService struct {
	repo calendar.Repository
	now  func() time.Time
}

// qopt allows optional query service configuration.
type qopt func(q *QueryService)

// WithQueryClock overrides the wall clock, mostly for tests.
func WithQueryClock(now func() time.Time) qopt {
	return func(q *QueryService) {
		if now != nil {
			q.now = now
		}
	}
}

// NewQueryService creates the query service over the persistence boundary.
func NewQueryService(repo calendar.Repository, options ...qopt) *QueryService {
	if repo == nil {
		panic("you must provide a repository")
	}
	q := &QueryService{repo: repo, now: time.Now}
	for _, o := range options {
		o(q)
	}
	return q
}

// GetCalendar returns the full projection of a calendar.
func (q *QueryService) GetCalendar(ctx context.Context, calendarID uuid.UUID) (*CalendarView, error) {
	cal, err := q.repo.Load(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return q.project(cal), nil
}

// GetCalendarByPatient returns the projection of a patient's active
// calendar.
func (q *QueryService) GetCalendarByPatient(ctx context.Context, patientID uuid.UUID) (*CalendarView, error) {
	cal, err := q.repo.LoadByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return q.project(cal), nil
}

// ListCalendars returns the projections of every active calendar.
func (q *QueryService) ListCalendars(ctx context.Context) ([]*CalendarView, error) {
	cals, err := q.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*CalendarView, 0, len(cals))
	for _, cal := range cals {
		views = append(views, q.project(cal))
	}
	return views, nil
}

// ActiveAddresses returns the calendar's upcoming active addresses, ordered
// ascending by date.
func (q *QueryService) ActiveAddresses(ctx context.Context, calendarID uuid.UUID) ([]AddressView, error) {
	cal, err := q.repo.Load(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	today := q.today()
	var views []AddressView
	for addr := range cal.ActiveAddressesFrom(today) {
		views = append(views, q.projectAddress(addr, today))
	}
	return views, nil
}

// NextDelivery returns the earliest upcoming active address, or nil when the
// calendar has none.
func (q *QueryService) NextDelivery(ctx context.Context, calendarID uuid.UUID) (*AddressView, error) {
	cal, err := q.repo.Load(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	today := q.today()
	next := cal.NextDelivery(today)
	if next == nil {
		return nil, nil
	}
	view := q.projectAddress(next, today)
	return &view, nil
}

func (q *QueryService) today() calendar.Date {
	return calendar.DateOf(q.now().UTC())
}

func (q *QueryService) project(cal *calendar.Calendar) *CalendarView {
	today := q.today()
	addresses := cal.Addresses()
	views := make([]AddressView, 0, len(addresses))
	for _, addr := range addresses {
		views = append(views, q.projectAddress(addr, today))
	}
	return &CalendarView{
		ID:                   cal.ID(),
		PatientID:            cal.PatientID(),
		PlanID:               cal.PlanID(),
		StartDate:            cal.StartDate(),
		EndDate:              cal.EndDate(),
		Active:               cal.Active(),
		CompletionPercentage: cal.CompletionPercentage(today),
		Addresses:            views,
	}
}

func (q *QueryService) projectAddress(addr *calendar.Address, today calendar.Date) AddressView {
	return AddressView{
		ID:            addr.ID(),
		Date:          addr.Date(),
		Address:       addr.Text(),
		Notes:         addr.Notes(),
		Latitude:      addr.Latitude().Float64(),
		Longitude:     addr.Longitude().Float64(),
		Active:        addr.Active(),
		DaysRemaining: addr.DaysRemaining(today),
	}
}
