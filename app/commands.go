// Package app exposes the command and query surface of the delivery
// calendar service. Command handlers load the aggregate, invoke a domain
// operation and persist the aggregate together with its captured outbox
// entries in one unit of work.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"delivery-calendar/calendar"
	"delivery-calendar/logger"
)

// CalendarService handles the delivery calendar commands.
type CalendarService struct {
	repo   calendar.Repository
	uow    calendar.UnitOfWork
	logger logger.Logger
	now    func() time.Time
}

// opt allows optional configuration.
type opt func(s *CalendarService)

// WithLogger allows clients to configure an optional logger.
func WithLogger(l logger.Logger) opt {
	return func(s *CalendarService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock, mostly for tests.
func WithClock(now func() time.Time) opt {
	return func(s *CalendarService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCalendarService creates the command service over the persistence
// boundary.
func NewCalendarService(repo calendar.Repository, uow calendar.UnitOfWork, options ...opt) *CalendarService {
	if repo == nil || uow == nil {
		panic("you must provide a repository and a unit of work")
	}
	s := &CalendarService{
		repo:   repo,
		uow:    uow,
		logger: &logger.NopLogger{},
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// CreateCalendar creates a delivery calendar for a patient's meal plan and
// returns its id.
func (s *CalendarService) CreateCalendar(ctx context.Context, patientID, planID uuid.UUID, start, end calendar.Date) (uuid.UUID, error) {
	cal, err := calendar.NewCalendar(s.now().UTC(), patientID, planID, start, end)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.persist(ctx, cal); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info(fmt.Sprintf("calendar '%s' created for patient '%s'", cal.ID(), patientID))
	return cal.ID(), nil
}

// AddAddress registers a delivery address for a day of the calendar and
// returns the new address id.
func (s *CalendarService) AddAddress(ctx context.Context, calendarID uuid.UUID, date calendar.Date, text, notes string, lat, lon float64) (uuid.UUID, error) {
	latitude, err := calendar.NewLatitude(lat)
	if err != nil {
		return uuid.Nil, err
	}
	longitude, err := calendar.NewLongitude(lon)
	if err != nil {
		return uuid.Nil, err
	}
	var addressID uuid.UUID
	err = s.mutate(ctx, calendarID, func(cal *calendar.Calendar) error {
		addr, err := cal.AddAddress(s.now().UTC(), date, text, notes, latitude, longitude)
		if err != nil {
			return err
		}
		addressID = addr.ID()
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return addressID, nil
}

// ModifyAddress changes the delivery details of a day, subject to the notice
// window.
func (s *CalendarService) ModifyAddress(ctx context.Context, calendarID uuid.UUID, date calendar.Date, text, notes string, lat, lon float64) error {
	latitude, err := calendar.NewLatitude(lat)
	if err != nil {
		return err
	}
	longitude, err := calendar.NewLongitude(lon)
	if err != nil {
		return err
	}
	return s.mutate(ctx, calendarID, func(cal *calendar.Calendar) error {
		return cal.ModifyAddress(s.now().UTC(), date, text, notes, latitude, longitude)
	})
}

// MarkNonDelivery flags a day as non-delivery, subject to the notice window.
func (s *CalendarService) MarkNonDelivery(ctx context.Context, calendarID uuid.UUID, date calendar.Date) error {
	return s.mutate(ctx, calendarID, func(cal *calendar.Calendar) error {
		return cal.MarkNonDelivery(s.now().UTC(), date)
	})
}

// ReactivateDelivery re-enables a previously cancelled day.
func (s *CalendarService) ReactivateDelivery(ctx context.Context, calendarID uuid.UUID, date calendar.Date) error {
	return s.mutate(ctx, calendarID, func(cal *calendar.Calendar) error {
		return cal.ReactivateDelivery(s.now().UTC(), date)
	})
}

// DeactivateCalendar turns a calendar off permanently.
func (s *CalendarService) DeactivateCalendar(ctx context.Context, calendarID uuid.UUID) error {
	return s.mutate(ctx, calendarID, func(cal *calendar.Calendar) error {
		return cal.Deactivate()
	})
}

// mutate loads the aggregate, applies the mutation and saves both the
// aggregate and its captured events atomically.
func (s *CalendarService) mutate(ctx context.Context, calendarID uuid.UUID, fn func(*calendar.Calendar) error) error {
	cal, err := s.repo.Load(ctx, calendarID)
	if err != nil {
		return err
	}
	if err := fn(cal); err != nil {
		return err
	}
	return s.persist(ctx, cal)
}

func (s *CalendarService) persist(ctx context.Context, cal *calendar.Calendar) error {
	txCtx, err := s.uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning unit of work: %w", err)
	}
	if err := s.repo.Save(txCtx, cal); err != nil {
		if rbErr := s.uow.Rollback(txCtx); rbErr != nil {
			s.logger.Error("rolling back unit of work", rbErr)
		}
		return fmt.Errorf("saving calendar '%s': %w", cal.ID(), err)
	}
	if err := s.uow.Commit(txCtx); err != nil {
		return fmt.Errorf("committing unit of work: %w", err)
	}
	return nil
}
