package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-calendar/calendar"
)

type flakyRepo struct {
	calls    int
	failures int
	err      error
	inner    *fakeRepo
}

func (r *flakyRepo) Load(ctx context.Context, id uuid.UUID) (*calendar.Calendar, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, r.err
	}
	return r.inner.Load(ctx, id)
}

func (r *flakyRepo) LoadByPatient(ctx context.Context, patientID uuid.UUID) (*calendar.Calendar, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, r.err
	}
	return r.inner.LoadByPatient(ctx, patientID)
}

func (r *flakyRepo) ListActive(ctx context.Context) ([]*calendar.Calendar, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, r.err
	}
	return r.inner.ListActive(ctx)
}

func (r *flakyRepo) Save(ctx context.Context, c *calendar.Calendar) error {
	r.calls++
	if r.calls <= r.failures {
		return r.err
	}
	r.inner.calendars[c.ID()] = c
	return nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}
}

func TestWithRetry(t *testing.T) {
	t.Run("panics without a repository", func(t *testing.T) {
		assert.Panics(t, func() { WithRetry(nil, RetryPolicy{}) })
	})

	t.Run("retries transient failures until success", func(t *testing.T) {
		inner := newFakeRepo()
		cal := seedCalendar(t, inner)
		flaky := &flakyRepo{failures: 2, err: errors.New("connection reset"), inner: inner}
		repo := WithRetry(flaky, fastPolicy())

		got, err := repo.Load(context.Background(), cal.ID())
		require.NoError(t, err)
		assert.Equal(t, cal.ID(), got.ID())
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		flaky := &flakyRepo{failures: 10, err: errors.New("connection reset"), inner: newFakeRepo()}
		repo := WithRetry(flaky, fastPolicy())

		_, err := repo.Load(context.Background(), uuid.New())
		assert.Error(t, err)
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("domain errors are not retried", func(t *testing.T) {
		inner := newFakeRepo()
		flaky := &flakyRepo{inner: inner}
		repo := WithRetry(flaky, fastPolicy())

		_, err := repo.Load(context.Background(), uuid.New())
		assert.ErrorIs(t, err, calendar.ErrCalendarNotFound)
		assert.Equal(t, 1, flaky.calls)
	})

	t.Run("a cancelled context stops the retries", func(t *testing.T) {
		flaky := &flakyRepo{failures: 10, err: errors.New("connection reset"), inner: newFakeRepo()}
		repo := WithRetry(flaky, RetryPolicy{MaxAttempts: 10, InitialInterval: 50 * time.Millisecond})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := repo.Load(ctx, uuid.New())
		assert.Error(t, err)
		assert.LessOrEqual(t, flaky.calls, 2)
	})

	t.Run("save retries in place", func(t *testing.T) {
		inner := newFakeRepo()
		cal, err := calendar.NewCalendar(time.Now().UTC(), uuid.New(), uuid.New(),
			calendar.NewDate(2025, time.February, 1), calendar.NewDate(2025, time.February, 15))
		require.NoError(t, err)
		flaky := &flakyRepo{failures: 1, err: errors.New("connection reset"), inner: inner}
		repo := WithRetry(flaky, fastPolicy())

		require.NoError(t, repo.Save(context.Background(), cal))
		assert.Equal(t, 2, flaky.calls)
		assert.Contains(t, inner.calendars, cal.ID())
	})
}
