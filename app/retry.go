package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"delivery-calendar/calendar"
)

const (
	defaultMaxAttempts     uint64        = 3
	defaultInitialInterval time.Duration = 100 * time.Millisecond
)

// RetryPolicy parameterizes the retry wrapper around the persistence
// boundary: total attempts and the initial backoff interval of the
// exponential schedule.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
}

// retryRepository retries infrastructure failures of the wrapped repository
// with exponential backoff. Domain errors are never retried.
type retryRepository struct {
	inner  calendar.Repository
	policy RetryPolicy
}

var _ calendar.Repository = (*retryRepository)(nil)

// WithRetry wraps a repository so transient persistence failures are retried
// uniformly across every boundary call.
func WithRetry(inner calendar.Repository, policy RetryPolicy) calendar.Repository {
	if inner == nil {
		panic("you must provide a repository")
	}
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = defaultInitialInterval
	}
	return &retryRepository{inner: inner, policy: policy}
}

func (r *retryRepository) Load(ctx context.Context, id uuid.UUID) (*calendar.Calendar, error) {
	var cal *calendar.Calendar
	err := r.do(ctx, func() error {
		var err error
		cal, err = r.inner.Load(ctx, id)
		return err
	})
	return cal, err
}

func (r *retryRepository) LoadByPatient(ctx context.Context, patientID uuid.UUID) (*calendar.Calendar, error) {
	var cal *calendar.Calendar
	err := r.do(ctx, func() error {
		var err error
		cal, err = r.inner.LoadByPatient(ctx, patientID)
		return err
	})
	return cal, err
}

func (r *retryRepository) ListActive(ctx context.Context) ([]*calendar.Calendar, error) {
	var cals []*calendar.Calendar
	err := r.do(ctx, func() error {
		var err error
		cals, err = r.inner.ListActive(ctx)
		return err
	})
	return cals, err
}

func (r *retryRepository) Save(ctx context.Context, c *calendar.Calendar) error {
	return r.do(ctx, func() error {
		return r.inner.Save(ctx, c)
	})
}

func (r *retryRepository) do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var de *calendar.Error
		if errors.As(err, &de) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxAttempts-1), ctx))
}
