// Package relay implements the polling publisher half of the transactional
// outbox: a long-lived loop that drains pending outbox entries, translates
// them into integration events and publishes them to the broker. Delivery is
// at-least-once; a crash between publish and stamp simply replays the entry
// on the next poll, and consumers are expected to deduplicate.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"delivery-calendar/logger"
	"delivery-calendar/metrics"
	"delivery-calendar/outbox"
)

// Relay drains the outbox store on a fixed interval and publishes the
// translated events. A single instance processes entries oldest first, which
// preserves emission order for events of the same aggregate.
type Relay struct {
	id         uuid.UUID
	settings   Settings
	store      outbox.Store
	publisher  Publisher
	logger     logger.Logger
	successCtr metrics.Counter
	errorCtr   metrics.Counter
}

// opt allows optional configuration.
type opt func(r *Relay)

// WithLogger allows clients to configure an optional logger.
func WithLogger(l logger.Logger) opt {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCounters allows clients to configure optional success and error
// counters for observability.
func WithCounters(success, error metrics.Counter) opt {
	return func(r *Relay) {
		if success != nil {
			r.successCtr = success
		}
		if error != nil {
			r.errorCtr = error
		}
	}
}

// New creates a Relay over the provided store and publisher.
func New(s Settings, store outbox.Store, p Publisher, options ...opt) *Relay {
	if store == nil || p == nil {
		panic("you must provide an outbox store and a publisher")
	}
	validateSettings(&s)

	r := &Relay{
		id:         uuid.New(),
		settings:   s,
		store:      store,
		publisher:  p,
		logger:     &logger.NopLogger{},
		successCtr: &metrics.NopCounter{},
		errorCtr:   &metrics.NopCounter{},
	}
	for _, o := range options {
		o(r)
	}
	if l, ok := store.(logger.Loggable); ok {
		l.SetLogger(r.logger)
	}
	if l, ok := p.(logger.Loggable); ok {
		l.SetLogger(r.logger)
	}
	return r
}

// Run executes the relay loop until the context is cancelled. A failing
// batch never terminates the loop: failed entries stay pending and are
// retried on the next interval.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info(fmt.Sprintf("outbox relay '%s' started (interval=%s, batch=%d)",
		r.id, r.settings.PollingInterval, r.settings.BatchSize))
	ticker := time.NewTicker(r.settings.PollingInterval)
	defer ticker.Stop()
	for {
		r.processOutbox(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info(fmt.Sprintf("outbox relay '%s' stopped", r.id))
			return
		case <-ticker.C:
		}
	}
}

// processOutbox runs one poll cycle: claim the outbox, scan the oldest
// pending entries, publish each one and stamp the successes in a single
// write.
func (r *Relay) processOutbox(ctx context.Context) {
	acquired, err := r.store.AcquireLock(r.id)
	if err != nil {
		r.logger.Error("unable to get the outbox lock", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := r.store.ReleaseLock(r.id); err != nil {
			r.logger.Error("releasing the outbox lock", err)
		}
	}()

	entries, err := r.store.FindPending(ctx, r.settings.BatchSize)
	if err != nil {
		r.logger.Error("scanning pending outbox entries", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	var published []uuid.UUID
	for _, e := range entries {
		msg, err := Translate(e)
		if err != nil {
			// The entry stays pending so the gap is visible to operators
			// instead of being dropped.
			r.logger.Error(fmt.Sprintf("translating outbox entry '%s'", e.ID), err)
			r.errorCtr.Inc(1)
			continue
		}
		if err := r.publisher.Publish(ctx, msg); err != nil {
			r.logger.Error(fmt.Sprintf("publishing outbox entry '%s'", e.ID), err)
			r.errorCtr.Inc(1)
			continue
		}
		published = append(published, e.ID)
		r.successCtr.Inc(1)
	}

	r.logger.Info(fmt.Sprintf("%d entries were successfully published (with %d failed) from a total of %d pending",
		len(published), len(entries)-len(published), len(entries)))

	if len(published) > 0 {
		if err := r.store.MarkProcessed(ctx, published, time.Now().UTC()); err != nil {
			// Already-published entries will be published again on the next
			// poll; at-least-once delivery makes that acceptable.
			r.logger.Error("stamping processed outbox entries", err)
		}
	}
}
