package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-calendar/calendar"
	"delivery-calendar/outbox"
	"delivery-calendar/test"
)

type fakeStore struct {
	entries      []*outbox.Entry
	processed    []uuid.UUID
	processedAt  time.Time
	lockDenied   bool
	lockErr      error
	findErr      error
	markErr      error
	releaseCalls int
}

func (s *fakeStore) Append(_ context.Context, entries []*outbox.Entry) error {
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *fakeStore) FindPending(_ context.Context, limit int) ([]*outbox.Entry, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if len(s.entries) > limit {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func (s *fakeStore) MarkProcessed(_ context.Context, ids []uuid.UUID, at time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.processed = append(s.processed, ids...)
	s.processedAt = at
	return nil
}

func (s *fakeStore) AcquireLock(_ uuid.UUID) (bool, error) {
	if s.lockErr != nil {
		return false, s.lockErr
	}
	return !s.lockDenied, nil
}

func (s *fakeStore) ReleaseLock(_ uuid.UUID) error {
	s.releaseCalls++
	return nil
}

type fakePublisher struct {
	published []*Message
	failKeys  map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, m *Message) error {
	if p.failKeys[m.Key] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, m)
	return nil
}

func pendingEntry(t *testing.T, calendarID uuid.UUID) *outbox.Entry {
	t.Helper()
	payload, err := json.Marshal(calendar.CalendarDeactivated{CalendarID: calendarID, PatientID: uuid.New()})
	require.NoError(t, err)
	return &outbox.Entry{
		ID:         uuid.New(),
		Kind:       calendar.KindCalendarDeactivated,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

func TestNew(t *testing.T) {
	t.Run("panics without a store", func(t *testing.T) {
		assert.Panics(t, func() { New(Settings{}, nil, &fakePublisher{}) })
	})
	t.Run("panics without a publisher", func(t *testing.T) {
		assert.Panics(t, func() { New(Settings{}, &fakeStore{}, nil) })
	})
	t.Run("applies defaults and options", func(t *testing.T) {
		l := &test.TestLogger{}
		r := New(Settings{}, &fakeStore{}, &fakePublisher{}, WithLogger(l))
		assert.Equal(t, 5*time.Second, r.settings.PollingInterval)
		assert.Equal(t, 20, r.settings.BatchSize)
		assert.Same(t, l, r.logger)
	})
}

func TestProcessOutbox(t *testing.T) {
	t.Run("publishes pending entries and stamps them", func(t *testing.T) {
		store := &fakeStore{entries: []*outbox.Entry{
			pendingEntry(t, uuid.New()),
			pendingEntry(t, uuid.New()),
			pendingEntry(t, uuid.New()),
		}}
		publisher := &fakePublisher{}
		success := &test.TestCounter{}
		r := New(Settings{}, store, publisher, WithCounters(success, nil))

		r.processOutbox(context.Background())

		assert.Len(t, publisher.published, 3)
		assert.Len(t, store.processed, 3)
		assert.Equal(t, int64(3), success.Value())
		assert.Equal(t, 1, store.releaseCalls)
	})

	t.Run("a failed publish leaves the entry pending", func(t *testing.T) {
		failing := pendingEntry(t, uuid.New())
		var failingKey string
		{
			msg, err := Translate(failing)
			require.NoError(t, err)
			failingKey = msg.Key
		}
		ok1 := pendingEntry(t, uuid.New())
		ok2 := pendingEntry(t, uuid.New())
		store := &fakeStore{entries: []*outbox.Entry{ok1, failing, ok2}}
		publisher := &fakePublisher{failKeys: map[string]bool{failingKey: true}}
		success := &test.TestCounter{}
		failures := &test.TestCounter{}
		r := New(Settings{}, store, publisher, WithCounters(success, failures))

		r.processOutbox(context.Background())

		assert.Len(t, publisher.published, 2)
		assert.ElementsMatch(t, []uuid.UUID{ok1.ID, ok2.ID}, store.processed)
		assert.Equal(t, int64(2), success.Value())
		assert.Equal(t, int64(1), failures.Value())
	})

	t.Run("an untranslatable entry leaves the entry pending", func(t *testing.T) {
		store := &fakeStore{entries: []*outbox.Entry{
			{ID: uuid.New(), Kind: "Bogus", Payload: []byte(`{}`)},
		}}
		publisher := &fakePublisher{}
		failures := &test.TestCounter{}
		r := New(Settings{}, store, publisher, WithCounters(nil, failures))

		r.processOutbox(context.Background())

		assert.Empty(t, publisher.published)
		assert.Empty(t, store.processed)
		assert.Equal(t, int64(1), failures.Value())
	})

	t.Run("skips the cycle when the lock is held elsewhere", func(t *testing.T) {
		store := &fakeStore{entries: []*outbox.Entry{pendingEntry(t, uuid.New())}, lockDenied: true}
		publisher := &fakePublisher{}
		r := New(Settings{}, store, publisher)

		r.processOutbox(context.Background())

		assert.Empty(t, publisher.published)
		assert.Zero(t, store.releaseCalls)
	})

	t.Run("a lock error aborts the cycle", func(t *testing.T) {
		store := &fakeStore{lockErr: errors.New("connection reset")}
		publisher := &fakePublisher{}
		r := New(Settings{}, store, publisher)

		r.processOutbox(context.Background())

		assert.Empty(t, publisher.published)
	})

	t.Run("respects the batch size", func(t *testing.T) {
		store := &fakeStore{entries: []*outbox.Entry{
			pendingEntry(t, uuid.New()),
			pendingEntry(t, uuid.New()),
			pendingEntry(t, uuid.New()),
		}}
		publisher := &fakePublisher{}
		r := New(Settings{BatchSize: 2}, store, publisher)

		r.processOutbox(context.Background())

		assert.Len(t, publisher.published, 2)
	})
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	r := New(Settings{PollingInterval: 10 * time.Millisecond}, store, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after context cancellation")
	}
}
