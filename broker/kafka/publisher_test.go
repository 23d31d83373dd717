package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-calendar/calendar"
	"delivery-calendar/relay"
	"delivery-calendar/test"
)

func TestBuildTopicName(t *testing.T) {
	testcases := []struct {
		name string
		args calendar.EventKind
		want string
	}{
		{
			name: "calendar created",
			args: calendar.KindCalendarCreated,
			want: "outbox-calendar-created",
		},
		{
			name: "address added",
			args: calendar.KindAddressAdded,
			want: "outbox-address-added",
		},
		{
			name: "delivery cancelled",
			args: calendar.KindDeliveryCancelled,
			want: "outbox-delivery-cancelled",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildTopicName(tc.args))
		})
	}
}

func TestNewPublisher(t *testing.T) {
	assert.Panics(t, func() { NewPublisher(nil) })
}

func testMessage() *relay.Message {
	return &relay.Message{
		EntryID:    uuid.New(),
		Kind:       calendar.KindCalendarCreated,
		Key:        uuid.New().String(),
		Payload:    []byte(`{"calendarId":"x"}`),
		OccurredAt: time.Date(2025, time.February, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublish(t *testing.T) {
	t.Run("delivers and reports the broker ack", func(t *testing.T) {
		topic := "outbox-calendar-created"
		producer := &test.MockedKafkaProducer{
			Snitch: make(chan *kafka.Message, 1),
			MockedReportToSend: &kafka.Message{
				TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 42},
			},
		}
		p := NewPublisher(producer)
		m := testMessage()

		err := p.Publish(context.Background(), m)
		require.NoError(t, err)

		produced := <-producer.Snitch
		assert.Equal(t, topic, *produced.TopicPartition.Topic)
		assert.Equal(t, []byte(m.Key), produced.Key)
		assert.Equal(t, m.Payload, produced.Value)
		require.Len(t, produced.Headers, 2)
		assert.Equal(t, "id", produced.Headers[0].Key)
		assert.Equal(t, []byte(m.EntryID.String()), produced.Headers[0].Value)
		assert.Equal(t, "occurredAt", produced.Headers[1].Key)
	})

	t.Run("fails when the producer rejects the message", func(t *testing.T) {
		producer := &test.MockedKafkaProducer{
			Snitch:             make(chan *kafka.Message, 1),
			MockedReportToSend: &kafka.Message{},
			RetVal:             errors.New("queue full"),
		}
		p := NewPublisher(producer)

		err := p.Publish(context.Background(), testMessage())
		assert.ErrorContains(t, err, "queue full")
	})

	t.Run("fails when the delivery report carries an error", func(t *testing.T) {
		topic := "outbox-calendar-created"
		producer := &test.MockedKafkaProducer{
			Snitch: make(chan *kafka.Message, 1),
			MockedReportToSend: &kafka.Message{
				TopicPartition: kafka.TopicPartition{
					Topic: &topic,
					Error: kafka.NewError(kafka.ErrMsgTimedOut, "delivery timed out", false),
				},
			},
		}
		p := NewPublisher(producer)

		err := p.Publish(context.Background(), testMessage())
		assert.ErrorContains(t, err, "delivery timed out")
	})
}
