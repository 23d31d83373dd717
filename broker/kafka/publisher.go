// Package kafka adapts the delivery calendar's broker boundaries to Apache
// Kafka using the Confluent client: the outbox relay publisher on the way
// out and the meal plan consumer on the way in.
package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/iancoleman/strcase"

	"delivery-calendar/calendar"
	"delivery-calendar/logger"
	"delivery-calendar/relay"
)

// producer is the narrow surface of kafka.Producer the publisher needs.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// Publisher publishes integration events to Kafka, one topic per event
// kind. Publish blocks until the broker acknowledges the message so the
// relay can decide whether to stamp the outbox entry.
type Publisher struct {
	producer producer
	logger   logger.Logger
}

var _ relay.Publisher = (*Publisher)(nil)
var _ logger.Loggable = (*Publisher)(nil)

func NewPublisher(p producer) *Publisher {
	if p == nil {
		panic("producer is mandatory")
	}
	return &Publisher{
		producer: p,
		logger:   &logger.NopLogger{},
	}
}

func (p *Publisher) SetLogger(l logger.Logger) {
	p.logger = l
}

func (p *Publisher) Publish(ctx context.Context, m *relay.Message) error {
	var internal = make(chan kafka.Event, 1)
	topic := buildTopicName(m.Kind)
	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(m.Key),
		Value:          m.Payload,
		Headers: []kafka.Header{
			{Key: "id", Value: []byte(m.EntryID.String())},
			{Key: "occurredAt", Value: []byte(strconv.FormatInt(m.OccurredAt.UnixMilli(), 10))},
		},
	}, internal)
	if err != nil {
		return fmt.Errorf("producing message to topic %s: %w", topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-internal:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka event: %s", ev)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to topic %s failed: %w", topic, msg.TopicPartition.Error)
		}
		p.logger.Debug(fmt.Sprintf("Delivered message to topic %s [%d] at offset %v",
			*msg.TopicPartition.Topic, msg.TopicPartition.Partition, msg.TopicPartition.Offset))
		return nil
	}
}

// buildTopicName builds a topic name from an event kind (e.g. if
// kind="CalendarCreated" then topic name is "outbox-calendar-created").
func buildTopicName(kind calendar.EventKind) string {
	return fmt.Sprintf("outbox-%s", strcase.ToKebab(string(kind)))
}
