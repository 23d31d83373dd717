package test

import (
	"fmt"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	tally "github.com/uber-go/tally/v4"
)

// MockedTallyCounter exposes the internal counter value through a channel so
// tests can assert on it.
type MockedTallyCounter struct {
	Ctr    int64
	Output chan int64
}

var _ tally.Counter = (*MockedTallyCounter)(nil)

func (c *MockedTallyCounter) Inc(delta int64) {
	c.Ctr += delta
	c.Output <- c.Ctr
}

// TestLogger records log lines so tests can assert on them.
type TestLogger struct {
	mu    sync.Mutex
	Lines []string
}

func (l *TestLogger) Info(msg string) { l.append("INFO", msg) }

func (l *TestLogger) Debug(msg string) { l.append("DEBUG", msg) }

func (l *TestLogger) Warn(msg string) { l.append("WARN", msg) }

func (l *TestLogger) Error(msg string, err error) {
	l.append("ERROR", fmt.Sprintf("%s: %v", msg, err))
}

func (l *TestLogger) append(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Lines = append(l.Lines, level+" "+msg)
}

// TestCounter accumulates increments so tests can assert on totals.
type TestCounter struct {
	mu  sync.Mutex
	Ctr int64
}

func (c *TestCounter) Inc(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ctr += delta
}

func (c *TestCounter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Ctr
}

// MockedKafkaProducer snitches produced messages and sends a predefined
// delivery report back to the caller.
type MockedKafkaProducer struct {
	MockedReportToSend kafka.Event
	Snitch             chan *kafka.Message
	RetVal             error
}

func (p *MockedKafkaProducer) Produce(msg *kafka.Message, internal chan kafka.Event) error {
	// send the message to the outside in order to assert it.
	p.Snitch <- msg

	// send a predefined delivery report to the delivery channel.
	internal <- p.MockedReportToSend

	return p.RetVal
}
