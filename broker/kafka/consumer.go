package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"

	"delivery-calendar/calendar"
	"delivery-calendar/logger"
)

// MealPlanCreatedTopic is the topic the meal plan service publishes to when
// a plan is created.
const MealPlanCreatedTopic = "outbox-meal-plan-created"

const pollTimeout = time.Second

// MealPlanCreatedEvent is the contract of the event published by the meal
// plan service. Receiving it triggers the automatic creation of the
// patient's delivery calendar.
type MealPlanCreatedEvent struct {
	PlanID     uuid.UUID     `json:"planId"`
	PatientID  uuid.UUID     `json:"patientId"`
	StartDate  calendar.Date `json:"startDate"`
	EndDate    calendar.Date `json:"endDate"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// consumerClient is the narrow surface of kafka.Consumer the loop needs.
type consumerClient interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
}

// calendarCreator dispatches the create-calendar command. It is the only
// piece of the application the consumer touches.
type calendarCreator interface {
	CreateCalendar(ctx context.Context, patientID, planID uuid.UUID, start, end calendar.Date) (uuid.UUID, error)
}

// PlanConsumer is a thin command-dispatch adapter: it decodes inbound
// MealPlanCreated events and hands them to the command service.
type PlanConsumer struct {
	consumer consumerClient
	creator  calendarCreator
	logger   logger.Logger
}

var _ logger.Loggable = (*PlanConsumer)(nil)

func NewPlanConsumer(c consumerClient, creator calendarCreator) *PlanConsumer {
	if c == nil || creator == nil {
		panic("you must provide a consumer and a calendar creator")
	}
	return &PlanConsumer{
		consumer: c,
		creator:  creator,
		logger:   &logger.NopLogger{},
	}
}

func (pc *PlanConsumer) SetLogger(l logger.Logger) {
	pc.logger = l
}

// Run consumes MealPlanCreated events until the context is cancelled. A
// malformed or failing message is logged and skipped; the loop never
// terminates on a single message's failure.
func (pc *PlanConsumer) Run(ctx context.Context) {
	pc.logger.Info("meal plan consumer started")
	for {
		select {
		case <-ctx.Done():
			pc.logger.Info("meal plan consumer stopped")
			return
		default:
		}

		msg, err := pc.consumer.ReadMessage(pollTimeout)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			pc.logger.Error("reading from the meal plan topic", err)
			continue
		}
		pc.handle(ctx, msg)
	}
}

func (pc *PlanConsumer) handle(ctx context.Context, msg *kafka.Message) {
	var event MealPlanCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		pc.logger.Error("decoding MealPlanCreated event", err)
		return
	}
	pc.logger.Info(fmt.Sprintf("received MealPlanCreated: plan '%s', patient '%s'", event.PlanID, event.PatientID))

	calendarID, err := pc.creator.CreateCalendar(ctx, event.PatientID, event.PlanID, event.StartDate, event.EndDate)
	if err != nil {
		pc.logger.Error(fmt.Sprintf("creating calendar for plan '%s'", event.PlanID), err)
		return
	}
	pc.logger.Info(fmt.Sprintf("calendar '%s' created automatically for plan '%s'", calendarID, event.PlanID))
}
