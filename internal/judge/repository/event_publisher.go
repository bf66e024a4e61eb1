package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contestjudge/internal/common/mq"
	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/contextkey"
)

// EventPublisher publishes domain events for external fanout.
type EventPublisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// MQEventPublisher publishes events to a message queue topic keyed by contest,
// so one contest's events stay ordered on a partitioned broker.
type MQEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQEventPublisher creates a new MQ event publisher.
func NewMQEventPublisher(producer mq.Producer, topic string) *MQEventPublisher {
	return &MQEventPublisher{producer: producer, topic: topic}
}

// Publish publishes one event.
func (p *MQEventPublisher) Publish(ctx context.Context, event model.Event) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("event publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("event topic is required")
	}
	if event.Type == "" {
		return appErr.ValidationError("type", "required")
	}
	if event.IssuedAt.IsZero() {
		event.IssuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.ContestID
	setTraceHeader(ctx, message)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish %s event failed", event.Type)
	}
	return nil
}

// SubmissionQueue pushes submission ids onto a judge queue topic.
type SubmissionQueue struct {
	producer mq.Producer
	topic    string
}

// NewSubmissionQueue creates a queue writer for topic.
func NewSubmissionQueue(producer mq.Producer, topic string) *SubmissionQueue {
	return &SubmissionQueue{producer: producer, topic: topic}
}

// Push publishes {"submission_id": id}; it does not wait for consumption.
func (q *SubmissionQueue) Push(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(model.JudgeMessage{SubmissionID: submissionID})
	if err != nil {
		return fmt.Errorf("marshal judge message failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = submissionID
	setTraceHeader(ctx, message)
	if err := q.producer.Publish(ctx, q.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish to %s failed", q.topic)
	}
	return nil
}

// Topic returns the topic the queue writes to.
func (q *SubmissionQueue) Topic() string {
	return q.topic
}

func setTraceHeader(ctx context.Context, message *mq.Message) {
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok && traceID != "" {
		message.SetHeader(mq.HeaderTraceID, traceID)
	}
}
