package mq

import (
	"context"
	"time"
)

// HeaderTraceID carries the producer's trace id to the consumer's logging context.
const HeaderTraceID = "x-trace-id"

// MessageQueue defines the unified interface for message queue operations.
// Kafka and Redis list drivers implement it so services never see the broker.
type MessageQueue interface {
	Producer
	Consumer

	// Ping verifies the message queue connection is alive
	Ping(ctx context.Context) error

	// Close closes the message queue connection
	Close() error
}

// Producer defines the interface for publishing messages
type Producer interface {
	// Publish publishes a message to the specified topic/queue.
	// It returns once the broker accepted the message, not when it is consumed.
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer defines the interface for consuming messages.
// A delivered message is acknowledged after the handler returns, whatever the
// handler returned. Drivers never redeliver or dead-letter on their own.
type Consumer interface {
	// Subscribe registers a handler for a topic/queue
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	// Start starts consuming messages
	Start() error

	// Stop gracefully stops consuming messages and waits for in-flight handlers
	Stop() error
}

// Message represents a message in the queue
type Message struct {
	// ID is the unique identifier for the message
	ID string `json:"id"`

	// Body is the message payload
	Body []byte `json:"body"`

	// Headers contains metadata about the message
	Headers map[string]string `json:"headers,omitempty"`

	// Timestamp is when the message was created
	Timestamp time.Time `json:"timestamp"`
}

// HandlerFunc is the function signature for message handlers.
// A returned error is logged by the driver; the message is still acknowledged.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	// ConsumerGroup is the Kafka consumer group, or the Redis processing-list owner
	ConsumerGroup string

	// Concurrency sets the number of concurrent handlers.
	// Default: 1 (one submission at a time per worker)
	Concurrency int

	// PollTimeout bounds one blocking pop on list-based drivers.
	// Default: 5 seconds
	PollTimeout time.Duration
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 5 * time.Second
	}
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}
