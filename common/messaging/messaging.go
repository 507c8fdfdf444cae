// Package messaging provides broker-neutral publish/subscribe abstractions.
// Sentinel components depend on these interfaces; the NATS implementation
// lives in the nats subpackage and an in-process bus in memory.go.
package messaging

import (
	"context"
	"time"
)

// Header keys carried on sentinel messages.
const (
	HeaderTraceID     = "Sentinel-Trace-Id"
	HeaderContentType = "Content-Type"
	HeaderSource      = "Sentinel-Source"
)

// Message represents a message received from or sent to a broker.
type Message struct {
	Subject string
	Data    []byte
	// Reply is set for request/reply exchanges.
	Reply    string
	Metadata map[string]string
	// Timestamp is when the message was received locally.
	Timestamp time.Time
}

// MessageHandler processes a received message. A returned error is logged by
// the client; core pub/sub has no redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishMsg(ctx context.Context, msg *Message) error
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)
	Close() error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	// QueueSubscribe load-balances messages across members of queue.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain lets in-flight messages finish before closing.
	Drain() error
	IsConnected() bool
}
