// Package messaging defines the queue abstraction carrying engine events between handlers.
package messaging

import (
	"context"
)

// Vendor represents the name of a messaging vendor
type Vendor string

const (
	VendorMemory Vendor = "memory"
	VendorFS     Vendor = "fs"
)

// Queue represents an at-least-once message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// ID returns the message id, stable across redeliveries
	ID() string

	// Attempt returns the zero based delivery attempt
	Attempt() int

	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure; the queue redelivers until retries are exhausted
	Nack(err error) error
}

// DeadLetters exposes messages that exhausted their retries
type DeadLetters[T any] interface {
	DeadLetters(ctx context.Context) ([]*T, error)
}
