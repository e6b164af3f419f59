package ports

import (
	"context"
)

// EventProducer defines the output port for publishing domain events.
type EventProducer interface {
	PublishPayroll(ctx context.Context, body interface{}) error
	PublishReceipt(ctx context.Context, body interface{}) error
}

// MessageSender defines the interface for sending raw messages to a messaging system.
type MessageSender interface {
	SendMessage(ctx context.Context, destination string, body []byte) error
}
