package messaging

import (
	"context"
)

// Channel carries booking-side events.
const Channel = "appointments"

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
