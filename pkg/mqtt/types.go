package mqtt

import (
	"context"
)

// Client is the broker session used by the mqtt uplink transport.
type Client interface {
	// Start launches the connection manager and returns at once. The
	// manager lives until ctx is done.
	Start(ctx context.Context) error

	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// AwaitConnection blocks until the first connection is up or ctx ends.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
