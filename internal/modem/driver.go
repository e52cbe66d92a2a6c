// Package modem defines the boundary to the cellular co-processor.
//
// The co-processor's AT engine and cellular stack are external; the rest of
// cellink talks to it only through Driver. Every Driver operation blocks the
// calling task until the co-processor reports completion, which arrives by
// way of the interrupt entry points below.
package modem

import (
	"context"

	"github.com/autopeer-io/cellink/internal/irq"
)

// Driver is the modem library surface used by the session lifecycle, the
// command relay and the sense-transmit loop.
type Driver interface {
	irq.ModemIRQ

	// Init configures the system mode and waits for the co-processor to
	// report ready. Nothing else is accepted before Init returns nil.
	Init(ctx context.Context, mode SystemMode) error

	// SendCommand executes one raw AT command and returns the formatted
	// response.
	SendCommand(ctx context.Context, cmd []byte) ([]byte, error)

	// Connect opens a socket to the endpoint.
	Connect(ctx context.Context, ep Endpoint) (Socket, error)

	// SignalStrength returns the instantaneous RSRP in dBm.
	SignalStrength(ctx context.Context) (int32, error)

	// InstallPSK writes a PSK identity and hex key under secTag into the
	// co-processor's secure storage.
	InstallPSK(ctx context.Context, secTag uint32, identity, key string) error
}

// Socket is an open transport connection.
type Socket interface {
	// Write sends b and blocks until it is accepted by the transport or ctx
	// is done. A cancelled write must release the transport before it
	// returns.
	Write(ctx context.Context, b []byte) error
	Close() error
}
