// Package uart is the host-facing serial link of the command relay.
package uart

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/autopeer-io/cellink/pkg/options"
)

// ErrUart tags every receive or transmit failure of the link.
var ErrUart = errors.New("uart failure")

// Port is a half-duplex serial link framed by line idle.
type Port interface {
	// ReadUntilIdle fills buf until the line has been idle for the
	// configured gap or buf is full, and returns the number of bytes
	// captured. Zero means nothing arrived.
	ReadUntilIdle(ctx context.Context, buf []byte) (int, error)

	// Write transmits b completely.
	Write(ctx context.Context, b []byte) error

	Close() error
}

// Open opens the port named by opts. Device "-" uses stdin and stdout.
func Open(opts *options.UartOptions) (Port, error) {
	if opts.Device == "-" {
		return NewStreamPort(os.Stdin, os.Stdout, opts.IdleTimeout), nil
	}
	p, err := openSerial(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUart, opts.Device, err)
	}
	return p, nil
}
