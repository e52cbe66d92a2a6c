// Package relay forwards raw AT commands from a host terminal to the modem
// and writes the responses back.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	"github.com/autopeer-io/cellink/internal/uart"
	"github.com/autopeer-io/cellink/pkg/log"
)

// DefaultBufferSize is the command frame capacity.
const DefaultBufferSize = 1024

// Commander executes one raw command frame.
type Commander interface {
	SendCommand(ctx context.Context, cmd []byte) ([]byte, error)
}

// Relay owns the frame buffer and the relay state. It is driven by one task.
type Relay struct {
	port  uart.Port
	modem Commander
	buf   []byte
	state *fsm.FSM
}

// New creates a relay with a frame buffer of size bytes.
func New(port uart.Port, m Commander, size int) *Relay {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Relay{
		port:  port,
		modem: m,
		buf:   make([]byte, size),
		state: newStateMachine(),
	}
}

// State returns the current relay state.
func (r *Relay) State() string {
	return r.state.Current()
}

// Step relays one frame. A zero-length frame is discarded without touching
// the modem. Any returned error is fatal.
func (r *Relay) Step(ctx context.Context) error {
	n, err := r.port.ReadUntilIdle(ctx, r.buf)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("receive frame: %w", err))
	}
	if n == 0 {
		metrics.RelayFrames.WithLabelValues("empty").Inc()
		return nil
	}

	if err := r.state.Event(ctx, EventFrame); err != nil {
		return err
	}
	frame := r.buf[:n]
	log.Debug("Dispatching frame", "bytes", n, "command", string(frame))

	resp, err := r.modem.SendCommand(ctx, frame)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("send command: %w", err))
	}

	if err := r.state.Event(ctx, EventRespond); err != nil {
		return err
	}
	if err := r.port.Write(ctx, resp); err != nil {
		return r.fail(ctx, fmt.Errorf("write response: %w", err))
	}
	metrics.RelayFrames.WithLabelValues("dispatched").Inc()
	metrics.RelayResults.WithLabelValues(resultLabel(resp)).Inc()

	return r.state.Event(ctx, EventWritten)
}

// Run relays frames until an error or ctx is done. Cancellation returns nil.
func (r *Relay) Run(ctx context.Context) error {
	log.Info("Relay started", "buffer", len(r.buf))
	for {
		if err := r.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.Info("Relay stopped")
				return nil
			}
			return err
		}
	}
}

// resultLabel buckets a response by its final result code. ERROR, +CME
// ERROR and +CMS ERROR all count as error.
func resultLabel(resp []byte) string {
	switch res := modem.FinalResult(resp); {
	case res == "":
		return "none"
	case res == modem.ResultOK:
		return "ok"
	default:
		return "error"
	}
}

func (r *Relay) fail(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		metrics.RelayFrames.WithLabelValues("failed").Inc()
		// Cancellation leaves the state machine usable.
		_ = r.state.Event(context.Background(), EventFail)
	}
	return err
}
