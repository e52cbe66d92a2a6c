// Package transport opens the byte-stream sockets the co-processor hands
// out through modem.Driver.Connect.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/pkg/log"
	"github.com/autopeer-io/cellink/pkg/options"
)

// KeyStore resolves a security tag to its provisioned PSK.
type KeyStore interface {
	PSK(secTag uint32) (identity string, key []byte, ok bool)
}

// Dialer opens sockets for every supported protocol.
type Dialer struct {
	// Timeout bounds the connect phase.
	Timeout time.Duration
	// Keys is consulted by secure protocols.
	Keys KeyStore
	// Mqtt configures the broker uplink; required for the mqtt protocol.
	Mqtt *options.MqttOptions
	// DeviceID names the node on the broker.
	DeviceID string
}

// Dial connects to ep. Errors are tagged with modem.ErrTransport.
func (d *Dialer) Dial(ctx context.Context, ep modem.Endpoint) (modem.Socket, error) {
	if err := ep.Validate(); err != nil {
		return nil, modem.Wrap(modem.ErrTransport, "dial", err)
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var (
		sock modem.Socket
		err  error
	)
	switch ep.Protocol {
	case modem.ProtocolTCP:
		sock, err = dialTCP(ctx, ep)
	case modem.ProtocolDTLS:
		sock, err = d.dialDTLS(ctx, ep)
	case modem.ProtocolMQTT:
		sock, err = d.dialMQTT(ctx, ep)
	default:
		err = fmt.Errorf("unsupported protocol %q", ep.Protocol)
	}
	if err != nil {
		return nil, modem.Wrap(modem.ErrTransport, "dial "+ep.String(), err)
	}

	log.Info("Socket connected", "endpoint", ep.String())
	return sock, nil
}
