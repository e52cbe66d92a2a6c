package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/cellink/internal/modem"
)

var _ IOptions = (*TransportOptions)(nil)

// TransportOptions describes the fixed remote endpoint.
type TransportOptions struct {
	Address     string        `json:"address" mapstructure:"address"`
	Protocol    string        `json:"protocol" mapstructure:"protocol"`
	PeerVerify  bool          `json:"peer-verify" mapstructure:"peer-verify"`
	DialTimeout time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
}

// NewTransportOptions returns the compiled-in remote.
func NewTransportOptions() *TransportOptions {
	return &TransportOptions{
		Address:     "79.136.27.216:5684",
		Protocol:    string(modem.ProtocolTCP),
		PeerVerify:  false,
		DialTimeout: 30 * time.Second,
	}
}

// Endpoint converts the options into a modem endpoint. secTag names the
// credential set used by secure protocols.
func (o *TransportOptions) Endpoint(secTag uint32) modem.Endpoint {
	return modem.Endpoint{
		Address:    o.Address,
		Protocol:   modem.Protocol(o.Protocol),
		PeerVerify: o.PeerVerify,
		SecTag:     secTag,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *TransportOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	p, err := modem.ParseProtocol(o.Protocol)
	if err != nil {
		errors = append(errors, fmt.Errorf("transport: %w", err))
	} else if p != modem.ProtocolMQTT {
		if err := ValidateAddress(o.Address); err != nil {
			errors = append(errors, fmt.Errorf("transport: %w", err))
		}
	}
	if o.DialTimeout <= 0 {
		errors = append(errors, fmt.Errorf("transport.dial-timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags for TransportOptions to the specified FlagSet.
func (o *TransportOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Address, "transport.address", o.Address, "Remote endpoint host:port.")
	fs.StringVar(&o.Protocol, "transport.protocol", o.Protocol, "Socket protocol: tcp, dtls or mqtt.")
	fs.BoolVar(&o.PeerVerify, "transport.peer-verify", o.PeerVerify, "Require peer verification on secure sessions.")
	fs.DurationVar(&o.DialTimeout, "transport.dial-timeout", o.DialTimeout, "Timeout for opening the socket.")
}
