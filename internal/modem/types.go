package modem

import (
	"fmt"
	"net"
	"strings"
)

// ConnectionPreference selects the preferred bearer when more than one
// radio access technology is enabled.
type ConnectionPreference string

const (
	PreferNone    ConnectionPreference = "none"
	PreferLTE     ConnectionPreference = "lte"
	PreferNBIoT   ConnectionPreference = "nbiot"
	PreferNetwork ConnectionPreference = "network"
)

// SystemMode is the feature set requested from the co-processor at init.
type SystemMode struct {
	LTE        bool
	LTEPSM     bool
	NBIoT      bool
	GNSS       bool
	Preference ConnectionPreference
}

// Validate reports a configuration the co-processor would refuse.
func (m SystemMode) Validate() error {
	if !m.LTE && !m.NBIoT && !m.GNSS {
		return fmt.Errorf("system mode enables no radio")
	}
	if m.LTEPSM && !m.LTE {
		return fmt.Errorf("power saving mode requires LTE")
	}
	switch m.Preference {
	case "", PreferNone, PreferNetwork:
	case PreferLTE:
		if !m.LTE {
			return fmt.Errorf("preference lte requires LTE support")
		}
	case PreferNBIoT:
		if !m.NBIoT {
			return fmt.Errorf("preference nbiot requires NB-IoT support")
		}
	default:
		return fmt.Errorf("unknown connection preference %q", m.Preference)
	}
	return nil
}

// String renders the mode the way %XSYSTEMMODE reports it:
// LTE-M, NB-IoT, GNSS, preference.
func (m SystemMode) String() string {
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}
	pref := 0
	switch m.Preference {
	case PreferLTE:
		pref = 1
	case PreferNBIoT:
		pref = 2
	case PreferNetwork:
		pref = 3
	}
	return fmt.Sprintf("%d,%d,%d,%d", b(m.LTE), b(m.NBIoT), b(m.GNSS), pref)
}

// Protocol is the transport flavour of a socket.
type Protocol string

const (
	// ProtocolTCP is a plain persistent byte stream.
	ProtocolTCP Protocol = "tcp"
	// ProtocolDTLS is a secure datagram session keyed by a PSK.
	ProtocolDTLS Protocol = "dtls"
	// ProtocolMQTT publishes each write to a broker topic.
	ProtocolMQTT Protocol = "mqtt"
)

// ParseProtocol accepts the names used in configuration.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(s)); p {
	case ProtocolTCP, ProtocolDTLS, ProtocolMQTT:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// Secure reports whether the protocol needs provisioned credentials.
func (p Protocol) Secure() bool { return p == ProtocolDTLS }

// Endpoint is the fixed remote a socket connects to.
type Endpoint struct {
	Address    string
	Protocol   Protocol
	PeerVerify bool
	SecTag     uint32
}

func (e Endpoint) Validate() error {
	if e.Protocol == ProtocolMQTT {
		if e.Address == "" {
			return fmt.Errorf("endpoint address is required")
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(e.Address); err != nil {
		return fmt.Errorf("endpoint address %q: %w", e.Address, err)
	}
	if _, err := ParseProtocol(string(e.Protocol)); err != nil {
		return err
	}
	return nil
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.Protocol, e.Address)
}
