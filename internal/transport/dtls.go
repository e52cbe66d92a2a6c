package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"

	"github.com/pion/dtls/v2"

	"github.com/autopeer-io/cellink/internal/modem"
)

func (d *Dialer) dialDTLS(ctx context.Context, ep modem.Endpoint) (modem.Socket, error) {
	if d.Keys == nil {
		return nil, fmt.Errorf("no key store for sec tag %d", ep.SecTag)
	}
	identity, key, ok := d.Keys.PSK(ep.SecTag)
	if !ok {
		return nil, fmt.Errorf("no credentials under sec tag %d", ep.SecTag)
	}

	raddr, err := net.ResolveUDPAddr("udp", ep.Address)
	if err != nil {
		return nil, err
	}

	conn, err := dtls.DialWithContext(ctx, "udp", raddr, pskConfig(identity, key, ep.PeerVerify))
	if err != nil {
		return nil, err
	}
	return newStreamConn(conn, modem.ProtocolDTLS), nil
}

// pskConfig builds a client config for identity/key. With peerVerify the
// server must announce the same identity hint.
func pskConfig(identity string, key []byte, peerVerify bool) *dtls.Config {
	return &dtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			if peerVerify && len(hint) > 0 && !bytes.Equal(hint, []byte(identity)) {
				return nil, fmt.Errorf("peer identity hint %q does not match %q", hint, identity)
			}
			return key, nil
		},
		PSKIdentityHint: []byte(identity),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8},
	}
}
