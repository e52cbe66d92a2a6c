package transport

import (
	"context"
	"net"
	"time"

	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
)

// streamConn adapts a net.Conn to modem.Socket. Cancelling the write
// context expires the write deadline so the blocked Write returns.
type streamConn struct {
	conn     net.Conn
	protocol modem.Protocol
}

var _ modem.Socket = (*streamConn)(nil)

func newStreamConn(conn net.Conn, p modem.Protocol) *streamConn {
	return &streamConn{conn: conn, protocol: p}
}

func dialTCP(ctx context.Context, ep modem.Endpoint) (modem.Socket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		return nil, err
	}
	return newStreamConn(conn, modem.ProtocolTCP), nil
}

func (s *streamConn) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	forced := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetWriteDeadline(time.Unix(1, 0))
		close(forced)
	})
	n, err := s.conn.Write(b)
	if !stop() {
		// The deadline was forced; clear it for the next writer.
		<-forced
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	metrics.SocketBytes.WithLabelValues(string(s.protocol)).Add(float64(n))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return modem.Wrap(modem.ErrTransport, "write", err)
	}
	return nil
}

func (s *streamConn) Close() error {
	return s.conn.Close()
}
