package uart

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/cellink/pkg/options"
)

func TestReadUntilIdleCapturesOneFrame(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewStreamPort(pr, io.Discard, 30*time.Millisecond)

	go func() {
		_, _ = pw.Write([]byte("AT+C"))
		time.Sleep(5 * time.Millisecond)
		_, _ = pw.Write([]byte("FUN?\r\n"))
	}()

	buf := make([]byte, 64)
	n, err := p.ReadUntilIdle(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "AT+CFUN?\r\n", string(buf[:n]))
}

func TestReadUntilIdleNothingArrives(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewStreamPort(pr, io.Discard, 10*time.Millisecond)

	n, err := p.ReadUntilIdle(context.Background(), make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadUntilIdleFullBufferKeepsRemainder(t *testing.T) {
	p := NewStreamPort(bytes.NewReader([]byte("AT+CGMM\r\n")), io.Discard, 20*time.Millisecond)

	buf := make([]byte, 4)
	n, err := p.ReadUntilIdle(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "AT+C", string(buf[:n]))

	rest := make([]byte, 16)
	n, err = p.ReadUntilIdle(context.Background(), rest)
	require.NoError(t, err)
	assert.Equal(t, "GMM\r\n", string(rest[:n]))
}

func TestReadUntilIdleReceiveError(t *testing.T) {
	boom := errors.New("line break")
	pr, pw := io.Pipe()
	p := NewStreamPort(pr, io.Discard, 10*time.Millisecond)
	pw.CloseWithError(boom)

	require.Eventually(t, func() bool {
		_, err := p.ReadUntilIdle(context.Background(), make([]byte, 8))
		return errors.Is(err, ErrUart) && errors.Is(err, boom)
	}, time.Second, 5*time.Millisecond)
}

func TestReadUntilIdleHonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewStreamPort(pr, io.Discard, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.ReadUntilIdle(ctx, make([]byte, 8))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("tx fault") }

func TestWrite(t *testing.T) {
	var out bytes.Buffer
	p := NewStreamPort(bytes.NewReader(nil), &out, time.Millisecond)
	require.NoError(t, p.Write(context.Background(), []byte("OK\r\n")))
	assert.Equal(t, "OK\r\n", out.String())

	bad := NewStreamPort(bytes.NewReader(nil), failWriter{}, time.Millisecond)
	assert.ErrorIs(t, bad.Write(context.Background(), []byte("x")), ErrUart)
}

func TestOpenMissingDevice(t *testing.T) {
	o := options.NewUartOptions()
	o.Device = "/dev/cellink-does-not-exist"
	_, err := Open(o)
	assert.ErrorIs(t, err, ErrUart)
}
