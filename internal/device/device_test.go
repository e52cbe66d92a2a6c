package device

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/cellink/internal/hal"
	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	"github.com/autopeer-io/cellink/internal/session"
	"github.com/autopeer-io/cellink/internal/telemetry"
	"github.com/autopeer-io/cellink/internal/uart"
	"github.com/autopeer-io/cellink/pkg/options"
)

func testConfig(mode Mode) *Config {
	cfg := &Config{
		Mode:              mode,
		ModemOptions:      options.NewModemOptions(),
		UartOptions:       options.NewUartOptions(),
		TransportOptions:  options.NewTransportOptions(),
		CredentialOptions: options.NewCredentialOptions(),
		LoopOptions:       options.NewLoopOptions(),
		HalOptions:        options.NewHalOptions(),
		HttpOptions:       options.NewHttpOptions(),
		MqttOptions:       options.NewMqttOptions(),
	}
	cfg.ModemOptions.ReadyDelay = time.Millisecond
	cfg.ModemOptions.InitTimeout = 5 * time.Second
	cfg.TransportOptions.DialTimeout = 5 * time.Second
	cfg.LoopOptions.Interval = 20 * time.Millisecond
	cfg.LoopOptions.TransmitTimeout = 5 * time.Second
	return cfg
}

func runDevice(t *testing.T, d *Device) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("device did not stop")
		return nil
	}
}

func TestNewDeviceRejectsUnknownMode(t *testing.T) {
	cfg := testConfig("gateway")
	_, err := cfg.NewDevice()
	assert.Error(t, err)
}

func TestRelayMode(t *testing.T) {
	d, err := testConfig(ModeRelay).NewDevice()
	require.NoError(t, err)
	assert.NotEmpty(t, d.BootID())

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	d.port = uart.NewStreamPort(inR, outW, 20*time.Millisecond)

	appBefore := testutil.ToFloat64(metrics.IRQServiced.WithLabelValues("application"))
	cancel, errc := runDevice(t, d)

	out := bufio.NewReader(outR)
	readResponse := func() string {
		var b strings.Builder
		for modem.FinalResult([]byte(b.String())) == "" {
			line, err := out.ReadString('\n')
			require.NoError(t, err)
			b.WriteString(line)
		}
		return b.String()
	}

	_, err = inW.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, modem.ResultOK, modem.FinalResult([]byte(readResponse())))

	_, err = inW.Write([]byte("AT+CGMI\r\n"))
	require.NoError(t, err)
	assert.Contains(t, readResponse(), "cellink")

	cancel()
	_ = inW.Close()
	require.NoError(t, waitErr(t, errc))

	assert.Equal(t, []session.Step{session.StepBridge, session.StepModemInit}, d.lifecycle.Steps())
	assert.Greater(t, testutil.ToFloat64(metrics.IRQServiced.WithLabelValues("application")), appBefore)
}

// collector accepts one connection and keeps everything written to it.
type collector struct {
	ln net.Listener

	mu  sync.Mutex
	buf bytes.Buffer
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	c := &collector{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		chunk := make([]byte, 512)
		for {
			n, err := conn.Read(chunk)
			c.mu.Lock()
			c.buf.Write(chunk[:n])
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return c
}

func (c *collector) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

// firstFrame finds the first payload frame in the stream.
func firstFrame(b []byte) (*telemetry.Report, bool) {
	magic := binary.LittleEndian.AppendUint16(nil, telemetry.FrameMagic)
	i := bytes.Index(b, magic)
	if i < 0 || len(b) < i+6 {
		return nil, false
	}
	n := int(binary.LittleEndian.Uint16(b[i+4:]))
	end := i + 6 + n + 2
	if len(b) < end {
		return nil, false
	}
	r, err := telemetry.DecodeFrame(b[i:end])
	return r, err == nil
}

func TestTelemetryMode(t *testing.T) {
	remote := newCollector(t)

	cfg := testConfig(ModeTelemetry)
	cfg.TransportOptions.Address = remote.ln.Addr().String()
	cfg.HalOptions.Sensor = true
	cfg.HalOptions.Disable = []string{"uart0", "uart1"}

	d, err := cfg.NewDevice()
	require.NoError(t, err)
	cancel, errc := runDevice(t, d)

	var report *telemetry.Report
	require.Eventually(t, func() bool {
		r, ok := firstFrame(remote.bytes())
		report = r
		return ok
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, cfg.LoopOptions.DeviceID, report.DeviceID)
	assert.Equal(t, d.BootID(), report.BootID)
	assert.Zero(t, report.Timeouts)
	require.NotEmpty(t, report.Samples)
	assert.Equal(t, int64(100), report.Samples[0].Value)
	assert.True(t, bytes.HasPrefix(remote.bytes(), []byte(cfg.LoopOptions.Greeting)))

	cancel()
	require.NoError(t, waitErr(t, errc))

	assert.Equal(t, []session.Step{
		session.StepBridge,
		session.StepPeripherals,
		session.StepModemInit,
		session.StepProvision,
		session.StepConnect,
	}, d.lifecycle.Steps())

	board := d.board.(*hal.SimBoard)
	on, toggles := board.Indicator()
	assert.False(t, on)
	assert.Positive(t, toggles)
	assert.ElementsMatch(t, []string{"uart0", "uart1"}, board.Disabled())
}

func TestTelemetryConnectFailureIsTerminal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(ModeTelemetry)
	cfg.TransportOptions.Address = addr

	d, err := cfg.NewDevice()
	require.NoError(t, err)
	_, errc := runDevice(t, d)

	err = waitErr(t, errc)
	require.Error(t, err)
	assert.ErrorIs(t, err, modem.ErrTransport)
	assert.Equal(t, session.StepConnect, d.lifecycle.Steps()[len(d.lifecycle.Steps())-1])
	assert.Nil(t, d.Socket())
}

func TestEndpointUsesBrokerForMQTT(t *testing.T) {
	cfg := testConfig(ModeTelemetry)
	cfg.TransportOptions.Protocol = string(modem.ProtocolMQTT)
	cfg.MqttOptions.Broker = "tcp://broker:1883"

	ep := cfg.endpoint()
	assert.Equal(t, "tcp://broker:1883", ep.Address)
	assert.Equal(t, cfg.CredentialOptions.SecTag, ep.SecTag)
}
