package sim

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/cellink/internal/irq"
	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/pkg/options"
)

var scenarioMode = modem.SystemMode{LTE: true, NBIoT: true, GNSS: false, Preference: modem.PreferLTE}

type rig struct {
	ctrl  *irq.Controller
	waker *irq.Waker
	modem *Modem
}

// newRig starts a controller and a co-processor. With bridge set the modem
// lines are installed the way the session lifecycle does it.
func newRig(t *testing.T, cfg Config, bridge bool) *rig {
	t.Helper()
	r := &rig{ctrl: irq.NewController(), waker: irq.NewWaker()}
	r.modem = New(cfg, r.ctrl, r.waker)
	if bridge {
		require.NoError(t, irq.InstallModemLines(r.ctrl, r.modem, r.waker))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = r.ctrl.Run(ctx) }()
	go func() { defer wg.Done(); _ = r.modem.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return r
}

func withTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestCommandRefusedBeforeInitAcceptedAfter(t *testing.T) {
	r := newRig(t, Config{}, true)
	ctx := withTimeout(t, 5*time.Second)

	_, err := r.modem.SendCommand(ctx, []byte("AT"))
	assert.ErrorIs(t, err, modem.ErrNotInitialized)

	require.NoError(t, r.modem.Init(ctx, scenarioMode))

	resp, err := r.modem.SendCommand(ctx, []byte("AT"))
	require.NoError(t, err)
	assert.Equal(t, "OK\r\n", string(resp))

	resp, err = r.modem.SendCommand(ctx, []byte("AT%XSYSTEMMODE?"))
	require.NoError(t, err)
	assert.Equal(t, "%XSYSTEMMODE: 1,1,0,1\r\nOK\r\n", string(resp))

	// Both lines were serviced for every completed call.
	assert.GreaterOrEqual(t, r.ctrl.Serviced(irq.LineIPC), uint64(3))
	assert.GreaterOrEqual(t, r.ctrl.Serviced(irq.LineApplication), uint64(3))
}

func TestInitTwiceFails(t *testing.T) {
	r := newRig(t, Config{}, true)
	ctx := withTimeout(t, 5*time.Second)
	require.NoError(t, r.modem.Init(ctx, scenarioMode))
	assert.ErrorIs(t, r.modem.Init(ctx, scenarioMode), modem.ErrModemInit)
}

func TestInitRejectsMode(t *testing.T) {
	r := newRig(t, Config{}, true)
	err := r.modem.Init(withTimeout(t, time.Second), modem.SystemMode{})
	assert.ErrorIs(t, err, modem.ErrModemInit)
}

func TestInitRetryAfterRejectedMode(t *testing.T) {
	r := newRig(t, Config{}, true)
	ctx := withTimeout(t, 5*time.Second)
	require.ErrorIs(t, r.modem.Init(ctx, modem.SystemMode{LTEPSM: true, NBIoT: true}), modem.ErrModemInit)
	require.NoError(t, r.modem.Init(ctx, scenarioMode))
}

func TestInitTimesOutWaitingForReady(t *testing.T) {
	r := newRig(t, Config{ReadyDelay: time.Minute, InitTimeout: 50 * time.Millisecond}, true)
	err := r.modem.Init(context.Background(), scenarioMode)
	assert.ErrorIs(t, err, modem.ErrModemInit)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMissingBridgeStalls(t *testing.T) {
	r := newRig(t, Config{InitTimeout: 100 * time.Millisecond}, false)

	err := r.modem.Init(context.Background(), scenarioMode)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, r.ctrl.Serviced(irq.LineIPC))
	assert.Zero(t, r.waker.Signals())
}

func TestResponseOverflowIsEngineError(t *testing.T) {
	r := newRig(t, Config{ResponseBuffer: 16}, true)
	ctx := withTimeout(t, 5*time.Second)
	require.NoError(t, r.modem.Init(ctx, scenarioMode))

	_, err := r.modem.SendCommand(ctx, []byte("AT%XSYSTEMMODE?"))
	assert.ErrorIs(t, err, modem.ErrEngine)

	resp, err := r.modem.SendCommand(ctx, []byte("AT"))
	require.NoError(t, err)
	assert.Equal(t, "OK\r\n", string(resp))
}

func TestDefaultBufferHoldsFullCommandFrame(t *testing.T) {
	r := newRig(t, Config{ResponseBuffer: options.NewModemOptions().ResponseBuffer}, true)
	ctx := withTimeout(t, 5*time.Second)
	require.NoError(t, r.modem.Init(ctx, scenarioMode))

	cmd := strings.Repeat("AT\r\n", 80)
	resp, err := r.modem.SendCommand(ctx, []byte(cmd))
	require.NoError(t, err)
	assert.Greater(t, len(resp), 256)
	assert.Equal(t, 80, strings.Count(string(resp), "OK\r\n"))
}

func TestSignalStrength(t *testing.T) {
	r := newRig(t, Config{Signal: func() int32 { return -97 }}, true)
	ctx := withTimeout(t, 5*time.Second)

	_, err := r.modem.SignalStrength(ctx)
	assert.ErrorIs(t, err, modem.ErrNotInitialized)

	require.NoError(t, r.modem.Init(ctx, scenarioMode))
	dbm, err := r.modem.SignalStrength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(-97), dbm)

	_, err = r.modem.SendCommand(ctx, []byte("AT+CFUN=0"))
	require.NoError(t, err)
	_, err = r.modem.SignalStrength(ctx)
	assert.ErrorIs(t, err, modem.ErrTransport)
}

func TestInstallPSK(t *testing.T) {
	r := newRig(t, Config{}, true)
	ctx := withTimeout(t, 5*time.Second)

	assert.ErrorIs(t, r.modem.InstallPSK(ctx, 42, "id", "00"), modem.ErrNotInitialized)
	require.NoError(t, r.modem.Init(ctx, scenarioMode))

	require.NoError(t, r.modem.InstallPSK(ctx, 42, "cellink-dev", "000102"))
	require.NoError(t, r.modem.InstallPSK(ctx, 42, "cellink-dev", "000102"))
	id, key, ok := r.modem.PSK(42)
	require.True(t, ok)
	assert.Equal(t, "cellink-dev", id)
	assert.Equal(t, []byte{0, 1, 2}, key)

	assert.ErrorIs(t, r.modem.InstallPSK(ctx, 42, "cellink-dev", "not-hex"), modem.ErrProvisioning)
	assert.ErrorIs(t, r.modem.InstallPSK(ctx, 42, "", "00"), modem.ErrProvisioning)
}

type fakeSocket struct{ closed bool }

func (s *fakeSocket) Write(context.Context, []byte) error { return nil }
func (s *fakeSocket) Close() error                        { s.closed = true; return nil }

type fakeDialer struct {
	dialed []modem.Endpoint
	err    error
}

func (d *fakeDialer) Dial(_ context.Context, ep modem.Endpoint) (modem.Socket, error) {
	d.dialed = append(d.dialed, ep)
	if d.err != nil {
		return nil, d.err
	}
	return &fakeSocket{}, nil
}

func TestConnect(t *testing.T) {
	d := &fakeDialer{}
	r := newRig(t, Config{Dialer: d}, true)
	ctx := withTimeout(t, 5*time.Second)
	tcp := modem.Endpoint{Address: "79.136.27.216:5684", Protocol: modem.ProtocolTCP}
	secure := modem.Endpoint{Address: "79.136.27.216:5684", Protocol: modem.ProtocolDTLS, SecTag: 42}

	_, err := r.modem.Connect(ctx, tcp)
	assert.ErrorIs(t, err, modem.ErrNotInitialized)

	require.NoError(t, r.modem.Init(ctx, scenarioMode))

	_, err = r.modem.Connect(ctx, secure)
	assert.ErrorIs(t, err, modem.ErrTransport)
	assert.Empty(t, d.dialed)

	require.NoError(t, r.modem.InstallPSK(ctx, 42, "cellink-dev", "00"))
	sock, err := r.modem.Connect(ctx, secure)
	require.NoError(t, err)
	require.NotNil(t, sock)

	sock, err = r.modem.Connect(ctx, tcp)
	require.NoError(t, err)
	require.NotNil(t, sock)
	assert.Len(t, d.dialed, 2)

	d.err = errors.New("refused")
	_, err = r.modem.Connect(ctx, tcp)
	assert.ErrorIs(t, err, modem.ErrTransport)
}

// slowDialer completes a dial only when release is closed, whatever the
// caller's context says.
type slowDialer struct {
	release chan struct{}
	closed  atomic.Bool
}

type slowSocket struct{ d *slowDialer }

func (s *slowSocket) Write(context.Context, []byte) error { return nil }
func (s *slowSocket) Close() error                        { s.d.closed.Store(true); return nil }

func (d *slowDialer) Dial(context.Context, modem.Endpoint) (modem.Socket, error) {
	<-d.release
	return &slowSocket{d: d}, nil
}

func TestAbandonedConnectClosesLateSocket(t *testing.T) {
	d := &slowDialer{release: make(chan struct{})}
	r := newRig(t, Config{Dialer: d}, true)
	require.NoError(t, r.modem.Init(withTimeout(t, 5*time.Second), scenarioMode))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.modem.Connect(ctx, modem.Endpoint{Address: "127.0.0.1:1", Protocol: modem.ProtocolTCP})
	require.ErrorIs(t, err, modem.ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(d.release)
	assert.Eventually(t, d.closed.Load, 2*time.Second, 10*time.Millisecond)
}

func TestConnectWithoutDialer(t *testing.T) {
	r := newRig(t, Config{}, true)
	ctx := withTimeout(t, 5*time.Second)
	require.NoError(t, r.modem.Init(ctx, scenarioMode))
	_, err := r.modem.Connect(ctx, modem.Endpoint{Address: "127.0.0.1:1", Protocol: modem.ProtocolTCP})
	assert.ErrorIs(t, err, modem.ErrTransport)
}

func TestEngineCommands(t *testing.T) {
	e := &engine{
		cfun:         1,
		mode:         scenarioMode,
		manufacturer: "cellink",
		model:        "cellink-sim",
		imei:         "352656100000001",
		signal:       func() int32 { return -97 },
	}
	tests := []struct {
		cmd  string
		want string
	}{
		{"AT", "OK\r\n"},
		{"at+cfun?", "+CFUN: 1\r\nOK\r\n"},
		{"AT+CFUN=4", "OK\r\n"},
		{"AT+CFUN?", "+CFUN: 4\r\nOK\r\n"},
		{"AT+CESQ", "+CESQ: 99,99,255,255,255,255\r\nOK\r\n"},
		{"AT+CFUN=1", "OK\r\n"},
		{"AT+CESQ", "+CESQ: 99,99,255,255,31,43\r\nOK\r\n"},
		{"AT+CFUN=7", "ERROR\r\n"},
		{"AT+CGMI", "cellink\r\nOK\r\n"},
		{"AT+CGMM", "cellink-sim\r\nOK\r\n"},
		{"AT+CGSN", "352656100000001\r\nOK\r\n"},
		{"AT+BOGUS", "ERROR\r\n"},
		{"\r\n", "ERROR\r\n"},
		{"AT\r\nAT+CGMM\r\n", "OK\r\ncellink-sim\r\nOK\r\n"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.cmd), func(t *testing.T) {
			assert.Equal(t, tt.want, e.execute([]byte(tt.cmd)))
		})
	}
}

func TestRSRPIndex(t *testing.T) {
	assert.Equal(t, 0, rsrpIndex(-150))
	assert.Equal(t, 43, rsrpIndex(-97))
	assert.Equal(t, 97, rsrpIndex(-20))
}
