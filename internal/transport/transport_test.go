package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pion/dtls/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/pkg/mqtt"
	"github.com/autopeer-io/cellink/pkg/options"
)

type keyStore map[uint32][2]string

func (k keyStore) PSK(tag uint32) (string, []byte, bool) {
	v, ok := k[tag]
	if !ok {
		return "", nil, false
	}
	return v[0], []byte(v[1]), true
}

func TestDialTCPAndWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		b, _ := io.ReadAll(c)
		got <- b
	}()

	d := &Dialer{Timeout: time.Second}
	sock, err := d.Dial(context.Background(), modem.Endpoint{Address: ln.Addr().String(), Protocol: modem.ProtocolTCP})
	require.NoError(t, err)

	require.NoError(t, sock.Write(context.Background(), []byte("Hello from cellink!\n")))
	require.NoError(t, sock.Close())

	select {
	case b := <-got:
		assert.Equal(t, "Hello from cellink!\n", string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("server got nothing")
	}
}

func TestDialTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	d := &Dialer{Timeout: time.Second}
	_, err = d.Dial(context.Background(), modem.Endpoint{Address: addr, Protocol: modem.ProtocolTCP})
	assert.ErrorIs(t, err, modem.ErrTransport)
}

func TestDialRejectsBadEndpoint(t *testing.T) {
	d := &Dialer{}
	_, err := d.Dial(context.Background(), modem.Endpoint{Address: "nowhere", Protocol: modem.ProtocolTCP})
	assert.ErrorIs(t, err, modem.ErrTransport)
}

func TestStreamWriteCancelled(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	sock := newStreamConn(client, modem.ProtocolTCP)

	// Nobody reads from server, so the write blocks until ctx expires.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sock.Write(ctx, []byte("payload"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The forced deadline is cleared, so the socket stays usable.
	go func() {
		buf := make([]byte, 16)
		_, _ = server.Read(buf)
	}()
	assert.NoError(t, sock.Write(context.Background(), []byte("next")))
}

func TestStreamWriteAlreadyCancelled(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	sock := newStreamConn(client, modem.ProtocolTCP)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sock.Write(ctx, []byte("x")), context.Canceled)
}

func startDTLSServer(t *testing.T, hint string, key []byte) (string, <-chan []byte) {
	t.Helper()
	ln, err := dtls.Listen("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, &dtls.Config{
		PSK:             func([]byte) ([]byte, error) { return key, nil },
		PSKIdentityHint: []byte(hint),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 256)
		n, err := c.Read(buf)
		if err == nil {
			got <- buf[:n]
		}
	}()
	return ln.Addr().String(), got
}

func TestDialDTLSWithPSK(t *testing.T) {
	key := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	addr, got := startDTLSServer(t, "cellink-dev", key)

	d := &Dialer{Timeout: 5 * time.Second, Keys: keyStore{42: {"cellink-dev", string(key)}}}
	sock, err := d.Dial(context.Background(), modem.Endpoint{Address: addr, Protocol: modem.ProtocolDTLS, PeerVerify: true, SecTag: 42})
	require.NoError(t, err)
	defer sock.Close()

	require.NoError(t, sock.Write(context.Background(), []byte("frame")))
	select {
	case b := <-got:
		assert.Equal(t, "frame", string(b))
	case <-time.After(5 * time.Second):
		t.Fatal("server got nothing")
	}
}

func TestDialDTLSMissingCredentials(t *testing.T) {
	d := &Dialer{Timeout: time.Second, Keys: keyStore{}}
	_, err := d.Dial(context.Background(), modem.Endpoint{Address: "127.0.0.1:5684", Protocol: modem.ProtocolDTLS, SecTag: 42})
	assert.ErrorIs(t, err, modem.ErrTransport)
}

func TestPSKConfigPeerVerify(t *testing.T) {
	cfg := pskConfig("cellink-dev", []byte{1}, true)
	_, err := cfg.PSK([]byte("someone-else"))
	assert.Error(t, err)
	k, err := cfg.PSK([]byte("cellink-dev"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, k)

	lax := pskConfig("cellink-dev", []byte{1}, false)
	_, err = lax.PSK([]byte("someone-else"))
	assert.NoError(t, err)
}

type fakeClient struct {
	cfg        *mqtt.ClientConfig
	published  []string
	payloads   [][]byte
	awaitErr   error
	publishErr error
	disconnect int
}

func (f *fakeClient) Start(context.Context) error { return nil }
func (f *fakeClient) Disconnect(context.Context)  { f.disconnect++ }
func (f *fakeClient) Publish(_ context.Context, topic string, _ int, _ bool, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}
func (f *fakeClient) AwaitConnection(context.Context) error { return f.awaitErr }
func (f *fakeClient) IsConnected() bool                     { return f.awaitErr == nil }

func withFakeClient(t *testing.T, f *fakeClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(cfg *mqtt.ClientConfig) (mqtt.Client, error) {
		f.cfg = cfg
		return f, nil
	}
	t.Cleanup(func() { newMQTTClient = orig })
}

func TestDialMQTTPublishesToUplink(t *testing.T) {
	f := &fakeClient{}
	withFakeClient(t, f)

	d := &Dialer{Mqtt: options.NewMqttOptions(), DeviceID: "node-7"}
	sock, err := d.Dial(context.Background(), modem.Endpoint{Address: "tcp://broker:1883", Protocol: modem.ProtocolMQTT})
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker:1883", f.cfg.BrokerURL)
	assert.Equal(t, "node-7", f.cfg.ClientID)
	assert.Equal(t, "cellink/v1/status/node-7", f.cfg.WillTopic)

	require.NoError(t, sock.Write(context.Background(), []byte("frame")))
	require.NoError(t, sock.Close())

	assert.Equal(t, []string{
		"cellink/v1/status/node-7",
		"cellink/v1/uplink/node-7",
		"cellink/v1/status/node-7",
	}, f.published)
	assert.Equal(t, "frame", string(f.payloads[1]))
	assert.Equal(t, 1, f.disconnect)
}

func TestDialMQTTConnectFailure(t *testing.T) {
	f := &fakeClient{awaitErr: context.DeadlineExceeded}
	withFakeClient(t, f)

	d := &Dialer{Mqtt: options.NewMqttOptions(), DeviceID: "node-7"}
	_, err := d.Dial(context.Background(), modem.Endpoint{Address: "tcp://broker:1883", Protocol: modem.ProtocolMQTT})
	assert.ErrorIs(t, err, modem.ErrTransport)
	assert.Equal(t, 1, f.disconnect)
}

func TestBrokerWriteFailure(t *testing.T) {
	f := &fakeClient{}
	c := &brokerConn{client: f, topic: "t"}
	f.publishErr = errors.New("not connected")
	assert.ErrorIs(t, c.Write(context.Background(), []byte("x")), modem.ErrTransport)
}
