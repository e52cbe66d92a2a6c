// Package sim is a host stand-in for the cellular co-processor.
//
// Requests are queued to a single co-processor goroutine that executes them
// in order. A finished request is placed in the IPC mailbox and the IPC
// interrupt line is pended. IPCIRQ moves the mailbox to the application
// queue and pends the application line; ApplicationIRQ marks the calls
// complete. The calling task parks on the interrupt bridge's Waker until its
// call is complete, so if either line is not installed the call stalls.
package sim

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/cellink/internal/irq"
	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/pkg/log"
)

// Pender raises an interrupt line.
type Pender interface {
	Pend(line irq.Line)
}

// Dialer opens the transport behind Connect.
type Dialer interface {
	Dial(ctx context.Context, ep modem.Endpoint) (modem.Socket, error)
}

// Config tunes the simulated co-processor.
type Config struct {
	// ReadyDelay is how long the co-processor takes to report ready.
	ReadyDelay time.Duration
	// InitTimeout bounds Init's wait for the ready report.
	InitTimeout time.Duration
	// ResponseBuffer is the capacity of the AT response buffer.
	ResponseBuffer int

	Manufacturer string
	Model        string
	IMEI         string

	// Signal returns the current RSRP in dBm. Defaults to a fixed sequence.
	Signal func() int32

	Dialer Dialer
}

func (c *Config) setDefaults() {
	if c.InitTimeout <= 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.ResponseBuffer <= 0 {
		c.ResponseBuffer = 1024
	}
	if c.Manufacturer == "" {
		c.Manufacturer = "cellink"
	}
	if c.Model == "" {
		c.Model = "cellink-sim"
	}
	if c.IMEI == "" {
		c.IMEI = "352656100000001"
	}
	if c.Signal == nil {
		c.Signal = signalSequence(-95, -97, -93, -101, -90)
	}
}

// signalSequence cycles through fixed readings.
func signalSequence(values ...int32) func() int32 {
	var i int
	return func() int32 {
		v := values[i%len(values)]
		i++
		return v
	}
}

type psk struct {
	identity string
	key      []byte
}

// call is one request in flight.
type call struct {
	ctx  context.Context
	name string
	run  func(ctx context.Context) error
	err  error
	done atomic.Bool
}

// Modem implements modem.Driver on top of a simulated co-processor.
type Modem struct {
	cfg    Config
	pender Pender
	waker  *irq.Waker

	requests chan *call

	mu      sync.Mutex
	mailbox []*call
	rx      []*call
	keys    map[uint32]psk

	// ready is set once Init has observed the ready report.
	ready     atomic.Bool
	initTried atomic.Bool

	// engine state; co-processor goroutine only.
	engine engine
}

var _ modem.Driver = (*Modem)(nil)

// New creates a simulated modem that raises interrupts through p and wakes
// the caller through w. Run must be started before any request completes.
func New(cfg Config, p Pender, w *irq.Waker) *Modem {
	cfg.setDefaults()
	return &Modem{
		cfg:      cfg,
		pender:   p,
		waker:    w,
		requests: make(chan *call, 8),
		keys:     make(map[uint32]psk),
		engine: engine{
			manufacturer: cfg.Manufacturer,
			model:        cfg.Model,
			imei:         cfg.IMEI,
			signal:       cfg.Signal,
		},
	}
}

// SetDialer sets the transport used by Connect.
func (m *Modem) SetDialer(d Dialer) {
	m.cfg.Dialer = d
}

// Run is the co-processor. It executes requests in arrival order until ctx
// is done.
func (m *Modem) Run(ctx context.Context) error {
	log.Info("Co-processor started")
	for {
		select {
		case <-ctx.Done():
			log.Info("Co-processor stopped")
			return nil
		case c := <-m.requests:
			c.err = c.run(c.ctx)
			m.mu.Lock()
			m.mailbox = append(m.mailbox, c)
			m.mu.Unlock()
			m.pender.Pend(irq.LineIPC)
		}
	}
}

// IPCIRQ services the IPC line: the mailbox is handed to the application
// queue and the application line is pended.
func (m *Modem) IPCIRQ() {
	m.mu.Lock()
	m.rx = append(m.rx, m.mailbox...)
	m.mailbox = m.mailbox[:0]
	m.mu.Unlock()
	m.pender.Pend(irq.LineApplication)
}

// ApplicationIRQ services the application line: queued calls complete.
func (m *Modem) ApplicationIRQ() {
	m.mu.Lock()
	for _, c := range m.rx {
		c.done.Store(true)
	}
	m.rx = m.rx[:0]
	m.mu.Unlock()
}

// do queues fn and parks until the interrupt path reports completion.
func (m *Modem) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	c := &call{ctx: ctx, name: name, run: fn}
	select {
	case m.requests <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	for !c.done.Load() {
		if err := m.waker.Park(ctx); err != nil {
			log.Debug("Abandoned modem call", "call", name, "err", err)
			return err
		}
	}
	return c.err
}

// Init writes the system mode and waits for the ready report.
func (m *Modem) Init(ctx context.Context, mode modem.SystemMode) error {
	if err := mode.Validate(); err != nil {
		return modem.Wrap(modem.ErrModemInit, "init", err)
	}
	if !m.initTried.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: already initialized", modem.ErrModemInit)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.InitTimeout)
	defer cancel()

	err := m.do(ctx, "init", func(ctx context.Context) error {
		if m.cfg.ReadyDelay > 0 {
			t := time.NewTimer(m.cfg.ReadyDelay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		m.engine.mode = mode
		m.engine.cfun = 1
		return nil
	})
	if err != nil {
		return modem.Wrap(modem.ErrModemInit, "init", err)
	}

	m.ready.Store(true)
	log.Info("Modem ready", "systemMode", mode.String(), "preference", string(mode.Preference))
	return nil
}

func (m *Modem) checkReady(op string) error {
	if !m.ready.Load() {
		return fmt.Errorf("%s: %w", op, modem.ErrNotInitialized)
	}
	return nil
}

// SendCommand runs one raw AT frame through the engine.
func (m *Modem) SendCommand(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := m.checkReady("send command"); err != nil {
		return nil, err
	}
	var resp []byte
	err := m.do(ctx, "at", func(context.Context) error {
		out := m.engine.execute(cmd)
		if len(out) > m.cfg.ResponseBuffer {
			return fmt.Errorf("%w: response of %d bytes exceeds %d byte buffer",
				modem.ErrEngine, len(out), m.cfg.ResponseBuffer)
		}
		resp = []byte(out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SignalStrength returns the RSRP in dBm.
func (m *Modem) SignalStrength(ctx context.Context) (int32, error) {
	if err := m.checkReady("signal strength"); err != nil {
		return 0, err
	}
	var dbm int32
	err := m.do(ctx, "rsrp", func(context.Context) error {
		if !m.engine.registered() {
			return fmt.Errorf("%w: radio is off (CFUN=%d)", modem.ErrTransport, m.engine.cfun)
		}
		dbm = m.engine.signal()
		return nil
	})
	return dbm, err
}

// InstallPSK stores a credential set. Re-installing an identical set is a
// no-op.
func (m *Modem) InstallPSK(ctx context.Context, secTag uint32, identity, key string) error {
	if err := m.checkReady("install psk"); err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("%w: empty identity", modem.ErrProvisioning)
	}
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) == 0 {
		return fmt.Errorf("%w: key under sec tag %d is not hex", modem.ErrProvisioning, secTag)
	}

	return m.do(ctx, "psk", func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.keys[secTag]; ok && cur.identity == identity && string(cur.key) == string(raw) {
			log.Debug("Credentials already installed", "secTag", secTag)
			return nil
		}
		m.keys[secTag] = psk{identity: identity, key: raw}
		log.Info("Credentials installed", "secTag", secTag, "identity", identity)
		return nil
	})
}

// PSK returns the credential set under secTag.
func (m *Modem) PSK(secTag uint32) (string, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[secTag]
	return k.identity, k.key, ok
}

// Connect opens a socket to ep through the configured dialer.
func (m *Modem) Connect(ctx context.Context, ep modem.Endpoint) (modem.Socket, error) {
	if err := m.checkReady("connect"); err != nil {
		return nil, err
	}
	if m.cfg.Dialer == nil {
		return nil, fmt.Errorf("%w: no dialer", modem.ErrTransport)
	}

	var sock modem.Socket
	err := m.do(ctx, "connect", func(ctx context.Context) error {
		if !m.engine.registered() {
			return fmt.Errorf("%w: radio is off (CFUN=%d)", modem.ErrTransport, m.engine.cfun)
		}
		if ep.Protocol.Secure() {
			if _, _, ok := m.PSK(ep.SecTag); !ok {
				return fmt.Errorf("%w: no credentials under sec tag %d", modem.ErrTransport, ep.SecTag)
			}
		}
		s, err := m.cfg.Dialer.Dial(ctx, ep)
		if err != nil {
			return modem.Wrap(modem.ErrTransport, "connect", err)
		}
		// The caller is gone and nobody will ever own s.
		if ctx.Err() != nil {
			_ = s.Close()
			return ctx.Err()
		}
		sock = s
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, modem.Wrap(modem.ErrTransport, "connect", err)
		}
		return nil, err
	}
	return sock, nil
}
