// Package device is the composition root of the firmware. It wires the
// interrupt bridge, the simulated modem and the board together and runs
// either the command relay or the sense-transmit loop on one task.
package device

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/cellink/internal/hal"
	"github.com/autopeer-io/cellink/internal/irq"
	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/modem/sim"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	"github.com/autopeer-io/cellink/internal/relay"
	"github.com/autopeer-io/cellink/internal/session"
	"github.com/autopeer-io/cellink/internal/telemetry"
	"github.com/autopeer-io/cellink/internal/uart"
	"github.com/autopeer-io/cellink/pkg/log"
)

// Server is anything run alongside the task until the device stops.
type Server interface {
	Start(ctx context.Context) error
}

// serverFunc adapts a run loop to Server.
type serverFunc func(ctx context.Context) error

func (f serverFunc) Start(ctx context.Context) error { return f(ctx) }

type Device struct {
	cfg    *Config
	bootID string
	log    log.Logger

	ctrl      *irq.Controller
	waker     *irq.Waker
	modem     *sim.Modem
	board     hal.HAL
	lifecycle *session.Lifecycle
	metrics   *metrics.Server
	port      uart.Port
}

// BootID identifies this run in logs and payloads.
func (d *Device) BootID() string {
	return d.bootID
}

// Run starts the interrupt dispatcher, the co-processor and the optional
// metrics server, then runs the task. It returns nil when ctx is done and
// the task's error otherwise. Shutdown runs in both cases.
func (d *Device) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	servers := []Server{serverFunc(d.ctrl.Run), serverFunc(d.modem.Run)}
	if d.metrics != nil {
		servers = append(servers, d.metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	d.log.Info("Device starting", "servers", len(servers))

	g.Go(func() error {
		// The task ending stops every server.
		defer cancel()
		return d.task(gctx)
	})

	err := g.Wait()
	d.shutdown()
	if err != nil {
		d.log.Error(err, "Device stopped", "phase", d.lifecycle.Phase(), "steps", d.lifecycle.Steps())
		return err
	}
	d.log.Info("Device stopped", "phase", d.lifecycle.Phase())
	return nil
}

func (d *Device) task(ctx context.Context) error {
	var err error
	switch d.cfg.Mode {
	case ModeRelay:
		err = d.runRelay(ctx)
	case ModeTelemetry:
		err = d.runTelemetry(ctx)
	}
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (d *Device) runRelay(ctx context.Context) error {
	if err := d.lifecycle.Bridge(ctx); err != nil {
		return err
	}
	if err := d.lifecycle.InitModem(ctx, d.cfg.ModemOptions.SystemMode()); err != nil {
		return err
	}
	d.setReady(true)

	if d.port == nil {
		port, err := uart.Open(d.cfg.UartOptions)
		if err != nil {
			return err
		}
		d.port = port
	}
	r := relay.New(d.port, d.modem, d.cfg.UartOptions.BufferSize)
	d.log.Info("Command relay started", "device", d.cfg.UartOptions.Device)
	return r.Run(ctx)
}

func (d *Device) runTelemetry(ctx context.Context) error {
	if err := d.lifecycle.Bridge(ctx); err != nil {
		return err
	}
	if disable := d.cfg.HalOptions.Disable; len(disable) > 0 {
		if err := d.lifecycle.ConfigurePeripherals(ctx, disable); err != nil {
			return err
		}
	}
	if err := d.lifecycle.InitModem(ctx, d.cfg.ModemOptions.SystemMode()); err != nil {
		return err
	}

	// Credentials are installed whatever the protocol.
	creds := d.cfg.CredentialOptions
	if err := d.lifecycle.Provision(ctx, session.Credentials{
		SecTag:   creds.SecTag,
		Identity: creds.Identity,
		Key:      creds.Key,
	}); err != nil {
		return err
	}

	ep := d.cfg.endpoint()
	socket, err := d.lifecycle.Connect(ctx, ep)
	if err != nil {
		return err
	}
	d.setReady(true)
	d.log.Info("Connected", "endpoint", ep.String())

	opts := d.cfg.LoopOptions
	loop := telemetry.NewLoop(telemetry.Config{
		Interval:        opts.Interval,
		TransmitTimeout: opts.TransmitTimeout,
		Greeting:        opts.Greeting,
		DeviceID:        opts.DeviceID,
		BootID:          d.bootID,
	}, socket, d.modem, d.board, telemetry.NewPayload(opts.PayloadCapacity))
	return loop.Run(ctx)
}

func (d *Device) setReady(ready bool) {
	if d.metrics != nil {
		d.metrics.SetReady(ready)
	}
}

// shutdown leaves the board in a safe state: indicator off, socket and
// port closed, logs flushed.
func (d *Device) shutdown() {
	d.setReady(false)
	if err := d.board.IndicatorOff(); err != nil {
		d.log.Warn("Indicator off failed", "err", err)
	}
	if sock := d.lifecycle.Socket(); sock != nil {
		if err := sock.Close(); err != nil {
			d.log.Warn("Socket close failed", "err", err)
		}
	}
	if d.port != nil {
		if err := d.port.Close(); err != nil {
			d.log.Warn("Port close failed", "err", err)
		}
	}
	_ = d.log.Sync()
}

// Socket is the connected socket, or nil before connect.
func (d *Device) Socket() modem.Socket {
	return d.lifecycle.Socket()
}
