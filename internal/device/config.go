package device

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/autopeer-io/cellink/internal/hal"
	"github.com/autopeer-io/cellink/internal/irq"
	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/modem/sim"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	"github.com/autopeer-io/cellink/internal/session"
	"github.com/autopeer-io/cellink/internal/transport"
	"github.com/autopeer-io/cellink/pkg/log"
	"github.com/autopeer-io/cellink/pkg/options"
)

// Mode selects what the task does once the modem is up.
type Mode string

const (
	// ModeRelay forwards AT commands between the UART and the modem.
	ModeRelay Mode = "relay"
	// ModeTelemetry provisions credentials, connects and runs the
	// sense-transmit loop.
	ModeTelemetry Mode = "telemetry"
)

type Config struct {
	Mode Mode

	ModemOptions      *options.ModemOptions
	UartOptions       *options.UartOptions
	TransportOptions  *options.TransportOptions
	CredentialOptions *options.CredentialOptions
	LoopOptions       *options.LoopOptions
	HalOptions        *options.HalOptions
	HttpOptions       *options.HttpOptions
	MqttOptions       *options.MqttOptions
}

// NewDevice builds the shared setup: interrupt controller, waker, modem,
// board and lifecycle. Nothing runs until Device.Run.
func (cfg *Config) NewDevice() (*Device, error) {
	if cfg.Mode != ModeRelay && cfg.Mode != ModeTelemetry {
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	bootID := uuid.NewString()
	logger := log.WithValues("mode", string(cfg.Mode), "boot", bootID)

	board, err := hal.New(cfg.HalOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to init board: %w", err)
	}

	ctrl := irq.NewController()
	waker := irq.NewWaker()
	m := sim.New(sim.Config{
		ReadyDelay:     cfg.ModemOptions.ReadyDelay,
		InitTimeout:    cfg.ModemOptions.InitTimeout,
		ResponseBuffer: cfg.ModemOptions.ResponseBuffer,
		IMEI:           cfg.ModemOptions.IMEI,
	}, ctrl, waker)
	if cfg.Mode == ModeTelemetry {
		m.SetDialer(&transport.Dialer{
			Timeout:  cfg.TransportOptions.DialTimeout,
			Keys:     m,
			Mqtt:     cfg.MqttOptions,
			DeviceID: cfg.LoopOptions.DeviceID,
		})
	}

	d := &Device{
		cfg:       cfg,
		bootID:    bootID,
		log:       logger,
		ctrl:      ctrl,
		waker:     waker,
		modem:     m,
		board:     board,
		lifecycle: session.New(m, countingInstaller{ctrl}, waker, board),
	}

	if cfg.HttpOptions != nil && cfg.HttpOptions.Enabled() {
		d.metrics = metrics.NewServer(cfg.HttpOptions)
	}

	return d, nil
}

// endpoint is the remote the telemetry image connects to. The mqtt
// protocol dials the configured broker.
func (cfg *Config) endpoint() modem.Endpoint {
	ep := cfg.TransportOptions.Endpoint(cfg.CredentialOptions.SecTag)
	if ep.Protocol == modem.ProtocolMQTT && cfg.MqttOptions != nil {
		ep.Address = cfg.MqttOptions.Broker
	}
	return ep
}

// countingInstaller counts every handler invocation per line.
type countingInstaller struct {
	irq.Installer
}

func (c countingInstaller) Install(line irq.Line, prio irq.Priority, handler irq.Handler) error {
	serviced := metrics.IRQServiced.WithLabelValues(line.String())
	return c.Installer.Install(line, prio, func() {
		handler()
		serviced.Inc()
	})
}
