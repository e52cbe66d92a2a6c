// Package telemetry is the periodic sense-transmit loop and its payload.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	"github.com/autopeer-io/cellink/pkg/log"
)

// Board is the hardware the loop touches every cycle.
type Board interface {
	IndicatorOn() error
	IndicatorOff() error
	HasSensor() bool
	ReadSensor() (int64, error)
}

// SignalSource reports the current RSRP.
type SignalSource interface {
	SignalStrength(ctx context.Context) (int32, error)
}

// Config tunes the loop.
type Config struct {
	Interval        time.Duration
	TransmitTimeout time.Duration
	// Greeting is written once per cycle before the signal query. Empty
	// skips it.
	Greeting string
	DeviceID string
	BootID   string
	// Clock defaults to the real clock.
	Clock clock.WithTicker
}

// Loop runs the sense-transmit cycle on one task. It owns the socket and
// the payload for its whole life.
type Loop struct {
	cfg     Config
	socket  modem.Socket
	signal  SignalSource
	board   Board
	payload *Payload
	clock   clock.WithTicker
	cycle   int64
}

// NewLoop creates a loop writing to socket.
func NewLoop(cfg Config, socket modem.Socket, signal SignalSource, board Board, payload *Payload) *Loop {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Loop{
		cfg:     cfg,
		socket:  socket,
		signal:  signal,
		board:   board,
		payload: payload,
		clock:   clk,
	}
}

// Payload exposes the payload for inspection once the loop has stopped.
func (l *Loop) Payload() *Payload {
	return l.payload
}

// Run executes a cycle immediately and then one per tick. It returns nil
// when ctx is done and the first fatal error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	log.Info("Sense-transmit loop started", "interval", l.cfg.Interval, "transmitTimeout", l.cfg.TransmitTimeout)
	for {
		if err := l.Cycle(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			log.Info("Sense-transmit loop stopped", "cycles", l.cycle)
			return nil
		case <-ticker.C():
		}
	}
}

// Cycle runs one sense-transmit cycle.
func (l *Loop) Cycle(ctx context.Context) error {
	l.cycle++
	if err := l.board.IndicatorOn(); err != nil {
		log.Warn("Indicator on failed", "err", err)
	}
	defer func() {
		if err := l.board.IndicatorOff(); err != nil {
			log.Warn("Indicator off failed", "err", err)
		}
	}()

	l.sample()

	if l.cfg.Greeting != "" {
		if err := l.socket.Write(ctx, []byte(l.cfg.Greeting)); err != nil {
			return modem.Wrap(modem.ErrTransport, "write greeting", err)
		}
	}

	dbm, err := l.signal.SignalStrength(ctx)
	if err != nil {
		return fmt.Errorf("signal strength: %w", err)
	}
	metrics.SignalStrength.Set(float64(dbm))
	log.Info("Signal strength", "cycle", l.cycle, "rsrp", dbm)

	return l.transmit(ctx)
}

// sample pushes one sensor reading. A full payload drops the new sample.
func (l *Loop) sample() {
	if !l.board.HasSensor() {
		return
	}
	v, err := l.board.ReadSensor()
	if err != nil {
		log.Warn("Sensor read failed", "err", err)
		return
	}
	s := Sample{Value: v, Timestamp: l.clock.Now(), Aux: l.cycle}
	if err := l.payload.Push(s); err != nil {
		metrics.SamplesDropped.Inc()
		log.Warn("Sample dropped", "value", v, "err", err, "capacity", l.payload.Cap())
		return
	}
	metrics.PayloadSamples.Set(float64(l.payload.Len()))
}

// transmit writes the encoded payload under the configured bound. On
// timeout the write is cancelled and joined before returning, so the socket
// never has two writers.
func (l *Loop) transmit(ctx context.Context) error {
	frame, err := EncodeFrame(l.cfg.DeviceID, l.cfg.BootID, l.payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := l.clock.NewTimer(l.cfg.TransmitTimeout)
	defer timer.Stop()

	start := l.clock.Now()
	done := make(chan error, 1)
	go func() {
		done <- l.socket.Write(writeCtx, frame)
	}()

	select {
	case err := <-done:
		if err != nil {
			metrics.Transmits.WithLabelValues("failed").Inc()
			return modem.Wrap(modem.ErrTransport, "transmit", err)
		}
		l.delivered(len(frame), start)

	case <-timer.C():
		cancel()
		// A write that completed as the bound expired still delivered the
		// payload.
		if err := <-done; err == nil {
			l.delivered(len(frame), start)
			break
		}
		l.payload.RecordTimeout()
		metrics.Transmits.WithLabelValues("timeout").Inc()
		log.Warn("Transmit timed out", "bound", l.cfg.TransmitTimeout, "timeouts", l.payload.Timeouts())

	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}

	metrics.PayloadSamples.Set(float64(l.payload.Len()))
	metrics.PayloadTimeouts.Set(float64(l.payload.Timeouts()))
	return nil
}

func (l *Loop) delivered(bytes int, start time.Time) {
	metrics.Transmits.WithLabelValues("success").Inc()
	metrics.TransmitLatency.Observe(l.clock.Since(start).Seconds())
	log.Debug("Payload transmitted", "bytes", bytes, "samples", l.payload.Len())
	l.payload.Reset()
}
