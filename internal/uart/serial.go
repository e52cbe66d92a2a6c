package uart

import (
	"context"
	"errors"
	"fmt"

	"github.com/goburrow/serial"

	"github.com/autopeer-io/cellink/pkg/log"
	"github.com/autopeer-io/cellink/pkg/options"
)

// serialPort drives a tty. The read timeout of the port doubles as the
// idle gap.
type serialPort struct {
	port   serial.Port
	device string
}

var _ Port = (*serialPort)(nil)

func openSerial(opts *options.UartOptions) (*serialPort, error) {
	p, err := serial.Open(&serial.Config{
		Address:  opts.Device,
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: opts.StopBits,
		Parity:   opts.Parity,
		Timeout:  opts.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Serial port opened", "device", opts.Device, "baud", opts.BaudRate)
	return &serialPort{port: p, device: opts.Device}, nil
}

func (s *serialPort) ReadUntilIdle(ctx context.Context, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		m, err := s.port.Read(buf[n:])
		n += m
		if errors.Is(err, serial.ErrTimeout) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%w: read %s: %w", ErrUart, s.device, err)
		}
	}
	return n, nil
}

func (s *serialPort) Write(ctx context.Context, b []byte) error {
	for len(b) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := s.port.Write(b)
		if err != nil {
			return fmt.Errorf("%w: write %s: %w", ErrUart, s.device, err)
		}
		b = b[m:]
	}
	return nil
}

func (s *serialPort) Close() error {
	return s.port.Close()
}
