// Package hal is the board support used by the lifecycle and the
// sense-transmit loop: an indicator LED, an optional sensor and peripheral
// power control.
package hal

import (
	"errors"
	"fmt"

	"github.com/autopeer-io/cellink/pkg/options"
)

// ErrNoSensor is returned by ReadSensor on a board without a sensor.
var ErrNoSensor = errors.New("no sensor configured")

// HAL abstracts the board.
type HAL interface {
	IndicatorOn() error
	IndicatorOff() error

	// HasSensor reports whether ReadSensor can return samples.
	HasSensor() bool
	ReadSensor() (int64, error)

	// DisablePeripherals powers off the named peripherals.
	DisablePeripherals(names []string) error
}

// New returns the board selected by opts.
func New(opts *options.HalOptions) (HAL, error) {
	switch opts.Board {
	case options.BoardSim, "":
		return NewSimBoard(opts.Sensor), nil
	case options.BoardSysfs:
		return newSysfsBoard(opts)
	default:
		return nil, fmt.Errorf("unknown board %q", opts.Board)
	}
}
