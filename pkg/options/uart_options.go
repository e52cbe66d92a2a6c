package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*UartOptions)(nil)

// UartOptions configures the host-facing serial port of the relay.
type UartOptions struct {
	// Device is the serial device path. "-" uses stdin and stdout.
	Device   string `json:"device" mapstructure:"device"`
	BaudRate int    `json:"baud-rate" mapstructure:"baud-rate"`
	DataBits int    `json:"data-bits" mapstructure:"data-bits"`
	StopBits int    `json:"stop-bits" mapstructure:"stop-bits"`
	Parity   string `json:"parity" mapstructure:"parity"`

	// IdleTimeout is the line-idle gap that terminates one frame.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	// BufferSize is the capacity of the command frame buffer.
	BufferSize int `json:"buffer-size" mapstructure:"buffer-size"`
}

// NewUartOptions creates a UartOptions with the relay's defaults.
func NewUartOptions() *UartOptions {
	return &UartOptions{
		Device:      "-",
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		IdleTimeout: 100 * time.Millisecond,
		BufferSize:  1024,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *UartOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Device == "" {
		errors = append(errors, fmt.Errorf("uart.device is required"))
	}
	if o.BaudRate <= 0 {
		errors = append(errors, fmt.Errorf("uart.baud-rate must be positive"))
	}
	switch o.Parity {
	case "N", "E", "O":
	default:
		errors = append(errors, fmt.Errorf("uart.parity must be N, E or O"))
	}
	if o.IdleTimeout <= 0 {
		errors = append(errors, fmt.Errorf("uart.idle-timeout must be positive"))
	}
	if o.BufferSize <= 0 {
		errors = append(errors, fmt.Errorf("uart.buffer-size must be positive"))
	}

	return errors
}

// AddFlags adds flags for UartOptions to the specified FlagSet.
func (o *UartOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Device, "uart.device", o.Device, "Serial device of the host terminal, or - for stdin/stdout.")
	fs.IntVar(&o.BaudRate, "uart.baud-rate", o.BaudRate, "Serial baud rate.")
	fs.IntVar(&o.DataBits, "uart.data-bits", o.DataBits, "Serial data bits.")
	fs.IntVar(&o.StopBits, "uart.stop-bits", o.StopBits, "Serial stop bits.")
	fs.StringVar(&o.Parity, "uart.parity", o.Parity, "Serial parity: N, E or O.")
	fs.DurationVar(&o.IdleTimeout, "uart.idle-timeout", o.IdleTimeout, "Line idle gap that ends one command frame.")
	fs.IntVar(&o.BufferSize, "uart.buffer-size", o.BufferSize, "Command frame buffer size in bytes.")
}
