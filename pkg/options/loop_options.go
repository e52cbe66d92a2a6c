package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*LoopOptions)(nil)

// A frame body length is a u16. A sample encodes to at most 35 bytes and the
// identities plus the timeout counter to at most 302, so these bounds keep a
// full payload well inside one frame.
const (
	MaxPayloadCapacity = 1024
	MaxDeviceIDLength  = 255
)

// LoopOptions tunes the sense-transmit loop.
type LoopOptions struct {
	DeviceID        string        `json:"device-id" mapstructure:"device-id"`
	Interval        time.Duration `json:"interval" mapstructure:"interval"`
	TransmitTimeout time.Duration `json:"transmit-timeout" mapstructure:"transmit-timeout"`
	Greeting        string        `json:"greeting" mapstructure:"greeting"`
	PayloadCapacity int           `json:"payload-capacity" mapstructure:"payload-capacity"`
}

// NewLoopOptions returns a 5 s tick and a 180 s transmit bound.
func NewLoopOptions() *LoopOptions {
	return &LoopOptions{
		DeviceID:        "cellink-node",
		Interval:        5 * time.Second,
		TransmitTimeout: 180 * time.Second,
		Greeting:        "Hello from cellink!\n",
		PayloadCapacity: 64,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *LoopOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.DeviceID == "" {
		errors = append(errors, fmt.Errorf("loop.device-id is required"))
	}
	if len(o.DeviceID) > MaxDeviceIDLength {
		errors = append(errors, fmt.Errorf("loop.device-id must be at most %d bytes", MaxDeviceIDLength))
	}
	if o.Interval <= 0 {
		errors = append(errors, fmt.Errorf("loop.interval must be positive"))
	}
	if o.TransmitTimeout <= 0 {
		errors = append(errors, fmt.Errorf("loop.transmit-timeout must be positive"))
	}
	if o.PayloadCapacity <= 0 || o.PayloadCapacity > MaxPayloadCapacity {
		errors = append(errors, fmt.Errorf("loop.payload-capacity must be between 1 and %d", MaxPayloadCapacity))
	}

	return errors
}

// AddFlags adds flags for LoopOptions to the specified FlagSet.
func (o *LoopOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DeviceID, "loop.device-id", o.DeviceID, "Device identifier carried in every payload.")
	fs.DurationVar(&o.Interval, "loop.interval", o.Interval, "Sense-transmit tick interval.")
	fs.DurationVar(&o.TransmitTimeout, "loop.transmit-timeout", o.TransmitTimeout, "Upper bound of one payload transmit.")
	fs.StringVar(&o.Greeting, "loop.greeting", o.Greeting, "Line written over the socket every cycle. Empty disables it.")
	fs.IntVar(&o.PayloadCapacity, "loop.payload-capacity", o.PayloadCapacity, "Maximum number of samples held in the payload.")
}
