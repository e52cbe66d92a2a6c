package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HalOptions)(nil)

// Boards understood by the hal package.
const (
	BoardSim   = "sim"
	BoardSysfs = "sysfs"
)

// HalOptions selects the board and locates its peripherals. The sysfs board
// is only available on Linux.
type HalOptions struct {
	Board string `json:"board" mapstructure:"board"`

	// IndicatorPath is the LED brightness attribute.
	IndicatorPath string `json:"indicator-path" mapstructure:"indicator-path"`

	// Sensor enables one sample per cycle.
	Sensor bool `json:"sensor" mapstructure:"sensor"`

	// SensorPath is an integer attribute read on the sysfs board.
	SensorPath string `json:"sensor-path" mapstructure:"sensor-path"`

	// PeripheralRoot holds one directory per peripheral with a "power"
	// attribute.
	PeripheralRoot string `json:"peripheral-root" mapstructure:"peripheral-root"`

	// Disable lists the peripherals switched off before modem init.
	Disable []string `json:"disable" mapstructure:"disable"`
}

// NewHalOptions creates a HalOptions for the simulated board with no
// peripherals disabled.
func NewHalOptions() *HalOptions {
	return &HalOptions{
		Board:          BoardSim,
		IndicatorPath:  "/sys/class/leds/led0/brightness",
		SensorPath:     "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
		PeripheralRoot: "/sys/devices/platform/cellink",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HalOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Board {
	case BoardSim:
	case BoardSysfs:
		if o.IndicatorPath == "" {
			errors = append(errors, fmt.Errorf("hal.indicator-path is required on the sysfs board"))
		}
		if o.Sensor && o.SensorPath == "" {
			errors = append(errors, fmt.Errorf("hal.sensor-path is required when sampling on the sysfs board"))
		}
		if len(o.Disable) > 0 && o.PeripheralRoot == "" {
			errors = append(errors, fmt.Errorf("hal.peripheral-root is required to disable peripherals"))
		}
	default:
		errors = append(errors, fmt.Errorf("hal.board must be %q or %q, got %q", BoardSim, BoardSysfs, o.Board))
	}

	return errors
}

// AddFlags adds flags for HalOptions to the specified FlagSet.
func (o *HalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Board, "hal.board", o.Board, "Board implementation: sim or sysfs.")
	fs.StringVar(&o.IndicatorPath, "hal.indicator-path", o.IndicatorPath, "Indicator LED brightness attribute (sysfs board).")
	fs.BoolVar(&o.Sensor, "hal.sensor", o.Sensor, "Sample the sensor once per cycle.")
	fs.StringVar(&o.SensorPath, "hal.sensor-path", o.SensorPath, "Sensor attribute (sysfs board).")
	fs.StringVar(&o.PeripheralRoot, "hal.peripheral-root", o.PeripheralRoot, "Directory holding one entry per peripheral (sysfs board).")
	fs.StringSliceVar(&o.Disable, "hal.disable", o.Disable, "Peripherals to power off before modem init.")
}
