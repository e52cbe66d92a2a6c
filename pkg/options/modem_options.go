package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/cellink/internal/modem"
)

var _ IOptions = (*ModemOptions)(nil)

// ModemOptions selects the system mode requested at init and tunes the
// co-processor.
type ModemOptions struct {
	LTE        bool   `json:"lte" mapstructure:"lte"`
	LTEPSM     bool   `json:"lte-psm" mapstructure:"lte-psm"`
	NBIoT      bool   `json:"nbiot" mapstructure:"nbiot"`
	GNSS       bool   `json:"gnss" mapstructure:"gnss"`
	Preference string `json:"preference" mapstructure:"preference"`

	// InitTimeout bounds the wait for the co-processor ready report.
	InitTimeout time.Duration `json:"init-timeout" mapstructure:"init-timeout"`

	// ReadyDelay is how long the co-processor takes to come up after the
	// system mode is written.
	ReadyDelay time.Duration `json:"ready-delay" mapstructure:"ready-delay"`

	// ResponseBuffer is the size of the AT response buffer.
	ResponseBuffer int `json:"response-buffer" mapstructure:"response-buffer"`

	// IMEI reported by AT+CGSN.
	IMEI string `json:"imei" mapstructure:"imei"`
}

// NewModemOptions returns the relay's system mode: LTE-M and NB-IoT
// enabled, GNSS disabled, LTE preferred.
func NewModemOptions() *ModemOptions {
	return &ModemOptions{
		LTE:            true,
		NBIoT:          true,
		Preference:     string(modem.PreferLTE),
		InitTimeout:    30 * time.Second,
		ReadyDelay:     50 * time.Millisecond,
		ResponseBuffer: 1024,
		IMEI:           "352656100000001",
	}
}

// SystemMode converts the flags into the mode passed to Init.
func (o *ModemOptions) SystemMode() modem.SystemMode {
	return modem.SystemMode{
		LTE:        o.LTE,
		LTEPSM:     o.LTEPSM,
		NBIoT:      o.NBIoT,
		GNSS:       o.GNSS,
		Preference: modem.ConnectionPreference(o.Preference),
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ModemOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := o.SystemMode().Validate(); err != nil {
		errors = append(errors, fmt.Errorf("modem: %w", err))
	}
	if o.InitTimeout <= 0 {
		errors = append(errors, fmt.Errorf("modem.init-timeout must be positive"))
	}
	if o.ResponseBuffer < 16 {
		errors = append(errors, fmt.Errorf("modem.response-buffer must be at least 16 bytes"))
	}

	return errors
}

// AddFlags adds flags for ModemOptions to the specified FlagSet.
func (o *ModemOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.LTE, "modem.lte", o.LTE, "Enable LTE-M.")
	fs.BoolVar(&o.LTEPSM, "modem.lte-psm", o.LTEPSM, "Enable LTE power saving mode.")
	fs.BoolVar(&o.NBIoT, "modem.nbiot", o.NBIoT, "Enable NB-IoT.")
	fs.BoolVar(&o.GNSS, "modem.gnss", o.GNSS, "Enable GNSS.")
	fs.StringVar(&o.Preference, "modem.preference", o.Preference, "Connection preference: none, lte, nbiot or network.")
	fs.DurationVar(&o.InitTimeout, "modem.init-timeout", o.InitTimeout, "How long to wait for the modem to report ready.")
	fs.DurationVar(&o.ReadyDelay, "modem.ready-delay", o.ReadyDelay, "Simulated co-processor start-up time.")
	fs.IntVar(&o.ResponseBuffer, "modem.response-buffer", o.ResponseBuffer, "Size of the AT response buffer in bytes.")
	fs.StringVar(&o.IMEI, "modem.imei", o.IMEI, "IMEI reported by the simulated co-processor.")
}
