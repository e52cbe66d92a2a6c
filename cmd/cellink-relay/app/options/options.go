package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/cellink/internal/device"
	"github.com/autopeer-io/cellink/pkg/app"
	"github.com/autopeer-io/cellink/pkg/log"
	genericoptions "github.com/autopeer-io/cellink/pkg/options"
)

type RelayOptions struct {
	Log   *log.Options                 `json:"log" mapstructure:"log"`
	Modem *genericoptions.ModemOptions `json:"modem" mapstructure:"modem"`
	Uart  *genericoptions.UartOptions  `json:"uart" mapstructure:"uart"`
	Hal   *genericoptions.HalOptions   `json:"hal" mapstructure:"hal"`
	Http  *genericoptions.HttpOptions  `json:"http" mapstructure:"http"`
}

var _ app.NamedFlagSetOptions = (*RelayOptions)(nil)

func NewRelayOptions() *RelayOptions {
	return &RelayOptions{
		Log:   log.NewOptions(),
		Modem: genericoptions.NewModemOptions(),
		Uart:  genericoptions.NewUartOptions(),
		Hal:   genericoptions.NewHalOptions(),
		Http:  genericoptions.NewHttpOptions(),
	}
}

func (o *RelayOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}

	o.Modem.AddFlags(fss.FlagSet("Modem"))
	o.Uart.AddFlags(fss.FlagSet("UART"))
	o.Hal.AddFlags(fss.FlagSet("Board"))
	o.Http.AddFlags(fss.FlagSet("HTTP"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

func (o *RelayOptions) Complete() error {
	return nil
}

func (o *RelayOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Modem.Validate()...)
	errs = append(errs, o.Uart.Validate()...)
	errs = append(errs, o.Hal.Validate()...)
	errs = append(errs, o.Http.Validate()...)

	return utilerrors.NewAggregate(errs)
}

func (o *RelayOptions) Config() (*device.Config, error) {
	return &device.Config{
		Mode:         device.ModeRelay,
		ModemOptions: o.Modem,
		UartOptions:  o.Uart,
		HalOptions:   o.Hal,
		HttpOptions:  o.Http,
	}, nil
}
