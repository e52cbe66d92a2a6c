package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/cellink/internal/device"
	"github.com/autopeer-io/cellink/pkg/app"
	"github.com/autopeer-io/cellink/pkg/log"
	genericoptions "github.com/autopeer-io/cellink/pkg/options"
)

type TelemetryOptions struct {
	Log         *log.Options                      `json:"log" mapstructure:"log"`
	Modem       *genericoptions.ModemOptions      `json:"modem" mapstructure:"modem"`
	Transport   *genericoptions.TransportOptions  `json:"transport" mapstructure:"transport"`
	Credentials *genericoptions.CredentialOptions `json:"credentials" mapstructure:"credentials"`
	Loop        *genericoptions.LoopOptions       `json:"loop" mapstructure:"loop"`
	Hal         *genericoptions.HalOptions        `json:"hal" mapstructure:"hal"`
	Http        *genericoptions.HttpOptions       `json:"http" mapstructure:"http"`
	Mqtt        *genericoptions.MqttOptions       `json:"mqtt" mapstructure:"mqtt"`
}

var _ app.NamedFlagSetOptions = (*TelemetryOptions)(nil)

// NewTelemetryOptions returns the telemetry image defaults: LTE-M with power
// saving and no NB-IoT, the two host UARTs powered off and the sensor
// sampled every tick.
func NewTelemetryOptions() *TelemetryOptions {
	o := &TelemetryOptions{
		Log:         log.NewOptions(),
		Modem:       genericoptions.NewModemOptions(),
		Transport:   genericoptions.NewTransportOptions(),
		Credentials: genericoptions.NewCredentialOptions(),
		Loop:        genericoptions.NewLoopOptions(),
		Hal:         genericoptions.NewHalOptions(),
		Http:        genericoptions.NewHttpOptions(),
		Mqtt:        genericoptions.NewMqttOptions(),
	}
	o.Modem.LTEPSM = true
	o.Modem.NBIoT = false
	o.Hal.Disable = []string{"uart0", "uart1"}
	o.Hal.Sensor = true

	return o
}

func (o *TelemetryOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}

	o.Modem.AddFlags(fss.FlagSet("Modem"))
	o.Transport.AddFlags(fss.FlagSet("Transport"))
	o.Credentials.AddFlags(fss.FlagSet("Credentials"))
	o.Loop.AddFlags(fss.FlagSet("Loop"))
	o.Hal.AddFlags(fss.FlagSet("Board"))
	o.Mqtt.AddFlags(fss.FlagSet("MQTT"))
	o.Http.AddFlags(fss.FlagSet("HTTP"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

func (o *TelemetryOptions) Complete() error {
	// The broker client id defaults to the device id.
	if o.Mqtt.ClientID == "" {
		o.Mqtt.ClientID = o.Loop.DeviceID
	}
	return nil
}

func (o *TelemetryOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Modem.Validate()...)
	errs = append(errs, o.Transport.Validate()...)
	errs = append(errs, o.Credentials.Validate()...)
	errs = append(errs, o.Loop.Validate()...)
	errs = append(errs, o.Hal.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)

	return utilerrors.NewAggregate(errs)
}

func (o *TelemetryOptions) Config() (*device.Config, error) {
	return &device.Config{
		Mode:              device.ModeTelemetry,
		ModemOptions:      o.Modem,
		TransportOptions:  o.Transport,
		CredentialOptions: o.Credentials,
		LoopOptions:       o.Loop,
		HalOptions:        o.Hal,
		HttpOptions:       o.Http,
		MqttOptions:       o.Mqtt,
	}, nil
}
