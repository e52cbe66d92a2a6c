package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/cellink/cmd/cellink-telemetry/app/options"
	"github.com/autopeer-io/cellink/pkg/app"
	"github.com/autopeer-io/cellink/pkg/log"
)

const (
	commandName = "cellink-telemetry"
	commandDesc = `The cellink telemetry node brings up the modem, installs its PSK
credentials, connects to the configured endpoint and then samples and
transmits a payload on every tick. A transmit that exceeds its bound is
abandoned and counted in the next payload.`
)

func NewApp() *app.App {
	opts := options.NewTelemetryOptions()
	application := app.NewApp(
		commandName,
		"Launch a cellink sense-transmit node",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.TelemetryOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		dev, err := cfg.NewDevice()
		if err != nil {
			return fmt.Errorf("failed to create device: %w", err)
		}

		return dev.Run(ctx)
	}
}
