package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/cellink/cmd/cellink-relay/app/options"
	"github.com/autopeer-io/cellink/pkg/app"
	"github.com/autopeer-io/cellink/pkg/log"
)

const (
	commandName = "cellink-relay"
	commandDesc = `The cellink relay brings up the modem and forwards AT commands between a
host terminal on the UART and the modem, writing every response back
verbatim. It never connects to the network on its own.`
)

func NewApp() *app.App {
	opts := options.NewRelayOptions()
	application := app.NewApp(
		commandName,
		"Launch a cellink AT command relay",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.RelayOptions) app.RunFunc {
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
