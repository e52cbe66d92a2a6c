package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/cellink/cmd/cellink-telemetry/app"
)

func main() {
	app.NewApp().Run()
}
