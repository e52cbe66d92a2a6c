//go:build linux

package hal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/autopeer-io/cellink/pkg/log"
	"github.com/autopeer-io/cellink/pkg/options"
)

// sysfsBoard drives the board through sysfs attributes.
type sysfsBoard struct {
	indicator      string
	sensor         string
	peripheralRoot string
}

func newSysfsBoard(opts *options.HalOptions) (HAL, error) {
	if _, err := os.Stat(opts.IndicatorPath); err != nil {
		return nil, fmt.Errorf("indicator: %w", err)
	}
	b := &sysfsBoard{
		indicator:      opts.IndicatorPath,
		peripheralRoot: opts.PeripheralRoot,
	}
	if opts.Sensor {
		b.sensor = opts.SensorPath
	}
	log.Info("[HAL-Sysfs] Board ready", "indicator", b.indicator, "sensor", b.sensor)
	return b, nil
}

func writeAttr(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func (b *sysfsBoard) IndicatorOn() error  { return writeAttr(b.indicator, "1") }
func (b *sysfsBoard) IndicatorOff() error { return writeAttr(b.indicator, "0") }

func (b *sysfsBoard) HasSensor() bool { return b.sensor != "" }

func (b *sysfsBoard) ReadSensor() (int64, error) {
	if b.sensor == "" {
		return 0, ErrNoSensor
	}
	data, err := os.ReadFile(b.sensor)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sensor %s: %w", b.sensor, err)
	}
	return v, nil
}

func (b *sysfsBoard) DisablePeripherals(names []string) error {
	for _, n := range names {
		if strings.ContainsAny(n, `/\`) || n == ".." {
			return fmt.Errorf("invalid peripheral name %q", n)
		}
		if err := writeAttr(filepath.Join(b.peripheralRoot, n, "power"), "0"); err != nil {
			return fmt.Errorf("disable %s: %w", n, err)
		}
		log.Info("[HAL-Sysfs] Peripheral disabled", "peripheral", n)
	}
	return nil
}
