package hal

import (
	"fmt"
	"slices"
	"sync"

	"github.com/autopeer-io/cellink/pkg/log"
)

// Peripherals present on the simulated board.
var simPeripherals = []string{"uart0", "uart1", "uart2", "spi0", "i2c0", "saadc"}

// SimBoard is an in-memory board. Its sensor reports a tank level that
// drains by one unit per sample and refills at zero.
type SimBoard struct {
	mu        sync.Mutex
	indicator bool
	toggles   int
	sensor    bool
	level     int64
	disabled  []string
}

var _ HAL = (*SimBoard)(nil)

// NewSimBoard creates a simulated board, with a sensor if sensor is set.
func NewSimBoard(sensor bool) *SimBoard {
	return &SimBoard{sensor: sensor, level: 100}
}

func (b *SimBoard) IndicatorOn() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indicator = true
	b.toggles++
	log.Debug("[HAL-Sim] Indicator on")
	return nil
}

func (b *SimBoard) IndicatorOff() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indicator = false
	log.Debug("[HAL-Sim] Indicator off")
	return nil
}

// Indicator reports the LED state and how many times it was switched on.
func (b *SimBoard) Indicator() (on bool, toggles int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indicator, b.toggles
}

func (b *SimBoard) HasSensor() bool { return b.sensor }

func (b *SimBoard) ReadSensor() (int64, error) {
	if !b.sensor {
		return 0, ErrNoSensor
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.level
	b.level--
	if b.level < 0 {
		b.level = 100
	}
	return v, nil
}

func (b *SimBoard) DisablePeripherals(names []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range names {
		if !slices.Contains(simPeripherals, n) {
			return fmt.Errorf("unknown peripheral %q", n)
		}
		if !slices.Contains(b.disabled, n) {
			b.disabled = append(b.disabled, n)
		}
		log.Info("[HAL-Sim] Peripheral disabled", "peripheral", n)
	}
	return nil
}

// Disabled returns the peripherals powered off so far.
func (b *SimBoard) Disabled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.disabled)
}
