//go:build !linux

package hal

import (
	"fmt"
	"runtime"

	"github.com/autopeer-io/cellink/pkg/options"
)

func newSysfsBoard(*options.HalOptions) (HAL, error) {
	return nil, fmt.Errorf("sysfs board is not supported on %s", runtime.GOOS)
}
