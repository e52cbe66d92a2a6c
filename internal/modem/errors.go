package modem

import (
	"errors"
	"fmt"
)

// Error taxonomy of the modem boundary. Driver implementations wrap their
// underlying cause with one of these so callers can classify with errors.Is.
var (
	ErrModemInit      = errors.New("modem init failed")
	ErrProvisioning   = errors.New("credential provisioning failed")
	ErrTransport      = errors.New("transport failure")
	ErrEngine         = errors.New("command engine failure")
	ErrNotInitialized = errors.New("modem not initialized")
)

// Wrap tags err with kind unless it already carries it.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
