// Package session sequences the bring-up of a modem session: interrupt
// bridge, peripheral configuration, modem init, credential provisioning and
// connect. Steps run strictly in that order on the calling task, and the
// first failure aborts every later step.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/cellink/internal/irq"
	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/cellink/internal/pkg/util/fsm"
)

// ErrAborted is returned for every step requested after a failed one.
var ErrAborted = errors.New("session aborted")

// Step names a lifecycle step.
type Step string

const (
	StepBridge      Step = "bridge"
	StepPeripherals Step = "peripherals"
	StepModemInit   Step = "modem-init"
	StepProvision   Step = "provision"
	StepConnect     Step = "connect"
)

// Credentials is a PSK credential set.
type Credentials struct {
	SecTag   uint32
	Identity string
	// Key is hex encoded.
	Key string
}

// PeripheralDisabler powers off unused peripherals.
type PeripheralDisabler interface {
	DisablePeripherals(names []string) error
}

// Lifecycle drives one session. It is not safe for concurrent use.
type Lifecycle struct {
	driver modem.Driver
	ctrl   irq.Installer
	waker  *irq.Waker
	board  PeripheralDisabler

	state  *fsm.FSM
	steps  []Step
	socket modem.Socket
	err    error
}

// New creates a lifecycle in the off phase.
func New(driver modem.Driver, ctrl irq.Installer, waker *irq.Waker, board PeripheralDisabler) *Lifecycle {
	l := &Lifecycle{
		driver: driver,
		ctrl:   ctrl,
		waker:  waker,
		board:  board,
	}
	l.state = l.newStateMachine()
	return l
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() string {
	return l.state.Current()
}

// Steps returns the steps executed so far, in order, including a failed one.
func (l *Lifecycle) Steps() []Step {
	return slices.Clone(l.steps)
}

// Err returns the error that failed the session, if any.
func (l *Lifecycle) Err() error {
	return l.err
}

// Socket returns the connected socket, or nil before Connect succeeds.
func (l *Lifecycle) Socket() modem.Socket {
	return l.socket
}

// Bridge installs the modem interrupt lines. It must precede every modem
// call.
func (l *Lifecycle) Bridge(ctx context.Context) error {
	return l.run(ctx, StepBridge, EventBridge)
}

// ConfigurePeripherals powers off the named peripherals.
func (l *Lifecycle) ConfigurePeripherals(ctx context.Context, names []string) error {
	return l.run(ctx, StepPeripherals, EventConfigure, slices.Clone(names))
}

// InitModem initializes the modem in the given system mode.
func (l *Lifecycle) InitModem(ctx context.Context, mode modem.SystemMode) error {
	return l.run(ctx, StepModemInit, EventInit, mode)
}

// Provision installs the credential set.
func (l *Lifecycle) Provision(ctx context.Context, creds Credentials) error {
	return l.run(ctx, StepProvision, EventProvision, creds)
}

// Connect opens the session socket.
func (l *Lifecycle) Connect(ctx context.Context, ep modem.Endpoint) (modem.Socket, error) {
	if err := l.run(ctx, StepConnect, EventConnect, ep); err != nil {
		return nil, err
	}
	return l.socket, nil
}

func (l *Lifecycle) lastStep() Step {
	if len(l.steps) == 0 {
		return ""
	}
	return l.steps[len(l.steps)-1]
}

func (l *Lifecycle) run(ctx context.Context, step Step, event string, args ...any) error {
	if l.state.Is(PhaseFailed) {
		metrics.SessionSteps.WithLabelValues(string(step), "aborted").Inc()
		return fmt.Errorf("%s: %w: %w", step, ErrAborted, l.err)
	}
	if !l.state.Can(event) {
		return fmt.Errorf("%s: not allowed in phase %s", step, l.state.Current())
	}

	l.steps = append(l.steps, step)
	if err := l.state.Event(ctx, event, args...); err != nil {
		cause := fmt.Errorf("%s: %w", step, fsmutil.Cause(err))
		_ = l.state.Event(context.Background(), EventFail, cause)
		return cause
	}
	metrics.SessionSteps.WithLabelValues(string(step), "ok").Inc()
	return nil
}
