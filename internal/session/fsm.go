package session

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/cellink/internal/irq"
	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/cellink/internal/pkg/util/fsm"
	"github.com/autopeer-io/cellink/pkg/log"
)

// Phases of a session.
const (
	PhaseOff         = "off"
	PhaseBridged     = "bridged"
	PhaseConfigured  = "configured"
	PhaseReady       = "ready"
	PhaseProvisioned = "provisioned"
	PhaseConnected   = "connected"
	PhaseFailed      = "failed"
)

// Events, one per lifecycle step plus fail.
const (
	EventBridge    = "bridge"
	EventConfigure = "configure"
	EventInit      = "init"
	EventProvision = "provision"
	EventConnect   = "connect"
	EventFail      = "fail"
)

func (l *Lifecycle) newStateMachine() *fsm.FSM {
	events := fsm.Events{
		{Name: EventBridge, Src: []string{PhaseOff}, Dst: PhaseBridged},
		{Name: EventConfigure, Src: []string{PhaseBridged}, Dst: PhaseConfigured},
		{Name: EventInit, Src: []string{PhaseBridged, PhaseConfigured}, Dst: PhaseReady},
		{Name: EventProvision, Src: []string{PhaseReady}, Dst: PhaseProvisioned},
		{Name: EventConnect, Src: []string{PhaseReady, PhaseProvisioned}, Dst: PhaseConnected},
		{Name: EventFail, Src: []string{PhaseOff, PhaseBridged, PhaseConfigured, PhaseReady, PhaseProvisioned, PhaseConnected}, Dst: PhaseFailed},
	}

	callbacks := fsm.Callbacks{
		// Guards (before_...): run the step; an error cancels the transition.
		"before_" + EventBridge:    fsmutil.Guard(l.guardBridge),
		"before_" + EventConfigure: fsmutil.Guard(l.guardConfigure),
		"before_" + EventInit:      fsmutil.Guard(l.guardInit),
		"before_" + EventProvision: fsmutil.Guard(l.guardProvision),
		"before_" + EventConnect:   fsmutil.Guard(l.guardConnect),

		// Side-effects (enter_...).
		"enter_state":          fsmutil.WrapEvent(l.actionEnterState),
		"enter_" + PhaseFailed: fsmutil.WrapEvent(l.actionEnterFailed),
	}

	return fsm.NewFSM(PhaseOff, events, callbacks)
}

func (l *Lifecycle) guardBridge(ctx context.Context, e *fsm.Event) error {
	return irq.InstallModemLines(l.ctrl, l.driver, l.waker)
}

func (l *Lifecycle) guardConfigure(ctx context.Context, e *fsm.Event) error {
	names := e.Args[0].([]string)
	if err := l.board.DisablePeripherals(names); err != nil {
		return fmt.Errorf("disable peripherals: %w", err)
	}
	return nil
}

func (l *Lifecycle) guardInit(ctx context.Context, e *fsm.Event) error {
	return l.driver.Init(ctx, e.Args[0].(modem.SystemMode))
}

func (l *Lifecycle) guardProvision(ctx context.Context, e *fsm.Event) error {
	c := e.Args[0].(Credentials)
	if err := l.driver.InstallPSK(ctx, c.SecTag, c.Identity, c.Key); err != nil {
		return modem.Wrap(modem.ErrProvisioning, "provision", err)
	}
	return nil
}

// guardConnect refuses a secure connect before credentials are in place.
func (l *Lifecycle) guardConnect(ctx context.Context, e *fsm.Event) error {
	ep := e.Args[0].(modem.Endpoint)
	if ep.Protocol.Secure() && e.Src != PhaseProvisioned {
		return fmt.Errorf("%w: %s endpoint needs credentials installed first", modem.ErrTransport, ep.Protocol)
	}
	sock, err := l.driver.Connect(ctx, ep)
	if err != nil {
		return modem.Wrap(modem.ErrTransport, "connect", err)
	}
	l.socket = sock
	return nil
}

func (l *Lifecycle) actionEnterState(ctx context.Context, e *fsm.Event) error {
	log.Info("Session phase changed", "from", e.Src, "to", e.Dst, "event", e.Event)
	return nil
}

func (l *Lifecycle) actionEnterFailed(ctx context.Context, e *fsm.Event) error {
	if len(e.Args) > 0 {
		if err, ok := e.Args[0].(error); ok {
			l.err = err
		}
	}
	metrics.SessionSteps.WithLabelValues(string(l.lastStep()), "failed").Inc()
	return nil
}
