// Package irq models the interrupt side of the link controller.
//
// A Controller plays the role of the nested vectored interrupt controller:
// lines are installed with a priority and a handler, asserted with Pend, and
// serviced by Run in priority order. Handlers execute in interrupt context,
// which here is the Run goroutine; they must do a bounded amount of work and
// hand everything else to the task through a Waker.
package irq

import (
	"errors"
	"fmt"
)

// Line identifies a hardware interrupt source by its IRQ number.
type Line uint8

const (
	// LineApplication is the modem library's application event line
	// (EGU1 on the reference part).
	LineApplication Line = 21

	// LineIPC carries inter-processor mailbox events from the modem core.
	LineIPC Line = 42

	maxLines = 64
)

func (l Line) String() string {
	switch l {
	case LineApplication:
		return "application"
	case LineIPC:
		return "ipc"
	default:
		return fmt.Sprintf("irq%d", uint8(l))
	}
}

// Priority orders lines. Lower values are more urgent.
type Priority uint8

const (
	P0 Priority = iota
	P1
	P2
	P3
	P4
	P5
	P6
	P7
)

func (p Priority) String() string { return fmt.Sprintf("P%d", uint8(p)) }

// Handler runs in interrupt context.
type Handler func()

var (
	ErrLineInstalled  = errors.New("irq: line already installed")
	ErrLineOutOfRange = errors.New("irq: line out of range")
	ErrNilHandler     = errors.New("irq: nil handler")
	ErrPriority       = errors.New("irq: invalid priority")
)
