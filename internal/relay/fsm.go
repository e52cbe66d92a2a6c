package relay

import (
	"github.com/looplab/fsm"
)

// Relay states.
const (
	StateWaiting     = "waiting"
	StateDispatching = "dispatching"
	StateWriting     = "writing"
	StateFailed      = "failed"
)

const (
	// EventFrame moves a captured, non-empty frame to the engine.
	EventFrame = "frame"
	// EventRespond hands the engine response to the host link.
	EventRespond = "respond"
	// EventWritten returns to waiting once the response is out.
	EventWritten = "written"
	// EventFail stops the relay.
	EventFail = "fail"
)

func newStateMachine() *fsm.FSM {
	return fsm.NewFSM(StateWaiting,
		fsm.Events{
			{Name: EventFrame, Src: []string{StateWaiting}, Dst: StateDispatching},
			{Name: EventRespond, Src: []string{StateDispatching}, Dst: StateWriting},
			{Name: EventWritten, Src: []string{StateWriting}, Dst: StateWaiting},
			{Name: EventFail, Src: []string{StateWaiting, StateDispatching, StateWriting}, Dst: StateFailed},
		},
		fsm.Callbacks{},
	)
}
