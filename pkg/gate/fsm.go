package gate

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	eventStart = "start"
	eventPass  = "pass"
	eventFail  = "fail"
)

// evaluation tracks NOT_STARTED -> RUNNING -> PASSED | FAILED for one run.
type evaluation struct {
	machine *fsm.FSM
}

func newEvaluation() *evaluation {
	return &evaluation{machine: fsm.NewFSM(
		string(StateNotStarted),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateNotStarted)}, Dst: string(StateRunning)},
			{Name: eventPass, Src: []string{string(StateRunning)}, Dst: string(StatePassed)},
			{Name: eventFail, Src: []string{string(StateRunning)}, Dst: string(StateFailed)},
		},
		fsm.Callbacks{},
	)}
}

func (e *evaluation) fire(ctx context.Context, event string) error {
	if err := e.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("gate: evaluation %s from %s: %w", event, e.machine.Current(), err)
	}
	return nil
}

func (e *evaluation) state() State { return State(e.machine.Current()) }
