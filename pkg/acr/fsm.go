package acr

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// errTerminal is returned by transition for decisions on closed ACRs.
var errTerminal = errors.New("acr is closed")

func newMachine(current Status) *fsm.FSM {
	open := []string{string(StatusPending), string(StatusDiscuss)}
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: string(DecisionApprove), Src: open, Dst: string(StatusApproved)},
			{Name: string(DecisionReject), Src: open, Dst: string(StatusRejected)},
			{Name: string(DecisionDiscuss), Src: open, Dst: string(StatusDiscuss)},
		},
		fsm.Callbacks{},
	)
}

// transition applies d to an ACR in state from and returns the new state.
// A repeated discuss decision leaves the ACR in DISCUSS.
func transition(ctx context.Context, from Status, d Decision) (Status, error) {
	m := newMachine(from)
	if err := m.Event(ctx, string(d)); err != nil {
		var noop fsm.NoTransitionError
		if errors.As(err, &noop) {
			return from, nil
		}
		if from.Terminal() {
			return from, fmt.Errorf("%w: status is %s", errTerminal, from)
		}
		return from, fmt.Errorf("acr transition %s --%s--> : %w", from, d, err)
	}
	return Status(m.Current()), nil
}
