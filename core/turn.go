package core

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// Turn states.
const (
	StateIdle      = "idle"
	StateStreaming = "streaming"
	StateSettled   = "settled"
	StateErrored   = "errored"
	StateAborted   = "aborted"
)

// Turn events.
const (
	EventStart  = "start"
	EventSettle = "settle"
	EventRetry  = "retry"
	EventFail   = "fail"
	EventAbort  = "abort"
)

// Turn tracks the lifecycle of one generation turn.
//
// A settled turn without an artifact may go back to streaming once through
// EventRetry; the controller enforces the single retry.
type Turn struct {
	ID        string
	MessageID string

	machine *fsm.FSM
	retries int
}

func newTurnMachine(logger *logrus.Entry) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateStreaming},
			{Name: EventSettle, Src: []string{StateStreaming}, Dst: StateSettled},
			{Name: EventRetry, Src: []string{StateSettled}, Dst: StateStreaming},
			{Name: EventFail, Src: []string{StateStreaming, StateSettled}, Dst: StateErrored},
			{Name: EventAbort, Src: []string{StateIdle, StateStreaming, StateSettled}, Dst: StateAborted},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.WithFields(logrus.Fields{
					"event": e.Event,
					"from":  e.Src,
					"to":    e.Dst,
				}).Debug("Turn state changed")
			},
		},
	)
}

// NewTurn returns a turn in the idle state.
func NewTurn(id, messageID string, logger *logrus.Entry) *Turn {
	return &Turn{
		ID:        id,
		MessageID: messageID,
		machine:   newTurnMachine(logger.WithField("turnId", id)),
	}
}

// State returns the current state.
func (t *Turn) State() string {
	return t.machine.Current()
}

// Retries returns how many retries the turn has used.
func (t *Turn) Retries() int {
	return t.retries
}

// Fire applies event. Transitions never depend on the request context, so an
// aborted request can still move the turn to its terminal state.
func (t *Turn) Fire(event string) error {
	if err := t.machine.Event(context.Background(), event); err != nil {
		return fmt.Errorf("turn %s: %s from %s: %w", t.ID, event, t.State(), err)
	}
	if event == EventRetry {
		t.retries++
	}
	return nil
}

// Terminal reports whether the turn reached a final state.
func (t *Turn) Terminal() bool {
	switch t.State() {
	case StateErrored, StateAborted:
		return true
	}
	return false
}
