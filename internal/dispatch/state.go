package dispatch

import (
	"fmt"
	"time"
)

// State is a phase of a single dispatch.
type State string

const (
	StateResolving  State = "RESOLVING"
	StateDelivering State = "DELIVERING"
	StateLogging    State = "LOGGING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var allowedTransitions = map[State][]State{
	StateResolving:  {StateDelivering, StateFailed},
	StateDelivering: {StateLogging, StateFailed},
	StateLogging:    {StateDone, StateFailed},
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

type stateMachine struct {
	current     State
	transitions []Transition
	now         func() time.Time
}

func newStateMachine(now func() time.Time) *stateMachine {
	return &stateMachine{current: StateResolving, now: now}
}

func (m *stateMachine) advance(to State) error {
	for _, next := range allowedTransitions[m.current] {
		if next == to {
			m.transitions = append(m.transitions, Transition{From: m.current, To: to, At: m.now()})
			m.current = to
			return nil
		}
	}
	return fmt.Errorf("illegal dispatch transition %s -> %s", m.current, to)
}

// fail moves to FAILED from any non-terminal state.
func (m *stateMachine) fail() {
	if m.current.Terminal() {
		return
	}
	_ = m.advance(StateFailed)
}
