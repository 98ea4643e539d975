// Package tracking is the client side of live tracking: it follows one
// ride over the push channel, falls back to polling while the channel is
// down, and filters and smooths what it shows.
package tracking

import (
	"fmt"
	"sync"
)

// State is the connectivity state of a Client.
type State string

const (
	// StateDisconnected is the initial and final state. Nothing runs.
	StateDisconnected State = "DISCONNECTED"
	// StateConnected means the push channel is live and polling is stopped.
	StateConnected State = "CONNECTED"
	// StateReconnecting means the push channel is being (re)established
	// while polling keeps the view fresh.
	StateReconnecting State = "RECONNECTING"
	// StatePolling means reconnection gave up; polling is the only source
	// until Reconnect is called.
	StatePolling State = "POLLING"
)

// transitionTable lists the allowed edges.
var transitionTable = map[State][]State{
	StateDisconnected: {StateReconnecting},
	StateReconnecting: {StateConnected, StatePolling, StateDisconnected},
	StateConnected:    {StateReconnecting, StateDisconnected},
	StatePolling:      {StateReconnecting, StateDisconnected},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to State) bool {
	for _, s := range transitionTable[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PollingActive reports whether the poller must run in state s.
func PollingActive(s State) bool {
	return s == StateReconnecting || s == StatePolling
}

// StateMachine guards the connectivity state.
type StateMachine struct {
	mu       sync.Mutex
	state    State
	onChange func(from, to State)
}

// NewStateMachine starts in StateDisconnected. onChange may be nil and is
// called without the lock held.
func NewStateMachine(onChange func(from, to State)) *StateMachine {
	return &StateMachine{state: StateDisconnected, onChange: onChange}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to `to` if the edge exists.
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("tracking: invalid transition %s -> %s", from, to)
	}
	m.state = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}
