package domain

import (
	"fmt"
	"sync"
)

// PanelState is the single state a panel is in at any time.
type PanelState string

const (
	StateIdle       PanelState = "idle"
	StateAnalyzing  PanelState = "analyzing"
	StateComposing  PanelState = "composing"
	StateDispatched PanelState = "dispatched"
	StateSuccess    PanelState = "success"
	StateFailed     PanelState = "failed"
)

var panelTransitions = map[PanelState][]PanelState{
	StateIdle:       {StateAnalyzing, StateComposing},
	StateAnalyzing:  {StateComposing, StateFailed},
	StateComposing:  {StateDispatched, StateIdle, StateFailed},
	StateDispatched: {StateSuccess, StateFailed},
	StateSuccess:    {StateIdle, StateAnalyzing, StateComposing},
	StateFailed:     {StateIdle, StateAnalyzing, StateComposing},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to PanelState) bool {
	for _, next := range panelTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a cycle.
func (s PanelState) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// PanelMachine tracks one panel's state. It is safe for concurrent use.
type PanelMachine struct {
	mu      sync.Mutex
	state   PanelState
	lastErr error
	history []PanelState
}

// NewPanelMachine returns a machine in the idle state.
func NewPanelMachine() *PanelMachine {
	return &PanelMachine{state: StateIdle, history: []PanelState{StateIdle}}
}

// State returns the current state.
func (m *PanelMachine) State() PanelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error recorded by the last Fail.
func (m *PanelMachine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// History returns every state visited, oldest first.
func (m *PanelMachine) History() []PanelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PanelState, len(m.history))
	copy(out, m.history)
	return out
}

// To moves the machine to next.
func (m *PanelMachine) To(next PanelState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
	}
	m.state = next
	if next != StateFailed {
		m.lastErr = nil
	}
	m.history = append(m.history, next)
	return nil
}

// Fail moves the machine to failed and records cause.
func (m *PanelMachine) Fail(cause error) error {
	if err := m.To(StateFailed); err != nil {
		return err
	}
	m.mu.Lock()
	m.lastErr = cause
	m.mu.Unlock()
	return nil
}
