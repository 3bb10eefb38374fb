package app

import (
	"sync"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
)

// State represents the lifecycle state of a capture session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateCompleting
	StateRestarting
	StateAborting
	StateDraining
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateCompleting:
		return "Completing"
	case StateRestarting:
		return "Restarting"
	case StateAborting:
		return "Aborting"
	case StateDraining:
		return "Draining"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// validTransitions captures the session state machine. A restart loops
// back through Starting; every terminal path goes through Draining.
var validTransitions = map[State][]State{
	StateIdle:       {StateStarting},
	StateStarting:   {StateRunning, StateAborting},
	StateRunning:    {StateCompleting, StateRestarting, StateAborting},
	StateRestarting: {StateStarting, StateAborting},
	StateCompleting: {StateDraining},
	StateAborting:   {StateDraining},
	StateDraining:   {StateTerminated},
}

// Lifecycle manages the state machine for a capture session.
type Lifecycle struct {
	mu     sync.RWMutex
	state  State
	logger ports.Logger
}

// NewLifecycle creates a lifecycle in StateIdle.
func NewLifecycle(logger ports.Logger) *Lifecycle {
	return &Lifecycle{state: StateIdle, logger: logger}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns an error if the transition is not valid.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	allowed := false
	for _, s := range validTransitions[oldState] {
		if s == newState {
			allowed = true
			break
		}
	}
	if !allowed {
		l.mu.Unlock()
		if oldState == StateIdle {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}

	l.state = newState
	l.mu.Unlock()

	l.logger.Info("state transition",
		ports.String("from", oldState.String()),
		ports.String("to", newState.String()),
		ports.String("reason", reason),
	)
	return nil
}

// CanStart returns true if the session has not been started yet.
func (l *Lifecycle) CanStart() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateIdle
}
