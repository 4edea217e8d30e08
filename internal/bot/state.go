// Package bot defines the domain model for managed trading bot instances:
// records, parameters, the lifecycle state machine and the error taxonomy
// shared by the manager, storage and API layers.
package bot

// State is the lifecycle state of a bot record.
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
	StateDeleted  State = "deleted"
)

// transitions is the single source of truth for legal state changes.
// Every mutation of a record's state goes through CanTransition; callers
// never flip states ad hoc.
var transitions = map[State][]State{
	StateCreated:  {StateStarting, StateDeleted},
	StateStarting: {StateRunning, StateStopping, StateError},
	StateRunning:  {StateStopping, StateError},
	StateStopping: {StateStopped, StateError},
	StateStopped:  {StateStarting, StateDeleted},
	StateError:    {StateStarting, StateDeleted},
	StateDeleted:  {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTransitional reports whether the state is an in-flight transition during
// which delete (and further start/stop calls) must be rejected.
func (s State) IsTransitional() bool {
	return s == StateStarting || s == StateStopping
}

// IsTerminal reports whether a record in this state has no running process.
func (s State) IsTerminal() bool {
	switch s {
	case StateCreated, StateStopped, StateError, StateDeleted:
		return true
	}
	return false
}

// Valid reports whether s is one of the known lifecycle states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}
