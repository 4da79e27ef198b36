package loop

import "fmt"

// State is the orchestrator's position in its lifecycle.
type State int

const (
	StateIdle      State = iota // Not started
	StateRunning                // Agent invocation in progress
	StateSleeping               // Waiting out the inter-iteration delay
	StateCompleted              // Iteration limit or completion signal reached
	StateStopped                // Interrupted or stop requested
	StateFailed                 // Fatal error
)

// validTransitions defines the allowed State transitions. Terminal states
// have none.
var validTransitions = map[State][]State{
	StateIdle:     {StateRunning, StateStopped, StateFailed},
	StateRunning:  {StateSleeping, StateCompleted, StateStopped, StateFailed},
	StateSleeping: {StateRunning, StateStopped},
}

// CanTransitionTo reports whether moving from s to next is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, valid := range validTransitions[s] {
		if valid == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name so session logs stay readable.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("loop: unknown state %q", b)
}
