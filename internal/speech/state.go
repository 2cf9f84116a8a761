package speech

// State represents the lifecycle state of a Pipeline.
type State int

const (
	// StateUninitialized indicates Initialize has not been called.
	StateUninitialized State = iota
	// StateInitializing indicates the engine and sink are being acquired.
	StateInitializing
	// StateReady indicates the pipeline accepts speech.
	StateReady
	// StateFailed indicates initialization failed. Terminal except for
	// Shutdown.
	StateFailed
	// StateShuttingDown indicates Shutdown is releasing resources.
	StateShuttingDown
	// StateShutDown is terminal.
	StateShutDown
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutDown:
		return "shut-down"
	default:
		return "unknown"
	}
}

// stateMachine tracks pipeline state and rejects invalid transitions.
// It is not safe for concurrent use; the pipeline guards it with its state
// mutex.
type stateMachine struct {
	current     State
	transitions map[State][]State
	onChange    func(from, to State)
}

func newStateMachine(onChange func(from, to State)) *stateMachine {
	return &stateMachine{
		current: StateUninitialized,
		transitions: map[State][]State{
			StateUninitialized: {StateInitializing, StateShuttingDown},
			StateInitializing:  {StateReady, StateFailed, StateShuttingDown},
			StateReady:         {StateShuttingDown},
			StateFailed:        {StateShuttingDown},
			StateShuttingDown:  {StateShutDown},
		},
		onChange: onChange,
	}
}

// Transition attempts to transition to the specified state.
func (sm *stateMachine) Transition(to State) bool {
	valid := false
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	from := sm.current
	sm.current = to
	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// Current returns the current state.
func (sm *stateMachine) Current() State {
	return sm.current
}
