package capture

import "errors"

// State is the lifecycle state of a Source.
type State int32

const (
	// StateCreated means no device has been opened yet.
	StateCreated State = iota
	// StateArmed means the device is open but not streaming.
	StateArmed
	// StateRunning means the capture goroutine is delivering frames.
	StateRunning
	// StateStopped means streaming was stopped; the device is still open.
	StateStopped
	// StateReleased is terminal.
	StateReleased
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Errors returned by Source.Start.
var (
	ErrNotArmed = errors.New("capture source has no open device")
	ErrReleased = errors.New("capture source released")
	ErrNilSink  = errors.New("frame sink is nil")
)
