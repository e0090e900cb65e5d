package mcpui

// SessionState is the lifecycle state of a Bridge.
type SessionState int

const (
	// StateUninitialized is the initial state, waiting for the host handshake.
	StateUninitialized SessionState = iota
	// StateInitializing lasts while the handshake reply is being sent.
	StateInitializing
	// StateReady is the only state that permits outbound tool calls.
	StateReady
	// StateTearingDown lasts while the teardown cleanup runs.
	StateTearingDown
	// StateClosed is terminal. Nothing is sent anymore.
	StateClosed
)

var allStates = []SessionState{
	StateUninitialized,
	StateInitializing,
	StateReady,
	StateTearingDown,
	StateClosed,
}

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTearingDown:
		return "tearing_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// acceptsNotifications reports whether host notifications are processed in this state.
func (s SessionState) acceptsNotifications() bool {
	return s == StateReady || s == StateTearingDown
}
