package client

// State is the position of a Circuit in its lifecycle.
type State uint8

const (
	// StateIdle means the circuit has not been used yet.
	StateIdle State = iota
	// StateConnecting means the transport dial is in progress.
	StateConnecting
	// StateAwaitingConnectResponse means ConnectRequest was sent.
	StateAwaitingConnectResponse
	// StateRelayKeyEstablished means the relay accepted the session.
	StateRelayKeyEstablished
	// StateAwaitingCircuitCreated means CircuitCreate was sent.
	StateAwaitingCircuitCreated
	// StateCircuitEstablished means the relay confirmed the circuit.
	StateCircuitEstablished
	// StateActive means Send and Receive may be used.
	StateActive
	// StateClosed means the circuit ended normally or the transport dropped.
	StateClosed
	// StateFailed means the circuit ended on an error.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingConnectResponse:
		return "AwaitingConnectResponse"
	case StateRelayKeyEstablished:
		return "RelayKeyEstablished"
	case StateAwaitingCircuitCreated:
		return "AwaitingCircuitCreated"
	case StateCircuitEstablished:
		return "CircuitEstablished"
	case StateActive:
		return "Active"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// hasSessionKey reports whether the session key is known in this state.
func (s State) hasSessionKey() bool {
	return s >= StateRelayKeyEstablished && s <= StateActive
}
