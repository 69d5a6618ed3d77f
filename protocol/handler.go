package protocol

import "fmt"

// Handler has one method per message variant. Adding a variant adds a method
// here, so every implementation stops compiling until it handles it.
type Handler interface {
	HandleConnectRequest(*ConnectRequest) error
	HandleConnectResponse(*ConnectResponse) error
	HandleCircuitCreate(*CircuitCreate) error
	HandleCircuitCreated(*CircuitCreated) error
	HandleData(*Data) error
	HandleDisconnect(*Disconnect) error
}

// Dispatch calls the Handler method matching msg.
func Dispatch(msg Message, h Handler) error {
	switch m := msg.(type) {
	case *ConnectRequest:
		return h.HandleConnectRequest(m)
	case *ConnectResponse:
		return h.HandleConnectResponse(m)
	case *CircuitCreate:
		return h.HandleCircuitCreate(m)
	case *CircuitCreated:
		return h.HandleCircuitCreated(m)
	case *Data:
		return h.HandleData(m)
	case *Disconnect:
		return h.HandleDisconnect(m)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
}
