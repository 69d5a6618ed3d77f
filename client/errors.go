package client

import (
	"errors"
	"fmt"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/framing"
	"github.com/opd-ai/phantomband/protocol"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// circuit's current state, including any operation on a finished circuit.
	ErrInvalidState = errors.New("invalid circuit state")

	// ErrClosed is returned by Receive when the relay ended the session.
	ErrClosed = errors.New("circuit closed")
)

// FailureReason classifies why a circuit failed.
type FailureReason uint8

const (
	// TransportError means the dial failed or the connection dropped.
	TransportError FailureReason = iota + 1
	// RelayRejected means the relay refused the ConnectRequest.
	RelayRejected
	// CircuitCreationFailed means the relay refused the CircuitCreate.
	CircuitCreationFailed
	// CryptoError means a frame failed to decrypt or a key was unusable.
	CryptoError
	// SerializationError means a frame did not decode to a message.
	SerializationError
	// ProtocolError means a well-formed message arrived out of turn.
	ProtocolError
)

// String returns the reason name.
func (r FailureReason) String() string {
	switch r {
	case TransportError:
		return "TransportError"
	case RelayRejected:
		return "RelayRejected"
	case CircuitCreationFailed:
		return "CircuitCreationFailed"
	case CryptoError:
		return "CryptoError"
	case SerializationError:
		return "SerializationError"
	case ProtocolError:
		return "ProtocolError"
	default:
		return fmt.Sprintf("FailureReason(%d)", uint8(r))
	}
}

// CircuitError is returned when a circuit fails.
type CircuitError struct {
	Reason FailureReason
	Err    error
}

func (e *CircuitError) Error() string {
	if e.Err == nil {
		return "circuit failed: " + e.Reason.String()
	}
	return fmt.Sprintf("circuit failed: %s: %v", e.Reason, e.Err)
}

func (e *CircuitError) Unwrap() error {
	return e.Err
}

// Is matches another *CircuitError with the same reason, so callers can
// write errors.Is(err, &client.CircuitError{Reason: client.RelayRejected}).
func (e *CircuitError) Is(target error) bool {
	t, ok := target.(*CircuitError)
	return ok && t.Reason == e.Reason && t.Err == nil
}

// ReasonOf extracts the failure reason from err.
func ReasonOf(err error) (FailureReason, bool) {
	var ce *CircuitError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return 0, false
}

func newCircuitError(reason FailureReason, err error) *CircuitError {
	return &CircuitError{Reason: reason, Err: err}
}

// classify maps an error from the framing stack to a failure reason.
func classify(err error) FailureReason {
	switch {
	case errors.Is(err, crypto.ErrAuthenticationFailed),
		errors.Is(err, crypto.ErrFrameTooShort),
		errors.Is(err, crypto.ErrInvalidKey),
		errors.Is(err, crypto.ErrMisconfigured):
		return CryptoError
	case errors.Is(err, protocol.ErrSerialization):
		return SerializationError
	case errors.Is(err, framing.ErrFrameTooLarge),
		errors.Is(err, framing.ErrEmptyFrame):
		return ProtocolError
	default:
		return TransportError
	}
}
