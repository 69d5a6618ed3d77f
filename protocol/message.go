package protocol

import (
	"fmt"

	"github.com/opd-ai/phantomband/crypto"
)

// Kind is the wire discriminant of a message.
type Kind uint8

const (
	KindConnectRequest Kind = iota + 1
	KindConnectResponse
	KindCircuitCreate
	KindCircuitCreated
	KindData
	KindDisconnect
)

// String returns the name of the kind for logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindConnectRequest:
		return "connect_request"
	case KindConnectResponse:
		return "connect_response"
	case KindCircuitCreate:
		return "circuit_create"
	case KindCircuitCreated:
		return "circuit_created"
	case KindData:
		return "data"
	case KindDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Message is one of the six protocol variants. The set is closed: only the
// types in this package implement it.
type Message interface {
	Kind() Kind
	isMessage()
}

// ConnectRequest opens a session. It is the first message on every
// connection.
type ConnectRequest struct {
	ClientID  string
	PublicKey crypto.KeyMaterial
}

// ConnectResponse answers a ConnectRequest.
type ConnectResponse struct {
	RelayID   string
	PublicKey crypto.KeyMaterial
	Success   bool
	Message   *string
}

// CircuitCreate asks the relay to open a circuit on this connection.
type CircuitCreate struct {
	CircuitID uint64
	PublicKey crypto.KeyMaterial
}

// CircuitCreated answers a CircuitCreate.
type CircuitCreated struct {
	CircuitID uint64
	Success   bool
	Message   *string
}

// Data carries an application payload on a circuit.
type Data struct {
	CircuitID uint64
	Payload   []byte
}

// Disconnect ends the session.
type Disconnect struct{}

func (*ConnectRequest) Kind() Kind  { return KindConnectRequest }
func (*ConnectResponse) Kind() Kind { return KindConnectResponse }
func (*CircuitCreate) Kind() Kind   { return KindCircuitCreate }
func (*CircuitCreated) Kind() Kind  { return KindCircuitCreated }
func (*Data) Kind() Kind            { return KindData }
func (*Disconnect) Kind() Kind      { return KindDisconnect }

func (*ConnectRequest) isMessage()  {}
func (*ConnectResponse) isMessage() {}
func (*CircuitCreate) isMessage()   {}
func (*CircuitCreated) isMessage()  {}
func (*Data) isMessage()            {}
func (*Disconnect) isMessage()      {}

// Text returns a pointer to s, for the optional Message fields.
func Text(s string) *string {
	return &s
}

// MessageText returns the optional text or "" when it is absent.
func MessageText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
