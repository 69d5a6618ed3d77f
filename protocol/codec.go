package protocol

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/opd-ai/phantomband/crypto"
)

var (
	// ErrSerialization is wrapped by every encode and decode failure.
	ErrSerialization = errors.New("serialization error")
	// ErrUnknownKind is returned for a discriminant outside 1..6.
	ErrUnknownKind = fmt.Errorf("%w: unknown message kind", ErrSerialization)
	// ErrMalformed is returned when bytes are not a well-formed message.
	ErrMalformed = fmt.Errorf("%w: malformed message", ErrSerialization)
	// ErrBadKeyLength is returned when a public key is not 32 bytes.
	ErrBadKeyLength = fmt.Errorf("%w: public key must be %d bytes", ErrSerialization, crypto.KeySize)
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em

	dm, err := cbor.DecOptions{
		MaxNestedLevels:  8,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
		IndefLength:      cbor.IndefLengthForbidden,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// envelope is the outer [kind, body] array.
type envelope struct {
	_    struct{} `cbor:",toarray"`
	Kind Kind
	Body cbor.RawMessage
}

type wireConnectRequest struct {
	_         struct{} `cbor:",toarray"`
	ClientID  string
	PublicKey []byte
}

type wireConnectResponse struct {
	_         struct{} `cbor:",toarray"`
	RelayID   string
	PublicKey []byte
	Success   bool
	Message   *string
}

type wireCircuitCreate struct {
	_         struct{} `cbor:",toarray"`
	CircuitID uint64
	PublicKey []byte
}

type wireCircuitCreated struct {
	_         struct{} `cbor:",toarray"`
	CircuitID uint64
	Success   bool
	Message   *string
}

type wireData struct {
	_         struct{} `cbor:",toarray"`
	CircuitID uint64
	Payload   []byte
}

type wireDisconnect struct {
	_ struct{} `cbor:",toarray"`
}

// Marshal encodes msg deterministically: equal messages always produce equal
// bytes.
func Marshal(msg Message) ([]byte, error) {
	var body interface{}
	switch m := msg.(type) {
	case *ConnectRequest:
		body = wireConnectRequest{ClientID: m.ClientID, PublicKey: m.PublicKey[:]}
	case *ConnectResponse:
		body = wireConnectResponse{RelayID: m.RelayID, PublicKey: m.PublicKey[:], Success: m.Success, Message: m.Message}
	case *CircuitCreate:
		body = wireCircuitCreate{CircuitID: m.CircuitID, PublicKey: m.PublicKey[:]}
	case *CircuitCreated:
		body = wireCircuitCreated{CircuitID: m.CircuitID, Success: m.Success, Message: m.Message}
	case *Data:
		body = wireData{CircuitID: m.CircuitID, Payload: m.Payload}
	case *Disconnect:
		body = wireDisconnect{}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}

	raw, err := encMode.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrSerialization, msg.Kind(), err)
	}

	out, err := encMode.Marshal(envelope{Kind: msg.Kind(), Body: raw})
	if err != nil {
		return nil, fmt.Errorf("%w: encode envelope: %v", ErrSerialization, err)
	}
	return out, nil
}

// Unmarshal decodes one message. Trailing bytes are rejected.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Kind {
	case KindConnectRequest:
		var w wireConnectRequest
		if err := decodeBody(env, &w); err != nil {
			return nil, err
		}
		key, err := publicKey(w.PublicKey)
		if err != nil {
			return nil, err
		}
		return &ConnectRequest{ClientID: w.ClientID, PublicKey: key}, nil

	case KindConnectResponse:
		var w wireConnectResponse
		if err := decodeBody(env, &w); err != nil {
			return nil, err
		}
		key, err := publicKey(w.PublicKey)
		if err != nil {
			return nil, err
		}
		return &ConnectResponse{RelayID: w.RelayID, PublicKey: key, Success: w.Success, Message: w.Message}, nil

	case KindCircuitCreate:
		var w wireCircuitCreate
		if err := decodeBody(env, &w); err != nil {
			return nil, err
		}
		key, err := publicKey(w.PublicKey)
		if err != nil {
			return nil, err
		}
		return &CircuitCreate{CircuitID: w.CircuitID, PublicKey: key}, nil

	case KindCircuitCreated:
		var w wireCircuitCreated
		if err := decodeBody(env, &w); err != nil {
			return nil, err
		}
		return &CircuitCreated{CircuitID: w.CircuitID, Success: w.Success, Message: w.Message}, nil

	case KindData:
		var w wireData
		if err := decodeBody(env, &w); err != nil {
			return nil, err
		}
		if w.Payload == nil {
			w.Payload = []byte{}
		}
		return &Data{CircuitID: w.CircuitID, Payload: w.Payload}, nil

	case KindDisconnect:
		var w wireDisconnect
		if err := decodeBody(env, &w); err != nil {
			return nil, err
		}
		return &Disconnect{}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(env.Kind))
	}
}

func decodeBody(env envelope, v interface{}) error {
	if err := decMode.Unmarshal(env.Body, v); err != nil {
		return fmt.Errorf("%w: %s body: %v", ErrMalformed, env.Kind, err)
	}
	return nil
}

func publicKey(b []byte) (crypto.KeyMaterial, error) {
	key, err := crypto.KeyFromBytes(b)
	if err != nil {
		return crypto.KeyMaterial{}, fmt.Errorf("%w: got %d", ErrBadKeyLength, len(b))
	}
	return key, nil
}
