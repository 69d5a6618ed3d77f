// Package protocol defines the six PhantomBand messages and their wire
// encoding.
//
// # Messages
//
//	ConnectRequest   client -> relay   opens a session
//	ConnectResponse  relay  -> client  accepts or rejects it
//	CircuitCreate    client -> relay   opens a circuit
//	CircuitCreated   relay  -> client  confirms the circuit
//	Data             both directions   application payload
//	Disconnect       client -> relay   ends the session
//
// # Encoding
//
// Messages are encoded as deterministic CBOR: a two element array holding the
// kind (1 to 6, in the order above) and an array of the variant's fields in
// declaration order. Public keys are byte strings of exactly 32 bytes. An
// absent optional text is encoded as null.
//
//	b, err := protocol.Marshal(&protocol.Data{CircuitID: 7, Payload: p})
//	msg, err := protocol.Unmarshal(b)
//
// Every decode failure wraps [ErrSerialization]. There is no framing inside
// the encoding; one message occupies one encrypted frame.
//
// # Dispatch
//
// Consumers implement [Handler] and call [Dispatch]. Because the handler has a
// method per variant, a new variant cannot be silently ignored.
package protocol
