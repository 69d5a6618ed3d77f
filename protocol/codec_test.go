package protocol

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/phantomband/crypto"
)

func testKey(t *testing.T) crypto.KeyMaterial {
	t.Helper()
	k, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)
	return k
}

func TestMarshalUnmarshalVariants(t *testing.T) {
	key := testKey(t)

	messages := []Message{
		&ConnectRequest{ClientID: "c1", PublicKey: key},
		&ConnectResponse{RelayID: "phantomband-relay", PublicKey: key, Success: true, Message: Text("Connection established.")},
		&ConnectResponse{RelayID: "r", PublicKey: key, Success: false},
		&CircuitCreate{CircuitID: 12345, PublicKey: key},
		&CircuitCreated{CircuitID: 12345, Success: true, Message: Text("Circuit created.")},
		&Data{CircuitID: 12345, Payload: []byte("Hello PhantomBand!")},
		&Data{CircuitID: ^uint64(0), Payload: []byte{}},
		&Disconnect{},
	}

	for _, msg := range messages {
		t.Run(msg.Kind().String(), func(t *testing.T) {
			b, err := Marshal(msg)
			require.NoError(t, err)

			got, err := Unmarshal(b)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	key := testKey(t)
	msg := &ConnectResponse{RelayID: "r", PublicKey: key, Success: true, Message: Text("ok")}

	a, err := Marshal(msg)
	require.NoError(t, err)
	b, err := Marshal(&ConnectResponse{RelayID: "r", PublicKey: key, Success: true, Message: Text("ok")})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDataNilPayloadDecodesEmpty(t *testing.T) {
	b, err := Marshal(&Data{CircuitID: 1})
	require.NoError(t, err)

	msg, err := Unmarshal(b)
	require.NoError(t, err)
	data, ok := msg.(*Data)
	require.True(t, ok)
	assert.NotNil(t, data.Payload)
	assert.Empty(t, data.Payload)
}

func TestWireLayout(t *testing.T) {
	b, err := Marshal(&Disconnect{})
	require.NoError(t, err)
	// [6, []]
	assert.Equal(t, []byte{0x82, 0x06, 0x80}, b)

	b, err = Marshal(&Data{CircuitID: 1, Payload: []byte{0xAA}})
	require.NoError(t, err)
	// [5, [1, h'AA']]
	assert.Equal(t, []byte{0x82, 0x05, 0x82, 0x01, 0x41, 0xAA}, b)

	b, err = Marshal(&CircuitCreated{CircuitID: 2, Success: false})
	require.NoError(t, err)
	// [4, [2, false, null]]
	assert.Equal(t, []byte{0x82, 0x04, 0x83, 0x02, 0xF4, 0xF6}, b)
}

func TestUnmarshalUnknownKind(t *testing.T) {
	b, err := cbor.Marshal([]interface{}{9, []interface{}{}})
	require.NoError(t, err)

	_, err = Unmarshal(b)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestUnmarshalBadKeyLength(t *testing.T) {
	b, err := cbor.Marshal([]interface{}{1, []interface{}{"c1", bytes.Repeat([]byte{1}, 31)}})
	require.NoError(t, err)

	_, err = Unmarshal(b)
	assert.ErrorIs(t, err, ErrBadKeyLength)
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestUnmarshalMalformed(t *testing.T) {
	key := testKey(t)
	valid, err := Marshal(&CircuitCreate{CircuitID: 3, PublicKey: key})
	require.NoError(t, err)

	wrongArity, err := cbor.Marshal([]interface{}{5, []interface{}{1}})
	require.NoError(t, err)
	wrongType, err := cbor.Marshal([]interface{}{5, []interface{}{"one", []byte{}}})
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":       {},
		"garbage":     []byte("not cbor at all"),
		"truncated":   valid[:len(valid)-3],
		"trailing":    append(append([]byte(nil), valid...), 0x00),
		"wrong arity": wrongArity,
		"wrong type":  wrongType,
	}

	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal(b)
			assert.ErrorIs(t, err, ErrSerialization)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "connect_request", (&ConnectRequest{}).Kind().String())
	assert.Equal(t, "unknown(42)", Kind(42).String())
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "", MessageText(nil))
	assert.Equal(t, "hi", MessageText(Text("hi")))
}
