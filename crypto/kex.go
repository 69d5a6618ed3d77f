package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	"github.com/opd-ai/phantomband/logging"
)

// Handshake modes accepted in configuration files.
const (
	ModeX25519 = "x25519"
	ModePSK    = "psk"
)

var (
	// ErrMisconfigured is returned when a key exchange is used from the wrong
	// side, e.g. a client-only exchange asked to respond.
	ErrMisconfigured = errors.New("key exchange misconfigured")
	// ErrUnknownMode is returned by NewKeyExchange for unknown mode names.
	ErrUnknownMode = errors.New("unknown handshake mode")
)

const (
	infoRequest  = "phantomband request"
	infoResponse = "phantomband response"
	infoSession  = "phantomband session"
)

// Initiator is the client half of one handshake.
type Initiator interface {
	// PublicKey is carried in ConnectRequest.
	PublicKey() KeyMaterial
	// RequestKey seals the ConnectRequest frame.
	RequestKey() KeyMaterial
	// ResponseKey opens the ConnectResponse frame.
	ResponseKey() KeyMaterial
	// Finish derives the session key from the key the relay advertised.
	Finish(relayPublic KeyMaterial) (KeyMaterial, error)
}

// Response is what the relay side derives from a ConnectRequest.
type Response struct {
	// PublicKey is advertised in ConnectResponse.
	PublicKey KeyMaterial
	// ResponseKey seals the ConnectResponse frame.
	ResponseKey KeyMaterial
	// SessionKey protects every later frame on the connection.
	SessionKey KeyMaterial
}

// KeyExchange turns the ConnectRequest/ConnectResponse pair into a session key.
type KeyExchange interface {
	Mode() string
	// NewInitiator starts a client handshake.
	NewInitiator() (Initiator, error)
	// RequestKey opens the first frame of a connection on the relay.
	RequestKey() KeyMaterial
	// Respond derives the relay side of the handshake.
	Respond(clientPublic KeyMaterial) (*Response, error)
}

// NewKeyExchange builds an exchange by mode name. For ModeX25519 the relay
// passes its static key pair and the client passes only the relay's public
// key. For ModePSK key is the pre-shared key.
func NewKeyExchange(mode string, static *KeyPair, key KeyMaterial) (KeyExchange, error) {
	switch mode {
	case "", ModeX25519:
		if static != nil {
			return NewX25519Responder(static)
		}
		return NewX25519Initiator(key)
	case ModePSK:
		return NewPSKExchange(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func deriveKey(secret, salt []byte, info string) KeyMaterial {
	var out KeyMaterial
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		// HKDF-SHA256 can emit 8160 bytes; 32 never fails.
		panic(err)
	}
	return out
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// X25519Exchange is a one-way authenticated handshake in the style of ntor.
// The relay holds a static key pair (b, B) whose public half the client learns
// out of band.
//
//	K0 = HKDF(B, "request")              seals ConnectRequest{X}
//	K1 = HKDF(DH(x,B), X||B, "response") seals ConnectResponse{Y}
//	KS = HKDF(DH(x,B)||DH(x,Y), X||B||Y, "session")
//
// Only the holder of b can compute K1, and KS depends on the relay's
// ephemeral key, so past sessions survive a later leak of b.
type X25519Exchange struct {
	static      *KeyPair
	relayPublic KeyMaterial
}

// NewX25519Responder creates the relay side from its static identity.
func NewX25519Responder(static *KeyPair) (*X25519Exchange, error) {
	if static == nil || static.Private.IsZero() {
		return nil, fmt.Errorf("%w: relay needs a static key pair", ErrMisconfigured)
	}
	return &X25519Exchange{static: static, relayPublic: static.Public}, nil
}

// NewX25519Initiator creates the client side from the relay's static public key.
func NewX25519Initiator(relayPublic KeyMaterial) (*X25519Exchange, error) {
	if relayPublic.IsZero() {
		return nil, fmt.Errorf("%w: relay public key is required", ErrMisconfigured)
	}
	return &X25519Exchange{relayPublic: relayPublic}, nil
}

// Mode implements KeyExchange.
func (x *X25519Exchange) Mode() string { return ModeX25519 }

// RequestKey implements KeyExchange.
func (x *X25519Exchange) RequestKey() KeyMaterial {
	return deriveKey(x.relayPublic[:], nil, infoRequest)
}

// NewInitiator implements KeyExchange.
func (x *X25519Exchange) NewInitiator() (Initiator, error) {
	eph, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	s1, err := DeriveSharedSecret(x.relayPublic, eph.Private)
	if err != nil {
		return nil, err
	}

	return &x25519Initiator{
		eph:         eph,
		relayStatic: x.relayPublic,
		s1:          s1,
		requestKey:  x.RequestKey(),
		responseKey: deriveKey(s1[:], concat(eph.Public[:], x.relayPublic[:]), infoResponse),
	}, nil
}

// Respond implements KeyExchange.
func (x *X25519Exchange) Respond(clientPublic KeyMaterial) (*Response, error) {
	if x.static == nil {
		return nil, fmt.Errorf("%w: initiator cannot respond", ErrMisconfigured)
	}

	s1, err := DeriveSharedSecret(clientPublic, x.static.Private)
	if err != nil {
		return nil, err
	}
	defer s1.Wipe()

	eph, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer WipeKeyPair(eph)

	s2, err := DeriveSharedSecret(clientPublic, eph.Private)
	if err != nil {
		return nil, err
	}
	defer s2.Wipe()

	resp := &Response{
		PublicKey:   eph.Public,
		ResponseKey: deriveKey(s1[:], concat(clientPublic[:], x.static.Public[:]), infoResponse),
		SessionKey: deriveKey(concat(s1[:], s2[:]),
			concat(clientPublic[:], x.static.Public[:], eph.Public[:]), infoSession),
	}

	logrus.WithFields(logrus.Fields{
		"function":   "X25519Exchange.Respond",
		"client_key": clientPublic.String(),
		"relay_key":  eph.Public.String(),
	}).Debug("Derived session key")

	return resp, nil
}

type x25519Initiator struct {
	eph         *KeyPair
	relayStatic KeyMaterial
	s1          KeyMaterial
	requestKey  KeyMaterial
	responseKey KeyMaterial
}

func (i *x25519Initiator) PublicKey() KeyMaterial   { return i.eph.Public }
func (i *x25519Initiator) RequestKey() KeyMaterial  { return i.requestKey }
func (i *x25519Initiator) ResponseKey() KeyMaterial { return i.responseKey }

func (i *x25519Initiator) Finish(relayPublic KeyMaterial) (KeyMaterial, error) {
	s2, err := DeriveSharedSecret(relayPublic, i.eph.Private)
	if err != nil {
		return KeyMaterial{}, err
	}
	defer s2.Wipe()

	session := deriveKey(concat(i.s1[:], s2[:]),
		concat(i.eph.Public[:], i.relayStatic[:], relayPublic[:]), infoSession)

	i.s1.Wipe()
	WipeKeyPair(i.eph)
	return session, nil
}

// PSKExchange is the legacy handshake: one pre-provisioned 32-byte key is
// sent as the "public key" and used directly as the AEAD key for every frame.
// It offers no forward secrecy and exists for wire compatibility with older
// clients.
type PSKExchange struct {
	key KeyMaterial
}

// NewPSKExchange creates a pre-shared key exchange.
func NewPSKExchange(key KeyMaterial) (*PSKExchange, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("%w: pre-shared key is required", ErrMisconfigured)
	}
	logging.For("crypto", "NewPSKExchange").
		WithFields(SecureFieldHash(key[:], "psk")).
		Warn("Using pre-shared key handshake; sessions have no forward secrecy")
	return &PSKExchange{key: key}, nil
}

// Mode implements KeyExchange.
func (p *PSKExchange) Mode() string { return ModePSK }

// RequestKey implements KeyExchange.
func (p *PSKExchange) RequestKey() KeyMaterial { return p.key }

// NewInitiator implements KeyExchange.
func (p *PSKExchange) NewInitiator() (Initiator, error) {
	return pskInitiator{key: p.key}, nil
}

// Respond implements KeyExchange. The registered session key is the key the
// client advertised.
func (p *PSKExchange) Respond(clientPublic KeyMaterial) (*Response, error) {
	return &Response{
		PublicKey:   p.key,
		ResponseKey: p.key,
		SessionKey:  clientPublic,
	}, nil
}

type pskInitiator struct {
	key KeyMaterial
}

func (i pskInitiator) PublicKey() KeyMaterial   { return i.key }
func (i pskInitiator) RequestKey() KeyMaterial  { return i.key }
func (i pskInitiator) ResponseKey() KeyMaterial { return i.key }

// Finish returns the relay's advertised key, which protects everything after
// ConnectResponse.
func (i pskInitiator) Finish(relayPublic KeyMaterial) (KeyMaterial, error) {
	return relayPublic, nil
}

// SecureFieldHash is re-exported for callers that only import crypto.
func SecureFieldHash(data []byte, name string) logrus.Fields {
	return logging.SecureFieldHash(data, name)
}
