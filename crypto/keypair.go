package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the length in bytes of every key handled by this package.
const KeySize = 32

// KeyMaterial is a 256-bit secret or public value. Depending on the handshake
// mode it is used directly as an AEAD key or as an X25519 point.
type KeyMaterial [KeySize]byte

// ErrInvalidKey is returned when key material cannot be parsed or used.
var ErrInvalidKey = errors.New("invalid key material")

// GenerateKeyMaterial returns 32 bytes read from the system random source.
func GenerateKeyMaterial() (KeyMaterial, error) {
	var k KeyMaterial
	if _, err := rand.Read(k[:]); err != nil {
		return KeyMaterial{}, fmt.Errorf("generate key material: %w", err)
	}
	return k, nil
}

// ParseKeyMaterial decodes a 64 character hex string.
func ParseKeyMaterial(s string) (KeyMaterial, error) {
	var k KeyMaterial
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return k, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(raw))
	}
	copy(k[:], raw)
	ZeroBytes(raw)
	return k, nil
}

// KeyFromBytes copies b into a KeyMaterial. b must be exactly KeySize long.
func KeyFromBytes(b []byte) (KeyMaterial, error) {
	var k KeyMaterial
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Hex returns the full hex encoding of the key.
func (k KeyMaterial) Hex() string {
	return hex.EncodeToString(k[:])
}

// String returns a short preview that is safe to log.
func (k KeyMaterial) String() string {
	return fmt.Sprintf("%x...", k[:4])
}

// IsZero reports whether every byte of the key is zero.
func (k KeyMaterial) IsZero() bool {
	return isZeroKey(k)
}

// Wipe overwrites the key in place.
func (k *KeyMaterial) Wipe() {
	ZeroBytes(k[:])
}

// KeyPair is an X25519 key pair.
type KeyPair struct {
	Public  KeyMaterial
	Private KeyMaterial
}

// GenerateKeyPair creates a new random X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	private, err := GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}
	return FromSecretKey(private)
}

// FromSecretKey derives the public half of an X25519 key pair.
func FromSecretKey(secretKey KeyMaterial) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, fmt.Errorf("%w: all zeros", ErrInvalidKey)
	}

	pub, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], pub)
	return kp, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
