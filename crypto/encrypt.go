package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the length of the random nonce prepended to every frame.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the length of the Poly1305 authenticator.
	TagSize = chacha20poly1305.Overhead
	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead = NonceSize + TagSize
)

// Nonce is a 96-bit ChaCha20-Poly1305 nonce.
type Nonce [NonceSize]byte

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// Encrypt seals plaintext under key with a fresh random nonce and returns
// nonce || ciphertext || tag.
//
// Random 96-bit nonces start colliding after roughly 2^48 messages under one
// key. Sessions here are short lived, so no counter is kept.
func Encrypt(plaintext []byte, key KeyMaterial) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, NonceSize, Overhead+len(plaintext))
	copy(out, nonce[:])
	out = aead.Seal(out, nonce[:], plaintext, nil)

	logrus.WithFields(logrus.Fields{
		"function":       "Encrypt",
		"plaintext_size": len(plaintext),
		"frame_size":     len(out),
	}).Trace("Sealed frame")

	return out, nil
}
