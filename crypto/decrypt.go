package crypto

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrFrameTooShort is returned when a frame cannot hold a nonce and a tag.
	ErrFrameTooShort = errors.New("encrypted frame too short")
	// ErrAuthenticationFailed is returned when the Poly1305 tag does not verify,
	// which includes decrypting with the wrong key.
	ErrAuthenticationFailed = errors.New("message authentication failed")
)

// Decrypt opens a frame produced by Encrypt.
func Decrypt(frame []byte, key KeyMaterial) ([]byte, error) {
	if len(frame) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	plaintext, err := aead.Open(nil, frame[:NonceSize], frame[NonceSize:], nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Decrypt",
			"frame_size": len(frame),
		}).Debug("Frame failed authentication")
		return nil, ErrAuthenticationFailed
	}

	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
