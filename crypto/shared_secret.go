package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// DeriveSharedSecret returns X25519(private, peer). Low-order peer keys, which
// would give an all-zero secret, fail with ErrInvalidKey. private is passed
// by value; callers wipe their own copy.
func DeriveSharedSecret(peer, private KeyMaterial) (KeyMaterial, error) {
	var secret KeyMaterial
	out, err := curve25519.X25519(private[:], peer[:])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DeriveSharedSecret",
			"peer_key": peer.String(),
			"error":    err.Error(),
		}).Debug("Rejected peer key")
		return secret, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	copy(secret[:], out)
	ZeroBytes(out)
	return secret, nil
}
