package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestDeriveSharedSecretAgrees(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ab, err := DeriveSharedSecret(bob.Public, alice.Private)
	require.NoError(t, err)
	ba, err := DeriveSharedSecret(alice.Public, bob.Private)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.False(t, ab.IsZero())

	ref, err := curve25519.X25519(alice.Private[:], bob.Public[:])
	require.NoError(t, err)
	assert.Equal(t, ref, ab[:])
}

func TestDeriveSharedSecretRejectsLowOrderPoint(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	// The identity element yields an all-zero output.
	_, err = DeriveSharedSecret(KeyMaterial{}, kp.Private)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDeriveSharedSecretLeavesPrivateKeyIntact(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	peer, err := GenerateKeyPair()
	require.NoError(t, err)

	before := kp.Private
	_, err = DeriveSharedSecret(peer.Public, kp.Private)
	require.NoError(t, err)
	assert.Equal(t, before, kp.Private)
}
