package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroBytes(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	ZeroBytes(a, nil, b)
	assert.Equal(t, []byte{0, 0, 0}, a)
	assert.Equal(t, []byte{0, 0}, b)
}

func TestWipeKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.False(t, kp.Private.IsZero(), "fresh private key must not be zero")
	public := kp.Public

	WipeKeyPair(kp)
	assert.True(t, kp.Private.IsZero())
	assert.Equal(t, public, kp.Public, "public half is left intact")

	assert.NotPanics(t, func() { WipeKeyPair(nil) })
}

func TestKeyMaterialWipe(t *testing.T) {
	k, err := GenerateKeyMaterial()
	require.NoError(t, err)

	k.Wipe()
	assert.True(t, k.IsZero())
}
