package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKeyMaterial()
	require.NoError(t, err)

	payloads := map[string][]byte{
		"empty": {},
		"short": []byte("Hello PhantomBand!"),
		"large": bytes.Repeat([]byte{0xAB}, 32*1024),
	}

	for name, plaintext := range payloads {
		t.Run(name, func(t *testing.T) {
			frame, err := Encrypt(plaintext, key)
			require.NoError(t, err)
			assert.Len(t, frame, len(plaintext)+Overhead)

			got, err := Decrypt(frame, key)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key, err := GenerateKeyMaterial()
	require.NoError(t, err)

	a, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
	assert.NotEqual(t, a, b)
}

func TestDecryptWrongKey(t *testing.T) {
	key, err := GenerateKeyMaterial()
	require.NoError(t, err)
	other, err := GenerateKeyMaterial()
	require.NoError(t, err)

	frame, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	_, err = Decrypt(frame, other)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptTamperedFrame(t *testing.T) {
	key, err := GenerateKeyMaterial()
	require.NoError(t, err)

	frame, err := Encrypt([]byte("do not touch"), key)
	require.NoError(t, err)

	for _, pos := range []int{0, NonceSize, len(frame) - 1} {
		tampered := append([]byte(nil), frame...)
		tampered[pos] ^= 0x01
		_, err := Decrypt(tampered, key)
		assert.ErrorIs(t, err, ErrAuthenticationFailed, "bit flip at %d", pos)
	}
}

func TestDecryptShortFrame(t *testing.T) {
	key, err := GenerateKeyMaterial()
	require.NoError(t, err)

	_, err = Decrypt(make([]byte, NonceSize-1), key)
	assert.ErrorIs(t, err, ErrFrameTooShort)

	_, err = Decrypt(make([]byte, Overhead-1), key)
	assert.ErrorIs(t, err, ErrFrameTooShort)

	_, err = Decrypt(make([]byte, Overhead), key)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestParseKeyMaterial(t *testing.T) {
	key, err := GenerateKeyMaterial()
	require.NoError(t, err)

	parsed, err := ParseKeyMaterial(key.Hex())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseKeyMaterial("zz")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKeyMaterial("abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyFromBytes(t *testing.T) {
	_, err := KeyFromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidKey)

	k, err := KeyFromBytes(bytes.Repeat([]byte{7}, KeySize))
	require.NoError(t, err)
	assert.Equal(t, byte(7), k[31])
}

func TestKeyMaterialStringHidesSecret(t *testing.T) {
	key, err := GenerateKeyMaterial()
	require.NoError(t, err)

	s := key.String()
	assert.Len(t, s, 11)
	assert.NotContains(t, s, key.Hex()[8:])
}

func TestFromSecretKey(t *testing.T) {
	_, err := FromSecretKey(KeyMaterial{})
	assert.ErrorIs(t, err, ErrInvalidKey)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	again, err := FromSecretKey(kp.Private)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, again.Public)
}
