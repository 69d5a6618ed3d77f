package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/chacha20poly1305"
)

func TestEncryptionOverheadMatchesAEAD(t *testing.T) {
	assert.Equal(t, chacha20poly1305.NonceSize+chacha20poly1305.Overhead, EncryptionOverhead)
	assert.Equal(t, MaxFrameSize-EncryptionOverhead, MaxPlaintextMessage)
	assert.Less(t, MaxDataPayload, MaxPlaintextMessage)
}

func TestValidateFrameLength(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want error
	}{
		{"empty", 0, ErrMessageEmpty},
		{"one byte", 1, nil},
		{"at limit", MaxFrameSize, nil},
		{"over limit", MaxFrameSize + 1, ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrameLength(tt.n)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateFrame(t *testing.T) {
	assert.NoError(t, ValidateFrame(make([]byte, 100)))
	assert.ErrorIs(t, ValidateFrame(nil), ErrMessageEmpty)
	assert.ErrorIs(t, ValidateFrame(make([]byte, MaxFrameSize+1)), ErrMessageTooLarge)
}

func TestValidateDataPayload(t *testing.T) {
	assert.NoError(t, ValidateDataPayload(nil))
	assert.NoError(t, ValidateDataPayload(make([]byte, MaxDataPayload)))
	assert.ErrorIs(t, ValidateDataPayload(make([]byte, MaxDataPayload+1)), ErrMessageTooLarge)
}
