// Package limits provides centralized size limits for PhantomBand frames.
// Framing, the client and the transports validate against the same values.
package limits

import (
	"errors"
	"fmt"
)

const (
	// FrameHeaderSize is the length of the big-endian length prefix in front
	// of every encrypted frame on the wire.
	FrameHeaderSize = 4

	// MaxFrameSize is the largest encrypted frame accepted on read or write.
	MaxFrameSize = 64 * 1024

	// EncryptionOverhead is the ChaCha20-Poly1305 nonce (12) plus tag (16).
	EncryptionOverhead = 28

	// MaxPlaintextMessage is the largest encoded protocol message that still
	// fits in one frame.
	MaxPlaintextMessage = MaxFrameSize - EncryptionOverhead

	// DataEnvelopeReserve covers the CBOR headers around a Data payload:
	// the outer array, kind, body array, circuit id and byte string length.
	DataEnvelopeReserve = 32

	// MaxDataPayload is the largest application payload a single Data
	// message may carry.
	MaxDataPayload = MaxPlaintextMessage - DataEnvelopeReserve

	// ShapingCellSize is the fixed on-wire size of a shaped cell.
	ShapingCellSize = 512

	// MaxObfsRecord is the largest plaintext carried by one obfuscated record.
	MaxObfsRecord = 16 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateFrameLength checks a length announced by a frame header before any
// buffer is allocated for it.
func ValidateFrameLength(n int) error {
	if n == 0 {
		return ErrMessageEmpty
	}
	if n > MaxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrMessageTooLarge, n, MaxFrameSize)
	}
	return nil
}

// ValidateFrame validates an encrypted frame against MaxFrameSize.
func ValidateFrame(frame []byte) error {
	return ValidateFrameLength(len(frame))
}

// ValidateDataPayload validates an application payload. Empty payloads are
// allowed; they round-trip as empty Data messages.
func ValidateDataPayload(payload []byte) error {
	if len(payload) > MaxDataPayload {
		return fmt.Errorf("%w: payload size %d exceeds limit %d", ErrMessageTooLarge, len(payload), MaxDataPayload)
	}
	return nil
}
