// Package limits provides centralized frame and payload size constants and
// validation functions shared by every PhantomBand component.
//
// # Size Hierarchy
//
//   - MaxFrameSize (64 KiB): the largest encrypted frame, excluding its
//     4-byte length prefix. Larger frames are rejected on write and read.
//
//   - MaxPlaintextMessage: MaxFrameSize minus the 28 bytes of
//     ChaCha20-Poly1305 overhead (12-byte nonce, 16-byte tag).
//
//   - MaxDataPayload: MaxPlaintextMessage minus a fixed reserve for the
//     encoding of the surrounding Data message.
//
//   - ShapingCellSize and MaxObfsRecord bound the wire units of the shaping
//     and obfuscation transports.
//
// # Validation Functions
//
//	if err := limits.ValidateFrameLength(announced); err != nil {
//	    // drop the connection before allocating
//	}
//
//	err := limits.ValidateDataPayload(payload)
//
// # Error Types
//
//   - ErrMessageEmpty: returned for empty frames
//   - ErrMessageTooLarge: returned when a size limit is exceeded
package limits
