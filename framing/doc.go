// Package framing carries encrypted PhantomBand frames over a byte stream.
//
// Each frame is sent as a 4-byte big-endian length followed by the frame:
//
//	+--------+----------------------------------------+
//	| len(4) | nonce(12) | ciphertext | tag(16)       |
//	+--------+----------------------------------------+
//
// Frames are read with io.ReadFull, so a stream transport that splits one
// frame across reads or merges several frames into one read cannot change
// message boundaries. Frames above limits.MaxFrameSize are rejected in both
// directions and the connection should be dropped.
//
// [Conn.WriteMessage] and [Conn.ReadMessage] combine the protocol codec, the
// AEAD channel and framing so callers deal only in protocol messages.
package framing
