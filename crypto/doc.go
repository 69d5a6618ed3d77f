// Package crypto implements the cryptographic channel used by PhantomBand
// circuits.
//
// Every protocol message travels as one sealed frame:
//
//	nonce (12 bytes) || ChaCha20-Poly1305 ciphertext || tag (16 bytes)
//
// A fresh random nonce is drawn for every call to [Encrypt], so the same
// plaintext never produces the same frame twice. [Decrypt] rejects frames that
// are too short to carry a nonce and frames whose tag does not verify, which
// includes frames sealed under a different key.
//
// # Core Types
//
//   - [KeyMaterial]: 32 bytes used as an AEAD key or an X25519 point
//   - [KeyPair]: an X25519 key pair
//   - [KeyExchange]: derives the per-connection session key from the
//     ConnectRequest/ConnectResponse exchange
//
// # Encryption and Decryption
//
//	key, _ := crypto.GenerateKeyMaterial()
//	frame, _ := crypto.Encrypt([]byte("hello"), key)
//	plaintext, err := crypto.Decrypt(frame, key)
//	if errors.Is(err, crypto.ErrAuthenticationFailed) {
//	    // tampered or wrong key
//	}
//
// # Key Exchange
//
// Two handshake modes are available through [NewKeyExchange]:
//
//   - [ModeX25519] (default): the relay holds a static X25519 identity whose
//     public half the client knows in advance. The client's ConnectRequest
//     carries an ephemeral key; the relay answers with its own ephemeral key
//     and both sides derive the session key with HKDF-SHA256 over two
//     Diffie-Hellman results.
//   - [ModePSK]: both sides share one pre-provisioned key that is sent as the
//     public key and used directly as the AEAD key. It is kept for wire
//     compatibility with early deployments and offers no forward secrecy.
//
// On the relay:
//
//	kex, _ := crypto.NewX25519Responder(staticKeyPair)
//	frame, _ := crypto.Decrypt(firstFrame, kex.RequestKey())
//	resp, _ := kex.Respond(clientPublicKey)
//	// reply sealed under resp.ResponseKey, later frames under resp.SessionKey
//
// On the client:
//
//	kex, _ := crypto.NewX25519Initiator(relayPublicKey)
//	hs, _ := kex.NewInitiator()
//	// send ConnectRequest{PublicKey: hs.PublicKey()} under hs.RequestKey()
//	// open ConnectResponse under hs.ResponseKey()
//	session, _ := hs.Finish(advertisedRelayKey)
//
// # Secure Memory
//
// [ZeroBytes] and [WipeKeyPair] overwrite secrets once they are
// no longer needed. Key material is only ever logged through
// [SecureFieldHash] or [KeyMaterial.String], both of which show a short prefix.
package crypto
