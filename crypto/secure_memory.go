package crypto

import "runtime"

// ZeroBytes overwrites every buffer with zeros. Nil buffers are skipped.
func ZeroBytes(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
		runtime.KeepAlive(b)
	}
}

// WipeKeyPair zeros the private half of kp. The public half is left for
// logging and comparison. A nil pair is ignored.
func WipeKeyPair(kp *KeyPair) {
	if kp == nil {
		return
	}
	kp.Private.Wipe()
}
