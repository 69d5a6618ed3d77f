package transport

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/phantomband/limits"
)

const (
	obfsPrologue   = "phantomband-obfs-v1"
	obfsMaxPadding = 255
	obfsRecordMax  = 65535
)

var errObfsRecord = errors.New("malformed obfuscated record")

// ObfsTransport wraps another transport so that framing headers and message
// sizes do not appear on the wire. A Noise NN handshake runs when a
// connection is first used; afterwards each write becomes one record
//
//	len(2) || noise-ciphertext(len(2) || data || random padding)
//
// with a random padding length. Record bodies are indistinguishable from
// random bytes, but the outer 2-byte lengths are plaintext and the first
// record carries the initiator's raw X25519 ephemeral key, so the stream is
// not uniformly random. The framing above it sees the same stream.
type ObfsTransport struct {
	inner Transport
}

// NewObfsTransport wraps inner.
func NewObfsTransport(inner Transport) *ObfsTransport {
	return &ObfsTransport{inner: inner}
}

// Name implements Transport.
func (t *ObfsTransport) Name() string { return NameObfs }

// Dial implements Transport. The handshake runs on the first Read or Write.
func (t *ObfsTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	conn, err := t.inner.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return newObfsConn(conn, true), nil
}

// Listen implements Transport.
func (t *ObfsTransport) Listen(address string) (net.Listener, error) {
	ln, err := t.inner.Listen(address)
	if err != nil {
		return nil, err
	}
	return &obfsListener{Listener: ln}, nil
}

type obfsListener struct {
	net.Listener
}

// Accept returns immediately; the responder handshake runs on first use so a
// silent client cannot stall the accept loop.
func (l *obfsListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return newObfsConn(conn, false), nil
}

type obfsConn struct {
	net.Conn
	initiator bool

	handshakeOnce sync.Once
	handshakeErr  error

	rmu     sync.Mutex
	recv    *noise.CipherState
	pending []byte

	wmu  sync.Mutex
	send *noise.CipherState
}

func newObfsConn(conn net.Conn, initiator bool) *obfsConn {
	return &obfsConn{Conn: conn, initiator: initiator}
}

func (c *obfsConn) handshake() error {
	c.handshakeOnce.Do(func() {
		c.handshakeErr = c.runHandshake()
		if c.handshakeErr != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "obfsConn.handshake",
				"initiator":   c.initiator,
				"remote_addr": c.RemoteAddr().String(),
				"error":       c.handshakeErr.Error(),
			}).Warn("Obfuscation handshake failed")
		}
	})
	return c.handshakeErr
}

func (c *obfsConn) runHandshake() error {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s),
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNN,
		Initiator:   c.initiator,
		Prologue:    []byte(obfsPrologue),
	})
	if err != nil {
		return fmt.Errorf("%w: obfs handshake state: %w", ErrTransport, err)
	}

	if c.initiator {
		// -> e
		msg, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return fmt.Errorf("%w: obfs handshake: %w", ErrTransport, err)
		}
		if err := c.writeRecord(msg); err != nil {
			return err
		}
		// <- e, ee
		reply, err := c.readRecord()
		if err != nil {
			return err
		}
		_, cs1, cs2, err := hs.ReadMessage(nil, reply)
		if err != nil {
			return fmt.Errorf("%w: obfs handshake: %w", ErrTransport, err)
		}
		c.send, c.recv = cs1, cs2
		return nil
	}

	first, err := c.readRecord()
	if err != nil {
		return err
	}
	if _, _, _, err := hs.ReadMessage(nil, first); err != nil {
		return fmt.Errorf("%w: obfs handshake: %w", ErrTransport, err)
	}
	reply, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("%w: obfs handshake: %w", ErrTransport, err)
	}
	if err := c.writeRecord(reply); err != nil {
		return err
	}
	c.send, c.recv = cs2, cs1
	return nil
}

func (c *obfsConn) writeRecord(body []byte) error {
	if len(body) > obfsRecordMax {
		return fmt.Errorf("%w: %d byte record", errObfsRecord, len(body))
	}
	buf := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(buf, uint16(len(body)))
	copy(buf[2:], body)
	if _, err := c.Conn.Write(buf); err != nil {
		return fmt.Errorf("%w: obfs write: %w", ErrTransport, err)
	}
	return nil
}

func (c *obfsConn) readRecord() ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(c.Conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	if n == 0 {
		return nil, errObfsRecord
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.Conn, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

func randomPadding() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(obfsMaxPadding+1))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// Write implements net.Conn.
func (c *obfsConn) Write(p []byte) (int, error) {
	if err := c.handshake(); err != nil {
		return 0, err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > limits.MaxObfsRecord {
			chunk = chunk[:limits.MaxObfsRecord]
		}

		pad, err := randomPadding()
		if err != nil {
			return written, fmt.Errorf("%w: obfs padding: %w", ErrTransport, err)
		}

		plain := make([]byte, 2+len(chunk)+pad)
		binary.BigEndian.PutUint16(plain, uint16(len(chunk)))
		copy(plain[2:], chunk)
		if _, err := rand.Read(plain[2+len(chunk):]); err != nil {
			return written, fmt.Errorf("%w: obfs padding: %w", ErrTransport, err)
		}

		sealed, err := c.send.Encrypt(nil, nil, plain)
		if err != nil {
			return written, fmt.Errorf("%w: obfs seal: %w", ErrTransport, err)
		}
		if err := c.writeRecord(sealed); err != nil {
			return written, err
		}

		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// Read implements net.Conn.
func (c *obfsConn) Read(p []byte) (int, error) {
	if err := c.handshake(); err != nil {
		return 0, err
	}

	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.pending) == 0 {
		record, err := c.readRecord()
		if err != nil {
			return 0, err
		}
		plain, err := c.recv.Decrypt(nil, nil, record)
		if err != nil {
			return 0, fmt.Errorf("%w: obfs open: %w", ErrTransport, err)
		}
		if len(plain) < 2 {
			return 0, errObfsRecord
		}
		n := int(binary.BigEndian.Uint16(plain))
		if n > len(plain)-2 {
			return 0, errObfsRecord
		}
		c.pending = plain[2 : 2+n]
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}
