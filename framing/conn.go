package framing

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/limits"
	"github.com/opd-ai/phantomband/protocol"
	"github.com/opd-ai/phantomband/transport"
)

var (
	// ErrFrameTooLarge is returned when a frame exceeds limits.MaxFrameSize,
	// either on write or as announced by a received header.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrEmptyFrame is returned when a header announces a zero length frame.
	ErrEmptyFrame = errors.New("empty frame")
)

// Conn reads and writes length-prefixed frames on a stream connection. One
// call to WriteFrame produces exactly one ReadFrame on the peer regardless of
// how the stream fragments or coalesces bytes.
//
// Writes are serialized internally. Reads must come from a single goroutine.
type Conn struct {
	conn net.Conn

	// Nanoseconds; may change while a write is in flight.
	readTimeout  atomic.Int64
	writeTimeout atomic.Int64

	header [limits.FrameHeaderSize]byte
	wmu    sync.Mutex
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// SetReadTimeout bounds every subsequent ReadFrame. Zero disables the bound.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.readTimeout.Store(int64(d))
}

// SetWriteTimeout bounds every subsequent WriteFrame. Zero disables the bound.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeTimeout.Store(int64(d))
}

// WriteFrame writes the 4-byte big-endian length of frame followed by frame,
// in a single Write call.
func (c *Conn) WriteFrame(frame []byte) error {
	if err := limits.ValidateFrame(frame); err != nil {
		if errors.Is(err, limits.ErrMessageEmpty) {
			return ErrEmptyFrame
		}
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	buf := make([]byte, limits.FrameHeaderSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[limits.FrameHeaderSize:], frame)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if d := time.Duration(c.writeTimeout.Load()); d > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
			return fmt.Errorf("%w: set write deadline: %w", transport.ErrTransport, err)
		}
	}

	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: write frame: %w", transport.ErrTransport, err)
	}
	return nil
}

// ReadFrame reads exactly one frame. A connection closed cleanly between
// frames yields an error matching io.EOF; one closed inside a frame yields
// io.ErrUnexpectedEOF. Both also match transport.ErrTransport.
func (c *Conn) ReadFrame() ([]byte, error) {
	if d := time.Duration(c.readTimeout.Load()); d > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
			return nil, fmt.Errorf("%w: set read deadline: %w", transport.ErrTransport, err)
		}
	}

	if _, err := io.ReadFull(c.conn, c.header[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", transport.ErrTransport, err)
	}

	length := binary.BigEndian.Uint32(c.header[:])
	if length > limits.MaxFrameSize {
		logrus.WithFields(logrus.Fields{
			"function":    "Conn.ReadFrame",
			"remote_addr": c.remoteAddr(),
			"frame_size":  length,
		}).Warn("Peer announced oversized frame")
		return nil, fmt.Errorf("%w: peer announced %d bytes", ErrFrameTooLarge, length)
	}
	if length == 0 {
		return nil, ErrEmptyFrame
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(c.conn, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: read frame body: %w", transport.ErrTransport, err)
	}
	return frame, nil
}

// WriteMessage encodes msg, seals it under key and writes it as one frame.
func (c *Conn) WriteMessage(msg protocol.Message, key crypto.KeyMaterial) error {
	plaintext, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}

	frame, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Conn.WriteMessage",
		"kind":        msg.Kind().String(),
		"frame_size":  len(frame),
		"remote_addr": c.remoteAddr(),
	}).Trace("Writing message")

	return c.WriteFrame(frame)
}

// ReadMessage reads one frame, opens it with key and decodes it. Crypto and
// serialization errors are returned unchanged.
func (c *Conn) ReadMessage(key crypto.KeyMaterial) (protocol.Message, error) {
	frame, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	return OpenMessage(frame, key)
}

// OpenMessage opens a frame already read with ReadFrame and decodes it, for
// callers that pick the key only after the frame has arrived.
func OpenMessage(frame []byte, key crypto.KeyMaterial) (protocol.Message, error) {
	plaintext, err := crypto.Decrypt(frame, key)
	if err != nil {
		return nil, err
	}

	return protocol.Unmarshal(plaintext)
}

// CloseOnDone closes the underlying connection when ctx is done, which
// unblocks any pending read or write. The returned stop function detaches it.
func (c *Conn) CloseOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = c.conn.Close()
	})
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// NetConn returns the wrapped connection.
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

func (c *Conn) remoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
