package framing

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/limits"
	"github.com/opd-ai/phantomband/protocol"
	"github.com/opd-ai/phantomband/transport"
)

func pipe(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return NewConn(a), b
}

func header(n int) []byte {
	h := make([]byte, limits.FrameHeaderSize)
	binary.BigEndian.PutUint32(h, uint32(n))
	return h
}

func TestWriteFrameLayout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = NewConn(a).WriteFrame([]byte("hello"))
	}()

	buf := make([]byte, 9)
	_, err := io.ReadFull(b, buf)
	require.NoError(t, err)
	assert.Equal(t, append(header(5), "hello"...), buf)
}

func TestReadFrameFragmented(t *testing.T) {
	c, peer := pipe(t)
	payload := bytes.Repeat([]byte{0x5A}, 1000)
	wire := append(header(len(payload)), payload...)

	go func() {
		for i := 0; i < len(wire); i += 7 {
			end := i + 7
			if end > len(wire) {
				end = len(wire)
			}
			if _, err := peer.Write(wire[i:end]); err != nil {
				return
			}
		}
	}()

	frame, err := c.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, payload, frame)
}

func TestReadFrameCoalesced(t *testing.T) {
	c, peer := pipe(t)

	var wire []byte
	wire = append(wire, header(3)...)
	wire = append(wire, "one"...)
	wire = append(wire, header(3)...)
	wire = append(wire, "two"...)

	go func() {
		_, _ = peer.Write(wire)
	}()

	first, err := c.ReadFrame()
	require.NoError(t, err)
	second, err := c.ReadFrame()
	require.NoError(t, err)

	assert.Equal(t, []byte("one"), first)
	assert.Equal(t, []byte("two"), second)
}

func TestReadFrameCleanEOF(t *testing.T) {
	c, peer := pipe(t)
	require.NoError(t, peer.Close())

	_, err := c.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, err, transport.ErrTransport)
}

func TestReadFramePartialBody(t *testing.T) {
	c, peer := pipe(t)

	go func() {
		_, _ = peer.Write(append(header(10), "abc"...))
		peer.Close()
	}()

	_, err := c.ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestReadFrameTooLarge(t *testing.T) {
	c, peer := pipe(t)

	go func() {
		_, _ = peer.Write(header(limits.MaxFrameSize + 1))
	}()

	_, err := c.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameEmpty(t *testing.T) {
	c, peer := pipe(t)

	go func() {
		_, _ = peer.Write(header(0))
	}()

	_, err := c.ReadFrame()
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestWriteFrameTooLarge(t *testing.T) {
	c, _ := pipe(t)
	err := c.WriteFrame(make([]byte, limits.MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	assert.ErrorIs(t, c.WriteFrame(nil), ErrEmptyFrame)
}

func TestReadTimeout(t *testing.T) {
	c, _ := pipe(t)
	c.SetReadTimeout(20 * time.Millisecond)

	_, err := c.ReadFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTransport)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestWriteTimeout(t *testing.T) {
	c, _ := pipe(t)
	c.SetWriteTimeout(20 * time.Millisecond)

	err := c.WriteFrame([]byte("nobody reads this"))
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTransport)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestSetWriteTimeoutDuringWrites(t *testing.T) {
	c, peer := pipe(t)
	go func() { _, _ = io.Copy(io.Discard, peer) }()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, c.WriteFrame([]byte("frame")))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.SetWriteTimeout(time.Duration(i%2+1) * time.Second)
		}
	}()
	wg.Wait()
}

func TestOpenMessageAfterReadFrame(t *testing.T) {
	c, peer := pipe(t)

	key, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)
	other, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)

	sent := &protocol.Data{CircuitID: 7, Payload: []byte("late key")}
	go func() {
		_ = NewConn(peer).WriteMessage(sent, key)
	}()

	frame, err := c.ReadFrame()
	require.NoError(t, err)

	_, err = OpenMessage(frame, other)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)

	got, err := OpenMessage(frame, key)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestMessageRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	key, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)

	sent := &protocol.Data{CircuitID: 12345, Payload: []byte("Hello PhantomBand!")}
	errc := make(chan error, 1)
	go func() {
		errc <- NewConn(a).WriteMessage(sent, key)
	}()

	got, err := NewConn(b).ReadMessage(key)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, sent, got)
}

func TestReadMessageWrongKey(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	key, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)
	other, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)

	go func() {
		_ = NewConn(a).WriteMessage(&protocol.Disconnect{}, key)
	}()

	_, err = NewConn(b).ReadMessage(other)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}

func TestCloseOnDone(t *testing.T) {
	c, _ := pipe(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer c.CloseOnDone(ctx)()

	done := make(chan error, 1)
	go func() {
		_, err := c.ReadFrame()
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, transport.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("read was not unblocked by context cancellation")
	}
}
