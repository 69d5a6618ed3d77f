package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/phantomband/limits"
)

const shapingCellHeader = 2

var errShapedCell = errors.New("malformed shaped cell")

// ShapingConfig controls cell emission.
type ShapingConfig struct {
	// CellSize is the fixed on-wire size of every cell.
	CellSize int
	// CellsPerSecond caps the emission rate. Zero means unlimited.
	CellsPerSecond float64
	// Burst is the number of cells that may be sent back to back.
	Burst int
}

// DefaultShapingConfig returns 512-byte cells at up to 2000 cells/s.
func DefaultShapingConfig() ShapingConfig {
	return ShapingConfig{
		CellSize:       limits.ShapingCellSize,
		CellsPerSecond: 2000,
		Burst:          64,
	}
}

// ShapingTransport wraps another transport and hides write sizes and timing
// behind fixed-size cells
//
//	len(2) || data || zero padding
//
// emitted through a token bucket.
type ShapingTransport struct {
	inner  Transport
	config ShapingConfig
}

// NewShapingTransport wraps inner. Invalid config values fall back to the
// defaults.
func NewShapingTransport(inner Transport, config ShapingConfig) *ShapingTransport {
	def := DefaultShapingConfig()
	if config.CellSize <= shapingCellHeader || config.CellSize > 65535 {
		config.CellSize = def.CellSize
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.CellsPerSecond < 0 {
		config.CellsPerSecond = def.CellsPerSecond
	}
	return &ShapingTransport{inner: inner, config: config}
}

// Name implements Transport.
func (t *ShapingTransport) Name() string { return NameShaped }

// Dial implements Transport.
func (t *ShapingTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	conn, err := t.inner.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return newShapedConn(conn, t.config), nil
}

// Listen implements Transport.
func (t *ShapingTransport) Listen(address string) (net.Listener, error) {
	ln, err := t.inner.Listen(address)
	if err != nil {
		return nil, err
	}
	return &shapedListener{Listener: ln, config: t.config}, nil
}

type shapedListener struct {
	net.Listener
	config ShapingConfig
}

func (l *shapedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return newShapedConn(conn, l.config), nil
}

type shapedConn struct {
	net.Conn
	cellSize int
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	wmu sync.Mutex

	rmu     sync.Mutex
	cell    []byte
	pending []byte
}

func newShapedConn(conn net.Conn, config ShapingConfig) *shapedConn {
	limit := rate.Inf
	if config.CellsPerSecond > 0 {
		limit = rate.Limit(config.CellsPerSecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &shapedConn{
		Conn:     conn,
		cellSize: config.CellSize,
		limiter:  rate.NewLimiter(limit, config.Burst),
		ctx:      ctx,
		cancel:   cancel,
		cell:     make([]byte, config.CellSize),
	}
}

// Write implements net.Conn. Each cell waits for a token; closing the
// connection releases a waiting writer.
func (c *shapedConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	capacity := c.cellSize - shapingCellHeader
	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > capacity {
			chunk = chunk[:capacity]
		}

		if err := c.limiter.Wait(c.ctx); err != nil {
			return written, fmt.Errorf("%w: shaping: %w", ErrTransport, err)
		}

		cell := make([]byte, c.cellSize)
		binary.BigEndian.PutUint16(cell, uint16(len(chunk)))
		copy(cell[shapingCellHeader:], chunk)

		if _, err := c.Conn.Write(cell); err != nil {
			return written, err
		}

		written += len(chunk)
		p = p[len(chunk):]
	}

	logrus.WithFields(logrus.Fields{
		"function": "shapedConn.Write",
		"bytes":    written,
	}).Trace("Wrote shaped cells")

	return written, nil
}

// Read implements net.Conn.
func (c *shapedConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.pending) == 0 {
		if _, err := io.ReadFull(c.Conn, c.cell); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, fmt.Errorf("%w: truncated cell", errShapedCell)
			}
			return 0, err
		}
		n := int(binary.BigEndian.Uint16(c.cell))
		if n > c.cellSize-shapingCellHeader {
			return 0, errShapedCell
		}
		c.pending = append([]byte(nil), c.cell[shapingCellHeader:shapingCellHeader+n]...)
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Close implements net.Conn.
func (c *shapedConn) Close() error {
	c.cancel()
	return c.Conn.Close()
}
