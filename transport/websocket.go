package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultWebSocketPath is the HTTP path the relay upgrades on.
const DefaultWebSocketPath = "/phantomband"

// WebSocketTransport carries circuits inside a WebSocket session so they pass
// through HTTP-only middleboxes. Each Write is one binary message; Read
// streams across message boundaries.
type WebSocketTransport struct {
	path   string
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates a transport that dials and serves on path.
// An empty path selects DefaultWebSocketPath.
func NewWebSocketTransport(path string) *WebSocketTransport {
	if path == "" {
		path = DefaultWebSocketPath
	}
	return &WebSocketTransport{
		path: path,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultDialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Name implements Transport.
func (t *WebSocketTransport) Name() string { return NameWebSocket }

// Dial implements Transport.
func (t *WebSocketTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	url := "ws://" + address + t.path
	ws, resp, err := t.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WebSocketTransport.Dial",
			"url":      url,
			"error":    err.Error(),
		}).Error("Failed to dial websocket")
		return nil, wrapErr("dial", NameWebSocket, address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "WebSocketTransport.Dial",
		"url":         url,
		"remote_addr": ws.RemoteAddr().String(),
	}).Info("WebSocket connection established")

	return &wsConn{ws: ws}, nil
}

// Listen implements Transport. It serves HTTP on address and hands every
// successful upgrade on the transport's path to Accept.
func (t *WebSocketTransport) Listen(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, wrapErr("listen", NameWebSocket, address, err)
	}

	l := &wsListener{
		ln:    ln,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(t.path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "WebSocketTransport.Listen",
				"remote_addr": r.RemoteAddr,
				"error":       err.Error(),
			}).Debug("WebSocket upgrade failed")
			return
		}
		select {
		case l.conns <- &wsConn{ws: ws}:
		case <-l.done:
			ws.Close()
		}
	})

	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: defaultDialTimeout,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "WebSocketTransport.Listen",
				"address":  address,
				"error":    err.Error(),
			}).Error("WebSocket server stopped")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function":   "WebSocketTransport.Listen",
		"local_addr": ln.Addr().String(),
		"path":       t.path,
	}).Info("WebSocket listener created successfully")

	return l, nil
}

type wsListener struct {
	ln    net.Listener
	srv   *http.Server
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}

// wsConn adapts a websocket session to net.Conn.
type wsConn struct {
	ws *websocket.Conn

	rmu    sync.Mutex
	reader io.Reader

	wmu sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			msgType, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure) {
					return 0, io.EOF
				}
				return 0, err
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame, best effort, and closes the socket.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	if err := c.ws.Close(); err != nil {
		return fmt.Errorf("%w: websocket close: %w", ErrTransport, err)
	}
	return nil
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
