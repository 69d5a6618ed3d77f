package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

const quicALPN = "phantomband"

// QUICTransport carries each circuit on one bidirectional QUIC stream. The
// relay presents a throwaway self-signed certificate; peers are authenticated
// by the circuit handshake, not by TLS.
type QUICTransport struct {
	config *quic.Config
}

// NewQUICTransport creates a QUIC transport.
func NewQUICTransport() *QUICTransport {
	return &QUICTransport{
		config: &quic.Config{
			MaxIdleTimeout:  2 * time.Minute,
			KeepAlivePeriod: 15 * time.Second,
		},
	}
}

// Name implements Transport.
func (t *QUICTransport) Name() string { return NameQUIC }

// Dial implements Transport.
func (t *QUICTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicALPN},
		MinVersion:         tls.VersionTLS13,
	}

	sess, err := quic.DialAddr(ctx, address, tlsConf, t.config)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "QUICTransport.Dial",
			"address":  address,
			"error":    err.Error(),
		}).Error("Failed to dial QUIC connection")
		return nil, wrapErr("dial", NameQUIC, address, err)
	}

	stream, err := sess.OpenStreamSync(ctx)
	if err != nil {
		_ = sess.CloseWithError(0, "")
		return nil, wrapErr("open stream", NameQUIC, address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "QUICTransport.Dial",
		"address":     address,
		"remote_addr": sess.RemoteAddr().String(),
	}).Info("QUIC connection established")

	return &quicConn{
		stream: stream,
		local:  sess.LocalAddr(),
		remote: sess.RemoteAddr(),
		closeSession: func() error {
			return sess.CloseWithError(0, "")
		},
	}, nil
}

// Listen implements Transport.
func (t *QUICTransport) Listen(address string) (net.Listener, error) {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return nil, wrapErr("listen", NameQUIC, address, err)
	}

	ln, err := quic.ListenAddr(address, tlsConf, t.config)
	if err != nil {
		return nil, wrapErr("listen", NameQUIC, address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &quicListener{
		addr:    ln.Addr(),
		closeLn: ln.Close,
		conns:   make(chan net.Conn),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Streams are accepted off the accept loop: a peer's stream only becomes
	// visible once it writes, and a silent peer must not block others.
	go func() {
		for {
			sess, err := ln.Accept(ctx)
			if err != nil {
				l.fail(err)
				return
			}
			go func() {
				stream, err := sess.AcceptStream(ctx)
				if err != nil {
					_ = sess.CloseWithError(0, "")
					return
				}
				c := &quicConn{
					stream: stream,
					local:  sess.LocalAddr(),
					remote: sess.RemoteAddr(),
					closeSession: func() error {
						return sess.CloseWithError(0, "")
					},
				}
				select {
				case l.conns <- c:
				case <-ctx.Done():
					_ = c.Close()
				}
			}()
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function":   "QUICTransport.Listen",
		"local_addr": ln.Addr().String(),
	}).Info("QUIC listener created successfully")

	return l, nil
}

type quicListener struct {
	addr    net.Addr
	closeLn func() error
	conns   chan net.Conn

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

func (l *quicListener) fail(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	l.cancel()
}

func (l *quicListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.closed && l.err != nil && !errors.Is(l.err, context.Canceled) {
			return nil, wrapErr("accept", NameQUIC, l.addr.String(), l.err)
		}
		return nil, net.ErrClosed
	}
}

func (l *quicListener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	return l.closeLn()
}

func (l *quicListener) Addr() net.Addr { return l.addr }

// quicStream is the subset of a QUIC stream used here.
type quicStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// quicConn wraps a session and its single stream as a net.Conn.
type quicConn struct {
	stream       quicStream
	local        net.Addr
	remote       net.Addr
	closeSession func() error
	closeOnce    sync.Once
}

func (c *quicConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

// Close closes the stream and the whole session.
func (c *quicConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.stream.Close()
		err = c.closeSession()
	})
	return err
}

func (c *quicConn) LocalAddr() net.Addr                { return c.local }
func (c *quicConn) RemoteAddr() net.Addr               { return c.remote }
func (c *quicConn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *quicConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *quicConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }

// generateTLSConfig creates a bare-bones server TLS config with a fresh
// self-signed ed25519 certificate.
func generateTLSConfig() (*tls.Config, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: serial,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  priv,
		}},
		NextProtos: []string{quicALPN},
		MinVersion: tls.VersionTLS13,
	}, nil
}
