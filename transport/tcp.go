package transport

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const defaultDialTimeout = 10 * time.Second

// TCPTransport carries circuits over plain TCP, optionally through a SOCKS5
// proxy.
type TCPTransport struct {
	dialer  proxy.ContextDialer
	proxied bool
}

// NewTCPTransport creates a direct TCP transport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{
		dialer: &directDialer{Dialer: net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}},
	}
}

// NewSOCKS5Transport creates a TCP transport whose outbound connections are
// tunneled through a SOCKS5 proxy. Listening is unaffected.
func NewSOCKS5Transport(config *ProxyConfig) (*TCPTransport, error) {
	dialer, err := newSOCKS5Dialer(config)
	if err != nil {
		return nil, err
	}
	return &TCPTransport{dialer: dialer, proxied: true}, nil
}

// Name implements Transport.
func (t *TCPTransport) Name() string { return NameTCP }

// Dial implements Transport.
func (t *TCPTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	entry := logrus.WithFields(logrus.Fields{
		"function": "TCPTransport.Dial",
		"address":  address,
		"proxied":  t.proxied,
	})

	conn, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Relay unreachable over TCP")
		return nil, wrapErr("dial", NameTCP, address, err)
	}

	entry.WithField("local_addr", conn.LocalAddr().String()).Debug("Relay stream open")
	return conn, nil
}

// Listen implements Transport.
func (t *TCPTransport) Listen(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, wrapErr("listen", NameTCP, address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "TCPTransport.Listen",
		"local_addr": ln.Addr().String(),
	}).Debug("Accepting relay streams")
	return ln, nil
}
