package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrTransport is wrapped by every dial, listen, read and write failure
	// raised by a transport.
	ErrTransport = errors.New("transport error")

	// ErrNotImplemented is returned by declared transports that have no
	// working carrier yet.
	ErrNotImplemented = errors.New("transport not implemented")
)

// Transport opens reliable byte streams to a relay. Circuits and the relay
// only ever see this interface.
//
// Addresses are "host:port". A MultiTransport additionally accepts a
// "scheme://" prefix selecting the variant.
type Transport interface {
	// Dial establishes a connection. Cancelling ctx aborts the dial.
	Dial(ctx context.Context, address string) (net.Conn, error)

	// Listen accepts connections on address.
	Listen(address string) (net.Listener, error)

	// Name is the scheme this transport is registered under.
	Name() string
}

// Names of the built-in transports. They double as address schemes.
const (
	NameTCP       = "tcp"
	NameObfs      = "obfs"
	NameShaped    = "shaped"
	NameWebSocket = "ws"
	NameQUIC      = "quic"
	NameDNS       = "dns"
)

// SplitScheme separates an optional "scheme://" prefix from address. Bare
// addresses report the tcp scheme.
func SplitScheme(address string) (scheme, hostport string) {
	if i := strings.Index(address, "://"); i >= 0 {
		return strings.ToLower(address[:i]), address[i+3:]
	}
	return NameTCP, address
}

func wrapErr(op, name, address string, err error) error {
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %s %s %s: %w", ErrTransport, name, op, address, err)
}
