package transport

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// NameMulti is the name of a MultiTransport.
const NameMulti = "multi"

// MultiTransport orchestrates several Transport implementations, selecting
// one per call from the scheme prefix of the address:
//
//	127.0.0.1:8080          tcp
//	obfs://127.0.0.1:8080   obfuscated tcp
//	shaped://host:port      traffic-shaped tcp
//	ws://host:port          websocket
//	quic://host:port        quic
//	dns://host:port         dns tunnel (not implemented)
type MultiTransport struct {
	transports map[string]Transport
	mu         sync.RWMutex
}

// NewMultiTransport creates a multi-transport with every built-in variant
// registered.
func NewMultiTransport() *MultiTransport {
	logrus.WithField("function", "NewMultiTransport").Info("Creating multi-transport")

	mt := &MultiTransport{
		transports: make(map[string]Transport),
	}

	tcp := NewTCPTransport()
	mt.RegisterTransport(NameTCP, tcp)
	mt.RegisterTransport(NameObfs, NewObfsTransport(tcp))
	mt.RegisterTransport(NameShaped, NewShapingTransport(tcp, DefaultShapingConfig()))
	mt.RegisterTransport(NameWebSocket, NewWebSocketTransport(""))
	mt.RegisterTransport(NameQUIC, NewQUICTransport())
	if dnsT, err := NewDNSTransport(""); err == nil {
		mt.RegisterTransport(NameDNS, dnsT)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewMultiTransport",
		"schemes":  mt.SupportedSchemes(),
	}).Info("Multi-transport initialized")

	return mt
}

// RegisterTransport registers t under scheme, replacing any previous entry.
func (mt *MultiTransport) RegisterTransport(scheme string, t Transport) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "MultiTransport.RegisterTransport",
		"scheme":    scheme,
		"transport": fmt.Sprintf("%T", t),
	}).Debug("Registering transport")

	mt.transports[scheme] = t
}

// GetTransport returns the transport registered for scheme.
func (mt *MultiTransport) GetTransport(scheme string) (Transport, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	t, ok := mt.transports[scheme]
	return t, ok
}

// SupportedSchemes lists the registered schemes in sorted order.
func (mt *MultiTransport) SupportedSchemes() []string {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	schemes := make([]string, 0, len(mt.transports))
	for s := range mt.transports {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

func (mt *MultiTransport) selectTransport(address string) (Transport, string, error) {
	scheme, hostport := SplitScheme(address)

	mt.mu.RLock()
	t, ok := mt.transports[scheme]
	mt.mu.RUnlock()

	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "MultiTransport.selectTransport",
			"address":  address,
			"scheme":   scheme,
		}).Error("No transport registered for scheme")
		return nil, "", fmt.Errorf("%w: no transport registered for scheme %q", ErrTransport, scheme)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "MultiTransport.selectTransport",
		"address":   address,
		"scheme":    scheme,
		"transport": t.Name(),
	}).Debug("Transport selected")

	return t, hostport, nil
}

// Name implements Transport.
func (mt *MultiTransport) Name() string { return NameMulti }

// Dial implements Transport.
func (mt *MultiTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	t, hostport, err := mt.selectTransport(address)
	if err != nil {
		return nil, err
	}
	return t.Dial(ctx, hostport)
}

// Listen implements Transport.
func (mt *MultiTransport) Listen(address string) (net.Listener, error) {
	t, hostport, err := mt.selectTransport(address)
	if err != nil {
		return nil, err
	}
	return t.Listen(hostport)
}

// New builds a transport by name. An empty name selects tcp. The decorator
// variants wrap a direct TCP transport.
func New(name string) (Transport, error) {
	switch name {
	case "", NameTCP:
		return NewTCPTransport(), nil
	case NameObfs, NameShaped:
		return Wrap(name, NewTCPTransport())
	case NameWebSocket:
		return NewWebSocketTransport(""), nil
	case NameQUIC:
		return NewQUICTransport(), nil
	case NameDNS:
		return NewDNSTransport("")
	case NameMulti:
		return NewMultiTransport(), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrTransport, name)
	}
}

// Wrap applies a decorator variant to inner.
func Wrap(name string, inner Transport) (Transport, error) {
	switch name {
	case NameObfs:
		return NewObfsTransport(inner), nil
	case NameShaped:
		return NewShapingTransport(inner, DefaultShapingConfig()), nil
	default:
		return nil, fmt.Errorf("%w: %q is not a wrapping transport", ErrTransport, name)
	}
}
