// Package transport provides the byte-stream carriers a PhantomBand circuit
// can run over.
//
// # Architecture
//
// Circuits and the relay depend only on the Transport interface:
//
//	type Transport interface {
//	    Dial(ctx context.Context, address string) (net.Conn, error)
//	    Listen(address string) (net.Listener, error)
//	    Name() string
//	}
//
// Every failure raised by a transport wraps [ErrTransport]. Placeholders
// additionally wrap [ErrNotImplemented].
//
// # Transport Implementations
//
// TCP Transport, optionally through a SOCKS5 proxy such as a local Tor daemon:
//
//	t := transport.NewTCPTransport()
//	t, err := transport.NewSOCKS5Transport(&transport.ProxyConfig{Address: "127.0.0.1:9050"})
//
// Obfuscation (wraps another transport; Noise NN handshake, padded records):
//
//	t := transport.NewObfsTransport(transport.NewTCPTransport())
//
// Traffic shaping (wraps another transport; fixed 512-byte cells, token bucket):
//
//	t := transport.NewShapingTransport(inner, transport.DefaultShapingConfig())
//
// WebSocket and QUIC carriers:
//
//	t := transport.NewWebSocketTransport("/phantomband")
//	t := transport.NewQUICTransport()
//
// DNS tunnel (placeholder, returns ErrNotImplemented):
//
//	t, err := transport.NewDNSTransport("t.example.org.")
//
// # Address Selection
//
// [MultiTransport] registers every variant and picks one per call from the
// address scheme. A bare "host:port" selects TCP:
//
//	mt := transport.NewMultiTransport()
//	conn, err := mt.Dial(ctx, "obfs://relay.example.org:8080")
//
// [New] and [Wrap] build a single variant by name for configuration files.
package transport
