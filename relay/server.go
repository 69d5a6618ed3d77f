package relay

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/framing"
	"github.com/opd-ai/phantomband/logging"
	"github.com/opd-ai/phantomband/transport"
)

// ErrProtocol is returned for well-formed messages that arrive out of turn.
var ErrProtocol = errors.New("protocol violation")

// Server accepts client connections and runs one session per connection.
type Server struct {
	cfg      *Config
	registry *Registry
	kex      crypto.KeyExchange
}

// NewServer creates a relay from a validated config. Sessions register their
// keys in registry.
func NewServer(cfg *Config, registry *Registry) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("relay: config cannot be nil")
	}
	if registry == nil {
		registry = NewRegistry()
	}

	kex, err := cfg.NewKeyExchange()
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, registry: registry, kex: kex}

	entry := logrus.WithFields(logrus.Fields{
		"function":       "NewServer",
		"relay_id":       cfg.RelayID,
		"handshake_mode": kex.Mode(),
	})
	if pub, ok := cfg.PublicKey(); ok {
		entry = entry.WithField("relay_public_key", pub.Hex())
	}
	entry.Info("Relay created")
	return s, nil
}

// RelayID returns the id sent in ConnectResponse.
func (s *Server) RelayID() string { return s.cfg.RelayID }

// Registry returns the session registry.
func (s *Server) Registry() *Registry { return s.registry }

// ListenAndServe listens on address with tr and serves until ctx is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, tr transport.Transport, address string) error {
	ln, err := tr.Listen(address)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Server.ListenAndServe",
		"transport": tr.Name(),
		"address":   ln.Addr().String(),
	}).Info("Relay listening")

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
// Each connection is handled in its own goroutine; a failing connection is
// logged and never affects the others. Cancelling ctx closes ln and every
// live connection, and Serve returns once all handlers have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				logging.For("relay", "Server.Serve").
					WithField("address", ln.Addr().String()).
					WithError(err, "accept").
					Error("Listener failed")
				return fmt.Errorf("relay: accept: %w", err)
			}

			connectionsTotal.Inc()
			g.Go(func() error {
				s.serveConn(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	logrus.WithFields(logrus.Fields{
		"function": "Server.Serve",
		"address":  ln.Addr().String(),
	}).Info("Relay stopped")
	return err
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	activeConnections.Inc()
	defer activeConnections.Dec()

	fc := framing.NewConn(conn)
	fc.SetReadTimeout(s.cfg.ReadTimeout)
	stop := fc.CloseOnDone(ctx)
	defer stop()
	defer fc.Close()

	newSession(s, fc).run()
}
