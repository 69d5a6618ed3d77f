package relay

import (
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/framing"
	"github.com/opd-ai/phantomband/logging"
	"github.com/opd-ai/phantomband/protocol"
)

const (
	connectEstablished = "Connection established."
	circuitCreated     = "Circuit created."
)

// session is the per-connection state. It is only touched by the goroutine
// serving the connection.
type session struct {
	server     *Server
	conn       *framing.Conn
	remoteAddr string

	clientID   string
	key        crypto.KeyMaterial
	registered bool
	circuits   map[uint64]struct{}
	done       bool
}

var _ protocol.Handler = (*session)(nil)

func newSession(s *Server, conn *framing.Conn) *session {
	return &session{
		server:     s,
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		circuits:   make(map[uint64]struct{}),
	}
}

func (s *session) logger(function string) *logging.Helper {
	h := logging.For("relay", function).WithField("remote_addr", s.remoteAddr)
	if s.registered {
		h.WithField("client_id", s.clientID)
	}
	return h
}

// readKey is the handshake request key until a client registers, then the
// key the registry currently holds for it. It is looked up after each frame
// arrives, so a re-registration from another connection locks this one out
// on its next frame.
func (s *session) readKey() (crypto.KeyMaterial, error) {
	if !s.registered {
		return s.server.kex.RequestKey(), nil
	}
	key, ok := s.server.registry.Lookup(s.clientID)
	if !ok {
		return crypto.KeyMaterial{}, fmt.Errorf("%w: client %q is no longer registered", ErrProtocol, s.clientID)
	}
	return key, nil
}

func (s *session) run() {
	defer s.cleanup()
	s.logger("session.run").Debug("Connection accepted")

	for !s.done {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger("session.run").Debug("Peer disconnected")
				return
			}
			s.abort(err)
			return
		}

		key, err := s.readKey()
		if err != nil {
			s.abort(err)
			return
		}

		msg, err := framing.OpenMessage(frame, key)
		if err != nil {
			s.abort(err)
			return
		}

		framesTotal.WithLabelValues(msg.Kind().String()).Inc()
		if err := protocol.Dispatch(msg, s); err != nil {
			s.abort(err)
			return
		}
	}
}

func (s *session) abort(err error) {
	reason := abortReason(err)
	abortsTotal.WithLabelValues(reason).Inc()
	s.logger("session.abort").
		WithField("reason", reason).
		WithError(err, "serve").
		Warn("Aborting connection")
}

func (s *session) cleanup() {
	if !s.registered {
		return
	}
	if s.server.registry.RemoveIf(s.clientID, s.key) {
		s.logger("session.cleanup").Info("Client removed from registry")
	}
	s.key.Wipe()
	s.registered = false
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, ErrProtocol),
		errors.Is(err, framing.ErrFrameTooLarge),
		errors.Is(err, framing.ErrEmptyFrame):
		return abortProtocol
	case errors.Is(err, crypto.ErrAuthenticationFailed),
		errors.Is(err, crypto.ErrFrameTooShort),
		errors.Is(err, crypto.ErrInvalidKey):
		return abortCrypto
	case errors.Is(err, protocol.ErrSerialization):
		return abortSerialization
	default:
		return abortTransport
	}
}

func (s *session) HandleConnectRequest(m *protocol.ConnectRequest) error {
	if s.registered {
		return fmt.Errorf("%w: second ConnectRequest from %q", ErrProtocol, s.clientID)
	}
	if m.ClientID == "" {
		return fmt.Errorf("%w: empty client id", ErrProtocol)
	}

	resp, err := s.server.kex.Respond(m.PublicKey)
	if err != nil {
		return fmt.Errorf("key exchange: %w", err)
	}

	s.server.registry.Register(m.ClientID, resp.SessionKey)
	s.clientID = m.ClientID
	s.key = resp.SessionKey
	s.registered = true

	s.logger("session.HandleConnectRequest").
		WithFields(crypto.SecureFieldHash(m.PublicKey[:], "client_key")).
		Info("Client registered")

	return s.conn.WriteMessage(&protocol.ConnectResponse{
		RelayID:   s.server.cfg.RelayID,
		PublicKey: resp.PublicKey,
		Success:   true,
		Message:   protocol.Text(connectEstablished),
	}, resp.ResponseKey)
}

func (s *session) HandleCircuitCreate(m *protocol.CircuitCreate) error {
	if !s.registered {
		return fmt.Errorf("%w: CircuitCreate before ConnectRequest", ErrProtocol)
	}
	if _, ok := s.circuits[m.CircuitID]; ok {
		return fmt.Errorf("%w: circuit %d already exists", ErrProtocol, m.CircuitID)
	}
	s.circuits[m.CircuitID] = struct{}{}

	s.logger("session.HandleCircuitCreate").
		WithField("circuit_id", m.CircuitID).
		Info("Circuit created")

	return s.conn.WriteMessage(&protocol.CircuitCreated{
		CircuitID: m.CircuitID,
		Success:   true,
		Message:   protocol.Text(circuitCreated),
	}, s.key)
}

func (s *session) HandleData(m *protocol.Data) error {
	if _, ok := s.circuits[m.CircuitID]; !ok {
		return fmt.Errorf("%w: data for unknown circuit %d", ErrProtocol, m.CircuitID)
	}

	s.logger("session.HandleData").
		WithField("circuit_id", m.CircuitID).
		WithField("payload_size", len(m.Payload)).
		Debug("Echoing data")

	return s.conn.WriteMessage(&protocol.Data{CircuitID: m.CircuitID, Payload: m.Payload}, s.key)
}

func (s *session) HandleDisconnect(*protocol.Disconnect) error {
	s.logger("session.HandleDisconnect").Info("Client disconnected")
	s.done = true
	return nil
}

func (s *session) HandleConnectResponse(*protocol.ConnectResponse) error {
	return fmt.Errorf("%w: relay received %s", ErrProtocol, protocol.KindConnectResponse)
}

func (s *session) HandleCircuitCreated(*protocol.CircuitCreated) error {
	return fmt.Errorf("%w: relay received %s", ErrProtocol, protocol.KindCircuitCreated)
}
