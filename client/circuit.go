package client

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/framing"
	"github.com/opd-ai/phantomband/limits"
	"github.com/opd-ai/phantomband/protocol"
	"github.com/opd-ai/phantomband/transport"
)

const (
	// DefaultReadTimeout bounds every blocking read on the circuit.
	DefaultReadTimeout = 30 * time.Second

	disconnectTimeout = 2 * time.Second
)

// Options configures a Circuit.
type Options struct {
	// ClientID identifies the session at the relay. A random id is used when
	// empty.
	ClientID string

	// CircuitID pins the circuit id. A random non-zero id is used when zero.
	CircuitID uint64

	// ReadTimeout bounds every blocking read. DefaultReadTimeout when zero.
	ReadTimeout time.Duration
}

// Circuit is a client's encrypted session with one relay. It is created
// Idle, established with Connect, used with Send and Receive while Active,
// and discarded once Closed or Failed. There is no reconnection.
//
// Send and Receive may be called from different goroutines.
type Circuit struct {
	transport   transport.Transport
	kex         crypto.KeyExchange
	clientID    string
	readTimeout time.Duration

	mu         sync.Mutex
	state      State
	id         uint64
	relayKey   *crypto.KeyMaterial
	sessionKey crypto.KeyMaterial
	conn       *framing.Conn
	err        error
}

// NewCircuit creates an Idle circuit that dials through tr and derives its
// keys with kex.
func NewCircuit(tr transport.Transport, kex crypto.KeyExchange, opts Options) (*Circuit, error) {
	if tr == nil {
		return nil, errors.New("client: transport cannot be nil")
	}
	if kex == nil {
		return nil, errors.New("client: key exchange cannot be nil")
	}

	if opts.ClientID == "" {
		opts.ClientID = xid.New().String()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	return &Circuit{
		transport:   tr,
		kex:         kex,
		clientID:    opts.ClientID,
		readTimeout: opts.ReadTimeout,
		id:          opts.CircuitID,
		state:       StateIdle,
	}, nil
}

// State returns the current state.
func (c *Circuit) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID returns the circuit id. It is only meaningful once Active.
func (c *Circuit) ID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// ClientID returns the id sent in ConnectRequest.
func (c *Circuit) ClientID() string {
	return c.clientID
}

// RelayKey returns the key the relay advertised in ConnectResponse, or nil
// before it arrived.
func (c *Circuit) RelayKey() *crypto.KeyMaterial {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.relayKey == nil {
		return nil
	}
	k := *c.relayKey
	return &k
}

// Err returns the error that moved the circuit to Failed or Closed, if any.
func (c *Circuit) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Circuit) logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function":  function,
		"client_id": c.clientID,
	})
}

func (c *Circuit) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.logger("Circuit.setState").WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   s.String(),
	}).Debug("Circuit state changed")
}

// terminate moves the circuit to a terminal state and releases the
// connection. The first terminal transition wins.
func (c *Circuit) terminate(s State, err error) error {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return err
	}
	c.state = s
	c.err = err
	conn := c.conn
	c.sessionKey.Wipe()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	entry := c.logger("Circuit.terminate").WithField("state", s.String())
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Circuit terminated")
	} else {
		entry.Info("Circuit closed")
	}
	return err
}

func (c *Circuit) fail(reason FailureReason, err error) error {
	return c.terminate(StateFailed, newCircuitError(reason, err))
}

// failIO classifies err. Transport errors close an Active circuit; anything
// else fails it.
func (c *Circuit) failIO(err error) error {
	if c.State().IsTerminal() {
		return ErrClosed
	}
	reason := classify(err)
	if reason == TransportError && c.State() == StateActive {
		return c.terminate(StateClosed, newCircuitError(reason, err))
	}
	return c.fail(reason, err)
}

// Connect dials address and runs the handshake up to Active:
//
//	Idle -> Connecting -> AwaitingConnectResponse -> RelayKeyEstablished
//	     -> AwaitingCircuitCreated -> CircuitEstablished -> Active
//
// Any failure leaves the circuit Failed and returns a *CircuitError.
// Cancelling ctx aborts the handshake.
func (c *Circuit) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: connect in state %s", ErrInvalidState, state)
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	c.logger("Circuit.Connect").WithField("address", address).Info("Connecting to relay")

	netConn, err := c.transport.Dial(ctx, address)
	if err != nil {
		return c.fail(TransportError, err)
	}

	conn := framing.NewConn(netConn)
	conn.SetReadTimeout(c.readTimeout)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := conn.CloseOnDone(ctx)
	defer stop()

	hs, err := c.kex.NewInitiator()
	if err != nil {
		return c.fail(CryptoError, err)
	}

	// ConnectRequest
	req := &protocol.ConnectRequest{ClientID: c.clientID, PublicKey: hs.PublicKey()}
	if err := conn.WriteMessage(req, hs.RequestKey()); err != nil {
		return c.fail(classify(err), err)
	}
	c.setState(StateAwaitingConnectResponse)

	msg, err := conn.ReadMessage(hs.ResponseKey())
	if err != nil {
		return c.fail(classify(err), contextErr(ctx, err))
	}
	resp, ok := msg.(*protocol.ConnectResponse)
	if !ok {
		return c.fail(RelayRejected, fmt.Errorf("expected %s, got %s", protocol.KindConnectResponse, msg.Kind()))
	}
	if !resp.Success {
		return c.fail(RelayRejected, fmt.Errorf("relay %q: %s", resp.RelayID, protocol.MessageText(resp.Message)))
	}

	session, err := hs.Finish(resp.PublicKey)
	if err != nil {
		return c.fail(CryptoError, err)
	}
	relayKey := resp.PublicKey
	c.mu.Lock()
	c.relayKey = &relayKey
	c.sessionKey = session
	c.mu.Unlock()
	c.setState(StateRelayKeyEstablished)

	c.logger("Circuit.Connect").WithFields(logrus.Fields{
		"relay_id":  resp.RelayID,
		"relay_key": relayKey.String(),
		"message":   protocol.MessageText(resp.Message),
	}).Info("Relay accepted session")

	// CircuitCreate
	id, err := c.circuitID()
	if err != nil {
		return c.fail(CryptoError, err)
	}
	create := &protocol.CircuitCreate{CircuitID: id, PublicKey: hs.PublicKey()}
	if err := conn.WriteMessage(create, session); err != nil {
		return c.fail(classify(err), err)
	}
	c.setState(StateAwaitingCircuitCreated)

	msg, err = conn.ReadMessage(session)
	if err != nil {
		return c.fail(classify(err), contextErr(ctx, err))
	}
	created, ok := msg.(*protocol.CircuitCreated)
	switch {
	case !ok:
		return c.fail(CircuitCreationFailed, fmt.Errorf("expected %s, got %s", protocol.KindCircuitCreated, msg.Kind()))
	case !created.Success:
		return c.fail(CircuitCreationFailed, fmt.Errorf("relay refused circuit %d: %s", id, protocol.MessageText(created.Message)))
	case created.CircuitID != id:
		return c.fail(CircuitCreationFailed, fmt.Errorf("relay confirmed circuit %d, requested %d", created.CircuitID, id))
	}

	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
	c.setState(StateCircuitEstablished)
	c.setState(StateActive)

	c.logger("Circuit.Connect").WithField("circuit_id", id).Info("Circuit established")
	return nil
}

func (c *Circuit) circuitID() (uint64, error) {
	c.mu.Lock()
	id := c.id
	c.mu.Unlock()
	if id != 0 {
		return id, nil
	}

	var b [8]byte
	for id == 0 {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("generate circuit id: %w", err)
		}
		id = binary.BigEndian.Uint64(b[:])
	}
	return id, nil
}

// contextErr prefers the context's error when it caused err.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

// active returns the live connection and keys, or ErrInvalidState.
func (c *Circuit) active(op string) (*framing.Conn, uint64, crypto.KeyMaterial, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return nil, 0, crypto.KeyMaterial{}, fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, c.state)
	}
	return c.conn, c.id, c.sessionKey, nil
}

// Send encrypts payload as a Data message on this circuit.
func (c *Circuit) Send(ctx context.Context, payload []byte) error {
	conn, id, key, err := c.active("send")
	if err != nil {
		return err
	}
	if err := limits.ValidateDataPayload(payload); err != nil {
		return err
	}

	stop := conn.CloseOnDone(ctx)
	defer stop()

	if err := conn.WriteMessage(&protocol.Data{CircuitID: id, Payload: payload}, key); err != nil {
		return c.failIO(contextErr(ctx, err))
	}

	c.logger("Circuit.Send").WithFields(logrus.Fields{
		"circuit_id":   id,
		"payload_size": len(payload),
	}).Debug("Sent data")
	return nil
}

// Receive waits for the next Data message on this circuit. A Disconnect
// from the relay closes the circuit and returns ErrClosed. Data addressed to
// another circuit fails it with ProtocolError.
func (c *Circuit) Receive(ctx context.Context) ([]byte, error) {
	conn, id, key, err := c.active("receive")
	if err != nil {
		return nil, err
	}

	stop := conn.CloseOnDone(ctx)
	defer stop()

	msg, err := conn.ReadMessage(key)
	if err != nil {
		return nil, c.failIO(contextErr(ctx, err))
	}

	h := &receiver{circuitID: id}
	if err := protocol.Dispatch(msg, h); err != nil {
		if errors.Is(err, ErrClosed) {
			_ = c.terminate(StateClosed, nil)
			return nil, ErrClosed
		}
		return nil, c.fail(ProtocolError, err)
	}

	c.logger("Circuit.Receive").WithFields(logrus.Fields{
		"circuit_id":   id,
		"payload_size": len(h.payload),
	}).Debug("Received data")
	return h.payload, nil
}

// Close sends Disconnect, best effort, and moves the circuit to Closed.
// Closing a finished circuit is a no-op.
func (c *Circuit) Close() error {
	c.mu.Lock()
	state, conn, key := c.state, c.conn, c.sessionKey
	c.mu.Unlock()

	if state.IsTerminal() {
		return nil
	}

	if conn != nil && state.hasSessionKey() {
		conn.SetWriteTimeout(disconnectTimeout)
		if err := conn.WriteMessage(&protocol.Disconnect{}, key); err != nil {
			c.logger("Circuit.Close").WithField("error", err.Error()).Debug("Disconnect not delivered")
		}
	}

	_ = c.terminate(StateClosed, nil)
	return nil
}

// receiver handles messages arriving on an Active circuit.
type receiver struct {
	circuitID uint64
	payload   []byte
}

func (r *receiver) HandleData(m *protocol.Data) error {
	if m.CircuitID != r.circuitID {
		return fmt.Errorf("data for circuit %d on circuit %d", m.CircuitID, r.circuitID)
	}
	r.payload = m.Payload
	return nil
}

func (r *receiver) HandleDisconnect(*protocol.Disconnect) error {
	return ErrClosed
}

func (r *receiver) HandleConnectRequest(*protocol.ConnectRequest) error {
	return unexpected(protocol.KindConnectRequest)
}

func (r *receiver) HandleConnectResponse(*protocol.ConnectResponse) error {
	return unexpected(protocol.KindConnectResponse)
}

func (r *receiver) HandleCircuitCreate(*protocol.CircuitCreate) error {
	return unexpected(protocol.KindCircuitCreate)
}

func (r *receiver) HandleCircuitCreated(*protocol.CircuitCreated) error {
	return unexpected(protocol.KindCircuitCreated)
}

func unexpected(k protocol.Kind) error {
	return fmt.Errorf("unexpected %s on active circuit", k)
}
