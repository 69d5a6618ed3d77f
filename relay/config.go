package relay

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/logging"
	"github.com/opd-ai/phantomband/transport"
)

const (
	defaultListenAddress = "127.0.0.1:8080"
	defaultRelayID       = "phantomband-relay"

	// DefaultReadTimeout bounds how long a connection may sit idle.
	DefaultReadTimeout = 2 * time.Minute
)

var defaultLogging = logging.Config{
	Disable: false,
	File:    "",
	Level:   "INFO",
}

// Config is the relay configuration.
type Config struct {
	// ListenAddress is the "host:port" to accept connections on.
	ListenAddress string

	// RelayID is sent in every ConnectResponse.
	RelayID string

	// Transport names the listener: tcp, obfs, shaped, ws or quic.
	Transport string

	// HandshakeMode is "x25519" (default) or "psk".
	HandshakeMode string

	// StaticKey is the relay's X25519 private key in hex. A fresh identity
	// is generated at startup when empty.
	StaticKey string

	// PresharedKey is the shared key in hex, for the psk handshake.
	PresharedKey string

	// ReadTimeout bounds every blocking read on a connection, e.g. "2m".
	ReadTimeout time.Duration

	// MetricsAddress serves Prometheus metrics when set.
	MetricsAddress string

	Logging *logging.Config

	static *crypto.KeyPair
	psk    crypto.KeyMaterial
}

// FixupAndValidate applies defaults, checks the configuration and loads or
// generates the relay's keys.
func (cfg *Config) FixupAndValidate() error {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("config: ListenAddress '%v' is invalid: %v", cfg.ListenAddress, err)
	}
	if cfg.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddress); err != nil {
			return fmt.Errorf("config: MetricsAddress '%v' is invalid: %v", cfg.MetricsAddress, err)
		}
	}

	if cfg.RelayID == "" {
		cfg.RelayID = defaultRelayID
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.ReadTimeout < 0 {
		return errors.New("config: ReadTimeout must be positive")
	}

	if cfg.Transport == "" {
		cfg.Transport = transport.NameTCP
	}
	switch cfg.Transport {
	case transport.NameTCP, transport.NameObfs, transport.NameShaped,
		transport.NameWebSocket, transport.NameQUIC:
	default:
		return fmt.Errorf("config: Transport '%v' cannot listen", cfg.Transport)
	}

	cfg.HandshakeMode = strings.ToLower(cfg.HandshakeMode)
	switch cfg.HandshakeMode {
	case "", crypto.ModeX25519:
		cfg.HandshakeMode = crypto.ModeX25519
		if err := cfg.loadStaticKey(); err != nil {
			return err
		}
	case crypto.ModePSK:
		key, err := crypto.ParseKeyMaterial(cfg.PresharedKey)
		if err != nil {
			return fmt.Errorf("config: PresharedKey is required for the psk handshake: %w", err)
		}
		cfg.psk = key
	default:
		return fmt.Errorf("config: HandshakeMode '%v' is invalid", cfg.HandshakeMode)
	}

	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	return cfg.Logging.Validate()
}

func (cfg *Config) loadStaticKey() error {
	if cfg.static != nil {
		return nil
	}
	if cfg.StaticKey == "" {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("config: generate static key: %w", err)
		}
		cfg.static = kp
		return nil
	}

	secret, err := crypto.ParseKeyMaterial(cfg.StaticKey)
	if err != nil {
		return fmt.Errorf("config: StaticKey is invalid: %w", err)
	}
	kp, err := crypto.FromSecretKey(secret)
	if err != nil {
		return fmt.Errorf("config: StaticKey is invalid: %w", err)
	}
	cfg.static = kp
	return nil
}

// PublicKey returns the relay's static public key, which clients of the
// x25519 handshake must be given. It is only valid after FixupAndValidate.
func (cfg *Config) PublicKey() (crypto.KeyMaterial, bool) {
	if cfg.static == nil {
		return crypto.KeyMaterial{}, false
	}
	return cfg.static.Public, true
}

// NewKeyExchange builds the relay side of the configured handshake.
func (cfg *Config) NewKeyExchange() (crypto.KeyExchange, error) {
	switch cfg.HandshakeMode {
	case crypto.ModePSK:
		return crypto.NewKeyExchange(crypto.ModePSK, nil, cfg.psk)
	case crypto.ModeX25519:
		if cfg.static == nil {
			return nil, fmt.Errorf("%w: static key not loaded", crypto.ErrMisconfigured)
		}
		return crypto.NewKeyExchange(crypto.ModeX25519, cfg.static, crypto.KeyMaterial{})
	default:
		return nil, fmt.Errorf("%w: %q", crypto.ErrUnknownMode, cfg.HandshakeMode)
	}
}

// NewTransport builds the configured listening transport.
func (cfg *Config) NewTransport() (transport.Transport, error) {
	return transport.New(cfg.Transport)
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("no nil buffer as config file")
	}

	cfg := new(Config)
	if _, err := toml.Decode(string(b), cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
