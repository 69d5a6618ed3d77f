package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/logging"
	"github.com/opd-ai/phantomband/transport"
)

const (
	defaultSocksPort    = 9050
	defaultRelayAddress = "127.0.0.1:8080"
)

var defaultLogging = logging.Config{
	Disable: false,
	File:    "",
	Level:   "INFO",
}

// Config is the client configuration.
type Config struct {
	// RelayAddress is the relay's "host:port", optionally with a transport
	// scheme prefix such as "obfs://".
	RelayAddress string

	// RelayPublicKey is the relay's static X25519 key in hex. Required for
	// the x25519 handshake.
	RelayPublicKey string

	// PresharedKey is the shared key in hex. Required for the psk handshake.
	PresharedKey string

	// HandshakeMode is "x25519" (default) or "psk".
	HandshakeMode string

	// ClientID identifies this client to the relay. Random when empty.
	ClientID string

	// CircuitID pins the circuit id. Random when zero.
	CircuitID uint64

	// Transport names the carrier: tcp, obfs, shaped, ws, quic, dns or
	// multi. Defaults to tcp, or obfs when EnableStealth is set.
	Transport string

	// ReadTimeout bounds every blocking read, e.g. "30s".
	ReadTimeout time.Duration

	// UseSocks dials the relay through the SOCKS5 proxy on
	// 127.0.0.1:SocksPort, e.g. a local Tor daemon.
	UseSocks bool

	// SocksPort is the local SOCKS5 proxy port.
	SocksPort int

	// EnableStealth selects the obfuscating transport.
	EnableStealth bool

	// VPNInterface is accepted for compatibility with older config files.
	// Routing circuits through a VPN interface is not supported and a
	// non-empty value only produces a warning.
	VPNInterface string

	Logging *logging.Config
}

// FixupAndValidate applies defaults and checks the configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.RelayAddress == "" {
		cfg.RelayAddress = defaultRelayAddress
	}
	_, hostport := transport.SplitScheme(cfg.RelayAddress)
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		return fmt.Errorf("config: RelayAddress '%v' is invalid: %v", cfg.RelayAddress, err)
	}

	if cfg.SocksPort == 0 {
		cfg.SocksPort = defaultSocksPort
	}
	if cfg.SocksPort < 0 || cfg.SocksPort > 65535 {
		return fmt.Errorf("config: SocksPort %d is out of range", cfg.SocksPort)
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.ReadTimeout < 0 {
		return errors.New("config: ReadTimeout must be positive")
	}

	cfg.HandshakeMode = strings.ToLower(cfg.HandshakeMode)
	switch cfg.HandshakeMode {
	case "":
		cfg.HandshakeMode = crypto.ModeX25519
		fallthrough
	case crypto.ModeX25519:
		if _, err := crypto.ParseKeyMaterial(cfg.RelayPublicKey); err != nil {
			return fmt.Errorf("config: RelayPublicKey is required for the x25519 handshake: %w", err)
		}
	case crypto.ModePSK:
		if _, err := crypto.ParseKeyMaterial(cfg.PresharedKey); err != nil {
			return fmt.Errorf("config: PresharedKey is required for the psk handshake: %w", err)
		}
	default:
		return fmt.Errorf("config: HandshakeMode '%v' is invalid", cfg.HandshakeMode)
	}

	if cfg.Transport == "" {
		switch {
		case strings.Contains(cfg.RelayAddress, "://"):
			cfg.Transport = transport.NameMulti
		case cfg.EnableStealth:
			cfg.Transport = transport.NameObfs
		default:
			cfg.Transport = transport.NameTCP
		}
	}
	cfg.Transport = strings.ToLower(cfg.Transport)
	switch cfg.Transport {
	case transport.NameTCP, transport.NameObfs, transport.NameShaped,
		transport.NameWebSocket, transport.NameQUIC, transport.NameDNS,
		transport.NameMulti:
	default:
		return fmt.Errorf("config: Transport '%v' is invalid", cfg.Transport)
	}

	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if err := cfg.Logging.Validate(); err != nil {
		return err
	}

	if cfg.VPNInterface != "" {
		logrus.WithFields(logrus.Fields{
			"function":      "Config.FixupAndValidate",
			"vpn_interface": cfg.VPNInterface,
		}).Warn("VPNInterface is not supported and will be ignored")
	}
	return nil
}

// NewTransport builds the configured transport.
func (cfg *Config) NewTransport() (transport.Transport, error) {
	if !cfg.UseSocks {
		return transport.New(cfg.Transport)
	}

	socks, err := transport.NewSOCKS5Transport(&transport.ProxyConfig{
		Address: net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.SocksPort)),
	})
	if err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case transport.NameTCP:
		return socks, nil
	case transport.NameObfs, transport.NameShaped:
		return transport.Wrap(cfg.Transport, socks)
	default:
		return nil, fmt.Errorf("config: transport %q cannot be used with UseSocks", cfg.Transport)
	}
}

// NewKeyExchange builds the configured client key exchange.
func (cfg *Config) NewKeyExchange() (crypto.KeyExchange, error) {
	switch cfg.HandshakeMode {
	case crypto.ModePSK:
		key, err := crypto.ParseKeyMaterial(cfg.PresharedKey)
		if err != nil {
			return nil, err
		}
		return crypto.NewKeyExchange(crypto.ModePSK, nil, key)
	default:
		key, err := crypto.ParseKeyMaterial(cfg.RelayPublicKey)
		if err != nil {
			return nil, err
		}
		return crypto.NewKeyExchange(crypto.ModeX25519, nil, key)
	}
}

// NewCircuitFromConfig builds an Idle circuit from a validated config.
func NewCircuitFromConfig(cfg *Config) (*Circuit, error) {
	tr, err := cfg.NewTransport()
	if err != nil {
		return nil, err
	}
	kex, err := cfg.NewKeyExchange()
	if err != nil {
		return nil, err
	}
	return NewCircuit(tr, kex, Options{
		ClientID:    cfg.ClientID,
		CircuitID:   cfg.CircuitID,
		ReadTimeout: cfg.ReadTimeout,
	})
}

// Decode parses b without validating it, for callers that fill in fields
// before calling FixupAndValidate.
func Decode(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("no nil buffer as config file")
	}

	cfg := new(Config)
	if _, err := toml.Decode(string(b), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg, err := Decode(b)
	if err != nil {
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
