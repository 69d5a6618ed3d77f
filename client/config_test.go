package client

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/transport"
)

const testKeyHex = "0101010101010101010101010101010101010101010101010101010101010101"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(`RelayPublicKey = "` + testKeyHex + `"`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.RelayAddress)
	assert.Equal(t, crypto.ModeX25519, cfg.HandshakeMode)
	assert.Equal(t, transport.NameTCP, cfg.Transport)
	assert.Equal(t, 9050, cfg.SocksPort)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadFullConfig(t *testing.T) {
	doc := `
RelayAddress = "relay.example:9001"
HandshakeMode = "PSK"
PresharedKey = "` + testKeyHex + `"
ClientID = "c1"
CircuitID = 12345
Transport = "shaped"
ReadTimeout = "5s"

[Logging]
Level = "debug"
`
	cfg, err := Load([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "relay.example:9001", cfg.RelayAddress)
	assert.Equal(t, crypto.ModePSK, cfg.HandshakeMode)
	assert.Equal(t, "c1", cfg.ClientID)
	assert.Equal(t, uint64(12345), cfg.CircuitID)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)

	kex, err := cfg.NewKeyExchange()
	require.NoError(t, err)
	assert.Equal(t, crypto.ModePSK, kex.Mode())

	tr, err := cfg.NewTransport()
	require.NoError(t, err)
	assert.Equal(t, transport.NameShaped, tr.Name())

	c, err := NewCircuitFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ClientID())
	assert.Equal(t, StateIdle, c.State())
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "missing relay key", doc: ``},
		{name: "short relay key", doc: `RelayPublicKey = "0102"`},
		{name: "missing psk", doc: `HandshakeMode = "psk"`},
		{name: "unknown mode", doc: `HandshakeMode = "rsa"
RelayPublicKey = "` + testKeyHex + `"`},
		{name: "bad address", doc: `RelayAddress = "no-port"
RelayPublicKey = "` + testKeyHex + `"`},
		{name: "bad socks port", doc: `SocksPort = 70000
RelayPublicKey = "` + testKeyHex + `"`},
		{name: "bad log level", doc: `RelayPublicKey = "` + testKeyHex + `"
[Logging]
Level = "chatty"`},
		{name: "unknown transport", doc: `Transport = "carrier-pigeon"
RelayPublicKey = "` + testKeyHex + `"`},
		{name: "not toml", doc: `RelayAddress = `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := Load(nil)
	assert.Error(t, err)
}

func TestTransportNameIsCaseInsensitive(t *testing.T) {
	cfg, err := Load([]byte(`Transport = "QUIC"
RelayPublicKey = "` + testKeyHex + `"`))
	require.NoError(t, err)
	assert.Equal(t, transport.NameQUIC, cfg.Transport)
}

func TestStealthSelectsObfs(t *testing.T) {
	cfg, err := Load([]byte(`EnableStealth = true
RelayPublicKey = "` + testKeyHex + `"`))
	require.NoError(t, err)
	assert.Equal(t, transport.NameObfs, cfg.Transport)

	tr, err := cfg.NewTransport()
	require.NoError(t, err)
	assert.Equal(t, transport.NameObfs, tr.Name())
}

func TestSchemeSelectsMulti(t *testing.T) {
	cfg, err := Load([]byte(`RelayAddress = "ws://relay.example:443"
RelayPublicKey = "` + testKeyHex + `"`))
	require.NoError(t, err)
	assert.Equal(t, transport.NameMulti, cfg.Transport)

	tr, err := cfg.NewTransport()
	require.NoError(t, err)
	assert.Equal(t, transport.NameMulti, tr.Name())
}

func TestSocksTransport(t *testing.T) {
	cfg, err := Load([]byte(`UseSocks = true
SocksPort = 9150
RelayPublicKey = "` + testKeyHex + `"`))
	require.NoError(t, err)

	tr, err := cfg.NewTransport()
	require.NoError(t, err)
	assert.Equal(t, transport.NameTCP, tr.Name())

	cfg.Transport = transport.NameQUIC
	_, err = cfg.NewTransport()
	assert.Error(t, err)
}

func TestVPNInterfaceWarns(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	defer logrus.SetOutput(os.Stderr)

	cfg, err := Load([]byte(`VPNInterface = "wg0"
RelayPublicKey = "` + testKeyHex + `"`))
	require.NoError(t, err)
	assert.Equal(t, "wg0", cfg.VPNInterface)
	assert.Contains(t, buf.String(), "VPNInterface is not supported")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(`RelayPublicKey = "`+testKeyHex+`"`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, cfg.RelayPublicKey)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
