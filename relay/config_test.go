package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/phantomband/crypto"
	"github.com/opd-ai/phantomband/transport"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(``))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddress)
	assert.Equal(t, "phantomband-relay", cfg.RelayID)
	assert.Equal(t, transport.NameTCP, cfg.Transport)
	assert.Equal(t, crypto.ModeX25519, cfg.HandshakeMode)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, "INFO", cfg.Logging.Level)

	pub, ok := cfg.PublicKey()
	require.True(t, ok, "a static identity is generated")
	assert.False(t, pub.IsZero())

	kex, err := cfg.NewKeyExchange()
	require.NoError(t, err)
	assert.Equal(t, crypto.ModeX25519, kex.Mode())
}

func TestLoadStaticKey(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	cfg, err := Load([]byte(`StaticKey = "` + kp.Private.Hex() + `"
ListenAddress = "0.0.0.0:9001"
ReadTimeout = "10s"
Transport = "obfs"
MetricsAddress = "127.0.0.1:9090"`))
	require.NoError(t, err)

	pub, ok := cfg.PublicKey()
	require.True(t, ok)
	assert.Equal(t, kp.Public, pub)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)

	tr, err := cfg.NewTransport()
	require.NoError(t, err)
	assert.Equal(t, transport.NameObfs, tr.Name())
}

func TestLoadPSK(t *testing.T) {
	psk, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)

	cfg, err := Load([]byte(`HandshakeMode = "psk"
PresharedKey = "` + psk.Hex() + `"`))
	require.NoError(t, err)

	_, ok := cfg.PublicKey()
	assert.False(t, ok)
	kex, err := cfg.NewKeyExchange()
	require.NoError(t, err)
	assert.Equal(t, crypto.ModePSK, kex.Mode())
	assert.Equal(t, psk, kex.RequestKey())
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "bad listen address", doc: `ListenAddress = "8080"`},
		{name: "bad metrics address", doc: `MetricsAddress = "metrics"`},
		{name: "dns cannot listen", doc: `Transport = "dns"`},
		{name: "unknown transport", doc: `Transport = "carrier-pigeon"`},
		{name: "unknown mode", doc: `HandshakeMode = "rsa"`},
		{name: "psk without key", doc: `HandshakeMode = "psk"`},
		{name: "bad static key", doc: `StaticKey = "zz"`},
		{name: "zero static key", doc: `StaticKey = "0000000000000000000000000000000000000000000000000000000000000000"`},
		{name: "negative timeout", doc: `ReadTimeout = "-1s"`},
		{name: "bad log level", doc: "[Logging]\nLevel = \"chatty\""},
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

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`RelayID = "test_relay_id"`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test_relay_id", cfg.RelayID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
