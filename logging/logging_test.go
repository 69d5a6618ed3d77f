package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    string
		wantErr bool
	}{
		{name: "default", level: "", want: "INFO"},
		{name: "lowercase", level: "debug", want: "DEBUG"},
		{name: "trace", level: "Trace", want: "TRACE"},
		{name: "invalid", level: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Level: tt.level}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Level)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetupWritesToFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.InfoLevel)

	path := filepath.Join(t.TempDir(), "relay.log")
	closer, err := Setup(Config{File: path, Level: "debug"})
	require.NoError(t, err)

	For("logging", "TestSetupWritesToFile").Debug("hello from the test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the test")
	assert.Contains(t, string(data), "function=TestSetupWritesToFile")
}

func TestHelperFields(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	defer logrus.SetOutput(os.Stderr)

	For("relay", "handle").
		WithField("client_id", "c1").
		WithError(errors.New("boom"), "decrypt").
		Warn("aborting")

	out := buf.String()
	assert.Contains(t, out, "package=relay")
	assert.Contains(t, out, "client_id=c1")
	assert.Contains(t, out, "operation=decrypt")
	assert.Contains(t, out, "error=boom")
}

func TestSecureFieldHash(t *testing.T) {
	fields := SecureFieldHash([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, "key")
	assert.Equal(t, "0102030405060708...", fields["key_preview"])
	assert.Equal(t, 10, fields["key_size"])

	fields = SecureFieldHash(nil, "key")
	assert.Equal(t, "nil", fields["key_preview"])
}
