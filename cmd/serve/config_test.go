package serve

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jdthomas/warp/spec/cipher"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "warp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfig(t *testing.T) {
	as := require.New(t)

	path := writeConfig(t, `
listen:
  - 0.0.0.0:443
  - "[::]:443"
cert: /etc/warp/tls.crt
key: /etc/warp/tls.key
clientAuth: Optional
clientCA: /etc/warp/ca.crt
upstream: 127.0.0.1:8080
bufferSize: 32KiB
dialAttempts: 5
handshakeTimeout: 3s
`)
	c, err := NewConfig(path)
	as.NoError(err)
	as.NoError(c.validate())

	as.Equal([]string{"0.0.0.0:443", "[::]:443"}, c.Listen)
	as.Equal(cipher.ClientAuthOptional, c.clientAuth)
	as.Equal(Size(32*1024), c.BufferSize)
	as.EqualValues(5, c.DialAttempts)
	as.Equal(3*time.Second, c.HandshakeTimeout)
}

func TestNewConfigErrors(t *testing.T) {
	as := require.New(t)

	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	as.ErrorIs(err, os.ErrNotExist)

	_, err = NewConfig(writeConfig(t, "bufferSize: lots\n"))
	as.ErrorContains(err, "invalid size")

	_, err = NewConfig(writeConfig(t, "handshakeTimeout: soon\n"))
	as.Error(err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Listen: []string{"127.0.0.1:8443"},
			Cert:   "tls.crt",
			Key:    "tls.key",
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
		err    string
	}{
		{
			name:   "no listen",
			modify: func(c *Config) { c.Listen = nil },
			err:    "listen address",
		},
		{
			name:   "missing key",
			modify: func(c *Config) { c.Key = "" },
			err:    "both cert and key",
		},
		{
			name: "self signed with cert",
			modify: func(c *Config) {
				c.SelfSigned = true
				c.Hostnames = []string{"localhost"}
			},
			err: "cannot be combined",
		},
		{
			name: "self signed without hostname",
			modify: func(c *Config) {
				c.Cert, c.Key = "", ""
				c.SelfSigned = true
			},
			err: "at least one hostname",
		},
		{
			name:   "unknown client auth",
			modify: func(c *Config) { c.ClientAuth = "sometimes" },
			err:    "unsupported client auth mode",
		},
		{
			name:   "required without ca",
			modify: func(c *Config) { c.ClientAuth = "required" },
			err:    "requires clientCA",
		},
		{
			name:   "ca without client auth",
			modify: func(c *Config) { c.ClientCA = "ca.crt" },
			err:    "clientAuth is off",
		},
		{
			name:   "buffer without upstream",
			modify: func(c *Config) { c.BufferSize = 1024 },
			err:    "only apply with upstream",
		},
		{
			name: "tiny buffer",
			modify: func(c *Config) {
				c.Upstream = "127.0.0.1:8080"
				c.BufferSize = 64
			},
			err: "bufferSize must be at least 512B",
		},
		{
			name:   "negative timeout",
			modify: func(c *Config) { c.HandshakeTimeout = -time.Second },
			err:    "handshakeTimeout",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.modify(c)
			require.ErrorContains(t, c.validate(), tc.err)
		})
	}

	c := valid()
	require.NoError(t, c.validate())
	require.Equal(t, cipher.ClientAuthOff, c.clientAuth)
}
