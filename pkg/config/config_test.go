package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{Address: ":8443"},
		TLS: TLSConfig{
			CertFile: "/etc/certgate/cert.pem",
			KeyFile:  "/etc/certgate/key.pem",
		},
		Static: StaticConfig{Roots: []string{"/srv/www"}},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing server address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: "server.address",
		},
		{
			name:    "missing cert file",
			mutate:  func(c *Config) { c.TLS.CertFile = "" },
			wantErr: "tls.cert_file",
		},
		{
			name:    "missing key file",
			mutate:  func(c *Config) { c.TLS.KeyFile = "  " },
			wantErr: "tls.key_file",
		},
		{
			name:    "missing static roots",
			mutate:  func(c *Config) { c.Static.Roots = nil },
			wantErr: "static.roots",
		},
		{
			name:    "bad min version",
			mutate:  func(c *Config) { c.TLS.MinVersion = "1.1" },
			wantErr: "tls.min_version",
		},
		{
			name:   "min version 1.3",
			mutate: func(c *Config) { c.TLS.MinVersion = "1.3" },
		},
		{
			name:    "unknown client auth mode",
			mutate:  func(c *Config) { c.TLS.ClientAuth.Mode = "required" },
			wantErr: "tls.client_auth.mode",
		},
		{
			name:    "client auth without ca file",
			mutate:  func(c *Config) { c.TLS.ClientAuth.Mode = "strict" },
			wantErr: "tls.client_auth.ca_file",
		},
		{
			name: "client auth with ca file",
			mutate: func(c *Config) {
				c.TLS.ClientAuth.Mode = "optional"
				c.TLS.ClientAuth.CAFile = "/etc/certgate/clients.pem"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantErr, cerr.Field)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "certgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":8443"
  admin_address: ":9090"
tls:
  cert_file: /etc/certgate/cert.pem
  key_file: /etc/certgate/key.pem
  alpn: [h2, http/1.1]
  min_version: "1.3"
static:
  roots: [/srv/www]
  defaults: [index.html]
  listing: true
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8443", cfg.Server.Address)
	assert.Equal(t, ":9090", cfg.Server.AdminAddress)
	assert.Equal(t, []string{"h2", "http/1.1"}, cfg.TLS.ALPN)
	assert.Equal(t, "1.3", cfg.TLS.MinVersion)
	assert.Equal(t, []string{"/srv/www"}, cfg.Static.Roots)
	assert.Equal(t, []string{"index.html"}, cfg.Static.Defaults)
	assert.True(t, cfg.Static.Listing)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [not a map"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	incomplete := filepath.Join(t.TempDir(), "incomplete.yaml")
	require.NoError(t, os.WriteFile(incomplete, []byte("server:\n  address: ':8443'\n"), 0o644))
	_, err = Load(incomplete)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}
