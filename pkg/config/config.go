// Package config defines the TLS configuration snapshot model, the sources
// that produce snapshots (static values, watched files), and the YAML schema
// consumed by the certgate binary.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError describes an invalid or missing configuration field.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in field '%s': %s", e.Field, e.Reason)
}

// NewConfigMissingError reports a required field that was not provided.
func NewConfigMissingError(field string) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf("required field '%s' is missing", field),
	}
}

// NewConfigValidationError reports a field whose value failed validation.
func NewConfigValidationError(field string, value interface{}, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// TLSConfig is the file-backed TLS section of the certgate configuration.
type TLSConfig struct {
	CertFile   string              `yaml:"cert_file" json:"cert_file"`
	KeyFile    string              `yaml:"key_file" json:"key_file"`
	ALPN       []string            `yaml:"alpn,omitempty" json:"alpn,omitempty"`
	MinVersion string              `yaml:"min_version,omitempty" json:"min_version,omitempty"`
	ClientAuth TLSClientAuthConfig `yaml:"client_auth,omitempty" json:"client_auth,omitempty"`
}

// TLSClientAuthConfig configures mutual TLS verification.
type TLSClientAuthConfig struct {
	Mode   string `yaml:"mode,omitempty" json:"mode,omitempty"`
	CAFile string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
}

// ServerConfig describes the listening sockets of the certgate binary.
type ServerConfig struct {
	Address      string `yaml:"address" json:"address"`
	AdminAddress string `yaml:"admin_address,omitempty" json:"admin_address,omitempty"`
}

// StaticConfig describes the static content served by the certgate binary.
type StaticConfig struct {
	Roots    []string `yaml:"roots" json:"roots"`
	Defaults []string `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Listing  bool     `yaml:"listing,omitempty" json:"listing,omitempty"`
	DotFiles bool     `yaml:"dot_files,omitempty" json:"dot_files,omitempty"`
}

// TelemetryConfig carries the OTLP exporter settings.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	Environment  string `yaml:"environment,omitempty" json:"environment,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// LoggingConfig carries the process logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// Config is the root certgate configuration file schema.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	TLS       TLSConfig       `yaml:"tls" json:"tls"`
	Static    StaticConfig    `yaml:"static" json:"static"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for missing or inconsistent fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return NewConfigMissingError("server.address")
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	if len(c.Static.Roots) == 0 {
		return NewConfigMissingError("static.roots")
	}
	return nil
}

// Validate checks the TLS section.
func (c *TLSConfig) Validate() error {
	if strings.TrimSpace(c.CertFile) == "" {
		return NewConfigMissingError("tls.cert_file")
	}
	if strings.TrimSpace(c.KeyFile) == "" {
		return NewConfigMissingError("tls.key_file")
	}
	switch c.MinVersion {
	case "", "1.2", "1.3":
	default:
		return NewConfigValidationError("tls.min_version", c.MinVersion,
			fmt.Sprintf("unsupported TLS version %q", c.MinVersion))
	}
	switch ClientAuthMode(c.ClientAuth.Mode) {
	case ClientAuthNone, ClientAuthStrict, ClientAuthOptional:
	default:
		return NewConfigValidationError("tls.client_auth.mode", c.ClientAuth.Mode,
			fmt.Sprintf("unsupported client auth mode %q", c.ClientAuth.Mode))
	}
	if c.ClientAuth.Mode != "" && strings.TrimSpace(c.ClientAuth.CAFile) == "" {
		return NewConfigMissingError("tls.client_auth.ca_file")
	}
	return nil
}
