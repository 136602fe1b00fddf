package listener

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"time"

	"github.com/loreleilabs/certgate/pkg/config"
)

// expiryWarnWindow is how close to NotAfter a certificate may get before
// installs start logging warnings.
const expiryWarnWindow = 30 * 24 * time.Hour

// ServerContext is the validated, immutable compiled form of one
// config.Snapshot: a tls.Config ready to drive repeated handshakes plus the
// parsed leaf metadata. Any number of concurrent handshakes may share one
// context; a context superseded by a reload remains valid for handshakes
// already bound to it.
type ServerContext struct {
	config  *tls.Config
	leaf    *x509.Certificate
	builtAt time.Time
}

// BuildServerContext validates snap and compiles it into a ServerContext.
// It is pure and synchronous; all failures are KindConfigValidation errors.
func BuildServerContext(snap config.Snapshot, logger *slog.Logger) (*ServerContext, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(snap.CertPEM) == 0 {
		return nil, newError(KindConfigValidation, "snapshot has no certificate data")
	}
	if len(snap.KeyPEM) == 0 {
		return nil, newError(KindConfigValidation, "snapshot has no private key data")
	}

	cert, err := tls.X509KeyPair(snap.CertPEM, snap.KeyPEM)
	if err != nil {
		return nil, newErrorWithCause(KindConfigValidation, "parse certificate key pair", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, newErrorWithCause(KindConfigValidation, "parse leaf certificate", err)
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) {
		return nil, newError(KindConfigValidation, "certificate is not yet valid").
			WithContext("not_before", leaf.NotBefore)
	}
	if now.After(leaf.NotAfter) {
		return nil, newError(KindConfigValidation, "certificate has expired").
			WithContext("not_after", leaf.NotAfter)
	}
	if remaining := leaf.NotAfter.Sub(now); remaining < expiryWarnWindow {
		logger.Warn("certificate expires soon",
			"subject", leaf.Subject.String(),
			"not_after", leaf.NotAfter,
			"days_remaining", int(remaining.Hours()/24))
	}

	minVersion, err := parseMinVersion(snap.MinVersion)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		NextProtos:   append([]string(nil), snap.ALPN...),
	}

	switch snap.ClientAuth {
	case config.ClientAuthNone:
	case config.ClientAuthStrict, config.ClientAuthOptional:
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(snap.ClientCAPEM) {
			return nil, newError(KindConfigValidation, "no certificates in client CA bundle")
		}
		tlsConfig.ClientCAs = pool
		if snap.ClientAuth == config.ClientAuthStrict {
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
		}
	default:
		return nil, newError(KindConfigValidation, "unsupported client auth mode").
			WithContext("mode", string(snap.ClientAuth))
	}

	return &ServerContext{
		config:  tlsConfig,
		leaf:    leaf,
		builtAt: now,
	}, nil
}

func parseMinVersion(version string) (uint16, error) {
	switch version {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, newError(KindConfigValidation, "unsupported minimum TLS version").
			WithContext("min_version", version)
	}
}

// Config returns the compiled tls.Config. Callers must treat it as read-only.
func (c *ServerContext) Config() *tls.Config { return c.config }

// Leaf returns the parsed leaf certificate the context serves.
func (c *ServerContext) Leaf() *x509.Certificate { return c.leaf }

// BuiltAt returns when the context was compiled.
func (c *ServerContext) BuiltAt() time.Time { return c.builtAt }

// ALPN returns the protocols offered during negotiation.
func (c *ServerContext) ALPN() []string { return c.config.NextProtos }
