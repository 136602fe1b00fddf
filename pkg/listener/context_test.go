package listener

import (
	"crypto/tls"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleilabs/certgate/internal/certgen"
	"github.com/loreleilabs/certgate/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSnapshot generates a fresh self-signed localhost pair.
func testSnapshot(t *testing.T) config.Snapshot {
	t.Helper()
	kp, err := certgen.SelfSigned("localhost")
	require.NoError(t, err)
	return config.Snapshot{
		CertPEM:    kp.CertPEM,
		KeyPEM:     kp.KeyPEM,
		ProducedAt: time.Now(),
	}
}

func TestBuildServerContext_Valid(t *testing.T) {
	snap := testSnapshot(t)
	snap.ALPN = []string{"h2", "http/1.1"}

	tctx, err := BuildServerContext(snap, testLogger())
	require.NoError(t, err)
	require.NotNil(t, tctx)

	assert.Equal(t, "localhost", tctx.Leaf().Subject.CommonName)
	assert.Equal(t, []string{"h2", "http/1.1"}, tctx.ALPN())
	assert.Equal(t, uint16(tls.VersionTLS12), tctx.Config().MinVersion)
	assert.NotEmpty(t, tctx.Config().Certificates)
	assert.False(t, tctx.BuiltAt().IsZero())
}

func TestBuildServerContext_Invalid(t *testing.T) {
	valid := testSnapshot(t)

	expired, err := certgen.Generate(certgen.Options{
		CommonName: "localhost",
		NotBefore:  time.Now().Add(-48 * time.Hour),
		ValidFor:   24 * time.Hour,
	})
	require.NoError(t, err)

	future, err := certgen.Generate(certgen.Options{
		CommonName: "localhost",
		NotBefore:  time.Now().Add(24 * time.Hour),
		ValidFor:   24 * time.Hour,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		snap config.Snapshot
	}{
		{
			name: "empty snapshot",
			snap: config.Snapshot{},
		},
		{
			name: "missing key",
			snap: config.Snapshot{CertPEM: valid.CertPEM},
		},
		{
			name: "missing certificate",
			snap: config.Snapshot{KeyPEM: valid.KeyPEM},
		},
		{
			name: "garbage pem",
			snap: config.Snapshot{
				CertPEM: []byte("not a certificate"),
				KeyPEM:  []byte("not a key"),
			},
		},
		{
			name: "mismatched pair",
			snap: func() config.Snapshot {
				other := testSnapshot(t)
				return config.Snapshot{CertPEM: valid.CertPEM, KeyPEM: other.KeyPEM}
			}(),
		},
		{
			name: "expired certificate",
			snap: config.Snapshot{CertPEM: expired.CertPEM, KeyPEM: expired.KeyPEM},
		},
		{
			name: "not yet valid certificate",
			snap: config.Snapshot{CertPEM: future.CertPEM, KeyPEM: future.KeyPEM},
		},
		{
			name: "bad min version",
			snap: func() config.Snapshot {
				s := valid
				s.MinVersion = "1.1"
				return s
			}(),
		},
		{
			name: "client auth without ca bundle",
			snap: func() config.Snapshot {
				s := valid
				s.ClientAuth = config.ClientAuthStrict
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tctx, err := BuildServerContext(tt.snap, testLogger())
			assert.Nil(t, tctx)
			require.Error(t, err)
			assert.True(t, IsConfigValidation(err), "expected config validation error, got: %v", err)
		})
	}
}

func TestBuildServerContext_MinVersion13(t *testing.T) {
	snap := testSnapshot(t)
	snap.MinVersion = "1.3"

	tctx, err := BuildServerContext(snap, testLogger())
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), tctx.Config().MinVersion)
}

func TestBuildServerContext_ClientAuth(t *testing.T) {
	ca, err := certgen.Generate(certgen.Options{CommonName: "test-ca", IsCA: true})
	require.NoError(t, err)

	snap := testSnapshot(t)
	snap.ClientAuth = config.ClientAuthStrict
	snap.ClientCAPEM = ca.CertPEM

	tctx, err := BuildServerContext(snap, testLogger())
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, tctx.Config().ClientAuth)
	assert.NotNil(t, tctx.Config().ClientCAs)

	snap.ClientAuth = config.ClientAuthOptional
	tctx, err = BuildServerContext(snap, testLogger())
	require.NoError(t, err)
	assert.Equal(t, tls.VerifyClientCertIfGiven, tctx.Config().ClientAuth)
}
