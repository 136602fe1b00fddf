package certgen

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSigned(t *testing.T) {
	kp, err := SelfSigned("unit.test")
	require.NoError(t, err)

	assert.Equal(t, "unit.test", kp.Cert.Subject.CommonName)
	assert.Contains(t, kp.Cert.DNSNames, "localhost")
	assert.True(t, kp.Cert.NotAfter.After(time.Now()))

	// The PEM pair loads as a working TLS certificate.
	_, err = tls.X509KeyPair(kp.CertPEM, kp.KeyPEM)
	assert.NoError(t, err)
}

func TestGenerate_Options(t *testing.T) {
	kp, err := Generate(Options{
		CommonName:   "opts.test",
		Organization: []string{"Acme"},
		DNSNames:     []string{"opts.test", "www.opts.test"},
		IPAddresses:  []net.IP{net.ParseIP("10.1.2.3")},
		ValidFor:     48 * time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Acme"}, kp.Cert.Subject.Organization)
	assert.Equal(t, []string{"opts.test", "www.opts.test"}, kp.Cert.DNSNames)
	require.Len(t, kp.Cert.IPAddresses, 1)
	assert.True(t, kp.Cert.IPAddresses[0].Equal(net.ParseIP("10.1.2.3")))
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), kp.Cert.NotAfter, 5*time.Minute)
}

func TestGenerate_CASigned(t *testing.T) {
	ca, err := Generate(Options{CommonName: "test-ca", IsCA: true})
	require.NoError(t, err)
	assert.True(t, ca.Cert.IsCA)

	leaf, err := Generate(Options{
		CommonName: "signed.test",
		ParentCert: ca.Cert,
		ParentKey:  ca.Key,
	})
	require.NoError(t, err)
	assert.Equal(t, "test-ca", leaf.Cert.Issuer.CommonName)

	pool := x509.NewCertPool()
	pool.AddCert(ca.Cert)
	_, err = leaf.Cert.Verify(x509.VerifyOptions{
		Roots:   pool,
		DNSName: "localhost",
	})
	assert.NoError(t, err)
}

func TestWriteFilesAndInspect(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	kp, err := SelfSigned("roundtrip.test")
	require.NoError(t, err)
	require.NoError(t, kp.WriteFiles(certFile, keyFile))

	cert, err := Inspect(certFile)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip.test", cert.Subject.CommonName)
	assert.Equal(t, kp.Cert.SerialNumber, cert.SerialNumber)

	_, err = Inspect(keyFile)
	assert.Error(t, err)
}
