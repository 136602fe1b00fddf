// Package certgen generates self-signed and CA-signed certificates in PEM
// form. It backs the certgate cert subcommand and the test suites; it is not
// an issuance or renewal client.
package certgen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// Options controls certificate generation.
type Options struct {
	CommonName   string
	Organization []string
	DNSNames     []string
	IPAddresses  []net.IP
	NotBefore    time.Time
	ValidFor     time.Duration
	IsCA         bool
	IsClientCert bool
	KeyBits      int
	SerialNumber *big.Int
	ParentCert   *x509.Certificate
	ParentKey    interface{}
}

// KeyPair is a generated certificate and its private key, both PEM encoded,
// with the parsed forms kept for chaining (signing further certificates).
type KeyPair struct {
	CertPEM []byte
	KeyPEM  []byte
	Cert    *x509.Certificate
	Key     *rsa.PrivateKey
}

// Generate creates a certificate according to opts. With no parent set the
// certificate is self-signed.
func Generate(opts Options) (*KeyPair, error) {
	if opts.ValidFor == 0 {
		opts.ValidFor = 365 * 24 * time.Hour
	}
	if opts.KeyBits == 0 {
		opts.KeyBits = 2048
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Minute)
	}
	if opts.SerialNumber == nil {
		serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
		if err != nil {
			return nil, fmt.Errorf("generate serial number: %w", err)
		}
		opts.SerialNumber = serial
	}
	if opts.CommonName == "" {
		opts.CommonName = "localhost"
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: opts.SerialNumber,
		Subject: pkix.Name{
			CommonName:   opts.CommonName,
			Organization: opts.Organization,
		},
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotBefore.Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPAddresses,
	}
	if len(template.DNSNames) == 0 && len(template.IPAddresses) == 0 {
		template.DNSNames = []string{"localhost"}
		template.IPAddresses = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	}
	if opts.IsCA {
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	} else if opts.IsClientCert {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	parentCert := &template
	var parentKey interface{} = key
	if opts.ParentCert != nil && opts.ParentKey != nil {
		parentCert = opts.ParentCert
		parentKey = opts.ParentKey
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, parentCert, &key.PublicKey, parentKey)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse generated certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}

	return &KeyPair{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		Cert:    cert,
		Key:     key,
	}, nil
}

// SelfSigned generates a server certificate for the given common name, valid
// for localhost use. It is the one-call helper the tests reach for.
func SelfSigned(commonName string) (*KeyPair, error) {
	return Generate(Options{CommonName: commonName})
}

// WriteFiles writes the pair to disk, keys with owner-only permissions.
func (kp *KeyPair) WriteFiles(certFile, keyFile string) error {
	if err := os.WriteFile(certFile, kp.CertPEM, 0o644); err != nil {
		return fmt.Errorf("write certificate file: %w", err)
	}
	if err := os.WriteFile(keyFile, kp.KeyPEM, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Inspect parses a PEM certificate file and returns the leaf.
func Inspect(certFile string) (*x509.Certificate, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block in %s", certFile)
	}
	return x509.ParseCertificate(block.Bytes)
}
