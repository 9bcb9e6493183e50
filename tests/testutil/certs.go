package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // key identifiers, not signatures
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

// TestCert is a generated certificate together with its private key.
type TestCert struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
	// KeyHash is the SHA-1 of the public key, the value stored as the certificate's
	// public_key_hash and its private key's application_label.
	KeyHash []byte
}

// CertOptions describes a certificate to generate. Zero validity bounds default to
// one hour in the past and one year in the future.
type CertOptions struct {
	CommonName string
	Email      string
	Serial     int64
	NotBefore  time.Time
	NotAfter   time.Time
	IsCA       bool
	// Parent signs the certificate; nil makes it self-signed.
	Parent *TestCert
}

// NewTestCert generates an ECDSA P-256 certificate or fails the test.
//
// Example usage:
//
//	root := NewTestCert(t, CertOptions{CommonName: "Example Root", IsCA: true})
//	leaf := NewTestCert(t, CertOptions{CommonName: "leaf", Parent: root})
func NewTestCert(t *testing.T, opts CertOptions) *TestCert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	sum := sha1.Sum(pub) //nolint:gosec // key identifiers, not signatures

	if opts.Serial == 0 {
		opts.Serial = time.Now().UnixNano()
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().AddDate(1, 0, 0)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(opts.Serial),
		Subject:               pkix.Name{CommonName: opts.CommonName},
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		SubjectKeyId:          sum[:],
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
		KeyUsage:              x509.KeyUsageDigitalSignature,
	}
	if opts.IsCA {
		tmpl.KeyUsage |= x509.KeyUsageCertSign
	}
	if opts.Email != "" {
		tmpl.EmailAddresses = []string{opts.Email}
	}

	parent, signer := tmpl, key
	if opts.Parent != nil {
		parent, signer = opts.Parent.Cert, opts.Parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, signer)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return &TestCert{Cert: cert, Key: key, KeyHash: sum[:]}
}
