package credential

import (
	"crypto/sha1" //nolint:gosec // key identifier, not a signature
	"crypto/x509"
	"math/big"
)

// PublicKeyHash is the SHA-1 of a certificate's subject public key info. Certificates
// store it as AttrPublicKeyHash and their private keys as AttrApplicationLabel, which
// is how identities are paired.
func PublicKeyHash(cert *x509.Certificate) []byte {
	sum := sha1.Sum(cert.RawSubjectPublicKeyInfo) //nolint:gosec
	return sum[:]
}

// CertificateAttributes derives the stored attributes of a certificate from its
// parsed form.
func CertificateAttributes(cert *x509.Certificate) AttributeMap {
	attrs := AttributeMap{
		AttrSubject:       append([]byte(nil), cert.RawSubject...),
		AttrIssuer:        append([]byte(nil), cert.RawIssuer...),
		AttrSerialNumber:  SerialBytes(cert.SerialNumber),
		AttrPublicKeyHash: PublicKeyHash(cert),
	}
	if len(cert.SubjectKeyId) > 0 {
		attrs[AttrSubjectKeyID] = append([]byte(nil), cert.SubjectKeyId...)
	}
	if cert.Subject.CommonName != "" {
		attrs[AttrLabel] = cert.Subject.CommonName
	}
	if len(cert.EmailAddresses) > 0 {
		attrs[AttrEmailAddress] = cert.EmailAddresses[0]
	}
	return attrs
}

// SerialBytes returns the big-endian serial number without leading zero bytes.
func SerialBytes(n *big.Int) []byte {
	if n == nil {
		return nil
	}
	return n.Bytes()
}
