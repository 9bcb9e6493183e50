// Package match defines the candidate items a backend search yields and the lazy
// loading contract the filter pipeline and result assembler share.
package match

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/systmms/credroute/pkg/credential"
)

// Source loads the parts of a candidate that a search does not return up front.
// Each backend provides one.
type Source interface {
	Backend() credential.Backend
	// Attributes returns the candidate's unified attributes, class included.
	Attributes(ctx context.Context, c *Candidate) (credential.AttributeMap, error)
	// Data returns the candidate's payload: the secret of a password, the DER encoding
	// of a certificate.
	Data(ctx context.Context, c *Candidate) ([]byte, error)
	PersistentRef(ctx context.Context, c *Candidate) (credential.PersistentRef, error)
	// PairedKey finds the private key whose application label equals keyHash. It
	// returns an error wrapping ErrItemNotFound when there is none.
	PairedKey(ctx context.Context, keyHash []byte) (*credential.KeyHandle, error)
	// Resolve turns a persistent reference into a handle held by this source.
	Resolve(ctx context.Context, token credential.PersistentRef) (credential.Handle, error)
}

// Candidate is one item a backend search produced, before filtering. Attrs, Data
// and Token are filled either by the search itself or on first use.
type Candidate struct {
	Backend credential.Backend
	// Class is the class the backend actually stores the item as.
	Class credential.ItemClass
	Ref   credential.Handle
	// Key is the private key paired with a certificate when an identity is wanted.
	Key *credential.KeyHandle

	Attrs credential.AttributeMap
	Data  []byte
	Token credential.PersistentRef

	dataLoaded bool
	cert       *x509.Certificate
}

// SetData records a payload the search already returned.
func (c *Candidate) SetData(b []byte) {
	c.Data = b
	c.dataLoaded = true
}

// LoadAttributes returns the candidate's attributes, asking src once.
func (c *Candidate) LoadAttributes(ctx context.Context, src Source) (credential.AttributeMap, error) {
	if c.Attrs != nil {
		return c.Attrs, nil
	}
	attrs, err := src.Attributes(ctx, c)
	if err != nil {
		return nil, err
	}
	c.Attrs = attrs
	return attrs, nil
}

// LoadData returns the candidate's payload, asking src once.
func (c *Candidate) LoadData(ctx context.Context, src Source) ([]byte, error) {
	if c.dataLoaded {
		return c.Data, nil
	}
	if ch, ok := credential.Unwrap(c.Ref).(credential.CertificateHandle); ok && len(ch.DER) > 0 {
		c.SetData(ch.DER)
		return c.Data, nil
	}
	data, err := src.Data(ctx, c)
	if err != nil {
		return nil, err
	}
	c.SetData(data)
	return data, nil
}

// LoadToken returns the candidate's persistent reference, asking src once.
func (c *Candidate) LoadToken(ctx context.Context, src Source) (credential.PersistentRef, error) {
	if c.Token != nil {
		return c.Token, nil
	}
	tok, err := src.PersistentRef(ctx, c)
	if err != nil {
		return nil, err
	}
	c.Token = tok
	return tok, nil
}

// Certificate parses the candidate's certificate, loading its DER encoding through
// src when needed.
func (c *Candidate) Certificate(ctx context.Context, src Source) (*x509.Certificate, error) {
	if c.cert != nil {
		return c.cert, nil
	}
	if c.Class != credential.ClassCertificate && c.Class != credential.ClassIdentity {
		return nil, fmt.Errorf("%w: %s is not a certificate", credential.ErrParameter, c.Class)
	}
	der, err := c.LoadData(ctx, src)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: stored certificate does not parse: %v", credential.ErrBackendInternal, err)
	}
	c.cert = cert
	return cert, nil
}

// Handle returns the reference fragment for the candidate. When an identity is
// wanted and a key was paired, the certificate and key are combined.
func (c *Candidate) Handle(wantIdentity bool) credential.Handle {
	if !wantIdentity || c.Key == nil {
		return c.Ref
	}
	if id, ok := c.Ref.(credential.IdentityHandle); ok {
		return id
	}
	cert, ok := c.Ref.(credential.CertificateHandle)
	if !ok {
		return c.Ref
	}
	return credential.IdentityHandle{Certificate: cert, Key: *c.Key}
}
