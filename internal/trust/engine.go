// Package trust evaluates certificates with crypto/x509 for the candidate filters.
package trust

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/credroute/pkg/credential"
)

// maxChainDepth bounds the issuer walk.
const maxChainDepth = 8

// ParentSource finds the certificates that could have issued cert.
type ParentSource interface {
	CopyParentCertificates(ctx context.Context, cert *x509.Certificate) ([]*x509.Certificate, error)
}

// Engine is a credential.TrustEngine backed by an anchor pool. Intermediates are
// collected from the configured parent source.
type Engine struct {
	roots   *x509.CertPool
	parents ParentSource
}

// New returns an engine anchored at roots. A nil roots pool uses the system pool.
// parents may be nil, in which case chains must be anchored directly.
func New(roots *x509.CertPool, parents ParentSource) (*Engine, error) {
	if roots == nil {
		var err error
		if roots, err = x509.SystemCertPool(); err != nil {
			return nil, fmt.Errorf("%w: %v", credential.ErrTrustNotAvailable, err)
		}
	}
	return &Engine{roots: roots, parents: parents}, nil
}

// SetParents installs the parent source after construction, for sources that need
// the engine themselves.
func (e *Engine) SetParents(p ParentSource) {
	e.parents = p
}

// EvaluateLeaf checks only the certificate itself: its extended key usage against
// the policy's and its basic structure.
func (e *Engine) EvaluateLeaf(_ context.Context, cert *x509.Certificate, policy credential.Policy) (credential.TrustResult, error) {
	if cert == nil {
		return credential.TrustInvalid, fmt.Errorf("%w: nil certificate", credential.ErrParameter)
	}
	if cert.NotBefore.IsZero() && cert.NotAfter.IsZero() {
		return credential.TrustFatalFailure, nil
	}
	if !usageAllowed(cert, policyUsages(policy)) {
		return credential.TrustRecoverableFailure, nil
	}
	return credential.TrustProceed, nil
}

// EvaluateChain builds and verifies a chain from cert to an anchor at time at.
func (e *Engine) EvaluateChain(ctx context.Context, cert *x509.Certificate, policy credential.Policy, at time.Time) (credential.TrustResult, error) {
	if cert == nil {
		return credential.TrustInvalid, fmt.Errorf("%w: nil certificate", credential.ErrParameter)
	}
	intermediates, err := e.intermediates(ctx, cert)
	if err != nil {
		return credential.TrustInvalid, err
	}
	usages := policyUsages(policy)
	if len(usages) == 0 {
		usages = []x509.ExtKeyUsage{x509.ExtKeyUsageAny}
	}
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:         e.roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     usages,
	})
	if err == nil {
		return credential.TrustUnspecified, nil
	}
	return classify(err), nil
}

func (e *Engine) intermediates(ctx context.Context, cert *x509.Certificate) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if e.parents == nil {
		return pool, nil
	}
	current := []*x509.Certificate{cert}
	for depth := 0; depth < maxChainDepth && len(current) > 0; depth++ {
		var next []*x509.Certificate
		for _, c := range current {
			if bytes.Equal(c.RawIssuer, c.RawSubject) {
				continue
			}
			parents, err := e.parents.CopyParentCertificates(ctx, c)
			if err != nil && !errors.Is(err, credential.ErrItemNotFound) {
				return nil, err
			}
			for _, p := range parents {
				pool.AddCert(p)
				next = append(next, p)
			}
		}
		current = next
	}
	return pool, nil
}

// classify maps a verification failure onto a trust result. Problems a user can fix
// (expiry, a missing anchor) are recoverable.
func classify(err error) credential.TrustResult {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		switch invalid.Reason {
		case x509.Expired, x509.IncompatibleUsage:
			return credential.TrustRecoverableFailure
		}
		return credential.TrustFatalFailure
	}
	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		return credential.TrustRecoverableFailure
	}
	return credential.TrustFatalFailure
}

func usageAllowed(cert *x509.Certificate, want []x509.ExtKeyUsage) bool {
	if len(want) == 0 || len(cert.ExtKeyUsage) == 0 {
		return true
	}
	for _, have := range cert.ExtKeyUsage {
		if have == x509.ExtKeyUsageAny {
			return true
		}
		for _, w := range want {
			if have == w {
				return true
			}
		}
	}
	return false
}
