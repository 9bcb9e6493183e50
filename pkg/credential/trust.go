package credential

import (
	"context"
	"crypto/x509"
	"time"
)

// TrustResult is the outcome of a trust evaluation.
type TrustResult int

const (
	TrustInvalid TrustResult = iota
	TrustProceed
	TrustUnspecified
	TrustDeny
	TrustRecoverableFailure
	TrustFatalFailure
)

func (r TrustResult) String() string {
	switch r {
	case TrustProceed:
		return "proceed"
	case TrustUnspecified:
		return "unspecified"
	case TrustDeny:
		return "deny"
	case TrustRecoverableFailure:
		return "recoverable-failure"
	case TrustFatalFailure:
		return "fatal-failure"
	}
	return "invalid"
}

// Trusted reports whether r allows the certificate to be used.
func (r TrustResult) Trusted() bool {
	return r == TrustProceed || r == TrustUnspecified
}

// Policy describes what a certificate is being evaluated for.
type Policy interface {
	Name() string
	// RequiresFullChain reports whether a leaf-only evaluation is insufficient.
	RequiresFullChain() bool
}

// TrustEngine evaluates certificates. The router consumes it only as a filter
// predicate.
type TrustEngine interface {
	EvaluateLeaf(ctx context.Context, cert *x509.Certificate, policy Policy) (TrustResult, error)
	EvaluateChain(ctx context.Context, cert *x509.Certificate, policy Policy, at time.Time) (TrustResult, error)
}
