package fakes

import (
	"context"
	"crypto/x509"
	"sync"
	"time"

	"github.com/systmms/credroute/pkg/credential"
)

// FakeTrustEngine returns canned trust results keyed by certificate common name.
type FakeTrustEngine struct {
	mu sync.Mutex

	// Leaf and Chain map a subject common name to a result. Missing names get
	// Default.
	Leaf    map[string]credential.TrustResult
	Chain   map[string]credential.TrustResult
	Default credential.TrustResult
	// Err is returned by both evaluations when set.
	Err error

	LeafCalls  int
	ChainCalls int
	// ChainTimes records the evaluation time of every chain evaluation.
	ChainTimes []time.Time
}

// NewFakeTrustEngine creates an engine that trusts everything.
func NewFakeTrustEngine() *FakeTrustEngine {
	return &FakeTrustEngine{
		Leaf:    make(map[string]credential.TrustResult),
		Chain:   make(map[string]credential.TrustResult),
		Default: credential.TrustProceed,
	}
}

// EvaluateLeaf implements credential.TrustEngine.
func (f *FakeTrustEngine) EvaluateLeaf(_ context.Context, cert *x509.Certificate, _ credential.Policy) (credential.TrustResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LeafCalls++
	if f.Err != nil {
		return credential.TrustInvalid, f.Err
	}
	if r, ok := f.Leaf[cert.Subject.CommonName]; ok {
		return r, nil
	}
	return f.Default, nil
}

// EvaluateChain implements credential.TrustEngine.
func (f *FakeTrustEngine) EvaluateChain(_ context.Context, cert *x509.Certificate, _ credential.Policy, at time.Time) (credential.TrustResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChainCalls++
	f.ChainTimes = append(f.ChainTimes, at)
	if f.Err != nil {
		return credential.TrustInvalid, f.Err
	}
	if r, ok := f.Chain[cert.Subject.CommonName]; ok {
		return r, nil
	}
	return f.Default, nil
}

// FakePolicy is a named policy with a configurable chain requirement.
type FakePolicy struct {
	PolicyName string
	FullChain  bool
}

func (p FakePolicy) Name() string            { return p.PolicyName }
func (p FakePolicy) RequiresFullChain() bool { return p.FullChain }

var (
	_ credential.TrustEngine = (*FakeTrustEngine)(nil)
	_ credential.Policy      = FakePolicy{}
)
