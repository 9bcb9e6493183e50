package trust

import (
	"crypto/x509"

	"github.com/systmms/credroute/pkg/credential"
)

// Policy is a named set of required extended key usages.
type Policy struct {
	name      string
	usages    []x509.ExtKeyUsage
	fullChain bool
}

func (p *Policy) Name() string            { return p.name }
func (p *Policy) RequiresFullChain() bool { return p.fullChain }

// Basic accepts any certificate with a valid chain to an anchor.
func Basic() *Policy {
	return &Policy{name: "basic", fullChain: true}
}

// SSL is the TLS policy. Leaf evaluation is enough for client certificates; server
// certificates need their full chain.
func SSL(server bool) *Policy {
	if server {
		return &Policy{name: "ssl-server", usages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, fullChain: true}
	}
	return &Policy{name: "ssl-client", usages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}}
}

// SMIME accepts email-protection certificates.
func SMIME() *Policy {
	return &Policy{name: "smime", usages: []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection}}
}

// ByName returns the built-in policy called name.
func ByName(name string) (*Policy, bool) {
	switch name {
	case "basic":
		return Basic(), true
	case "ssl-server":
		return SSL(true), true
	case "ssl-client":
		return SSL(false), true
	case "smime":
		return SMIME(), true
	}
	return nil, false
}

func policyUsages(p credential.Policy) []x509.ExtKeyUsage {
	if tp, ok := p.(*Policy); ok && tp != nil {
		return tp.usages
	}
	return nil
}

var _ credential.Policy = (*Policy)(nil)
