// Package filter applies the in-memory predicates neither backend evaluates natively
// to the candidates a search produced.
package filter

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"strings"
	"time"

	"github.com/systmms/credroute/internal/clock"
	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

// Pipeline runs the ordered candidate predicates. The first rejection stops it.
type Pipeline struct {
	trust credential.TrustEngine
	basic credential.Policy
	clock clock.Clock
}

// New builds a pipeline. trust may be nil, in which case every trust-based filter
// rejects. basic is the policy trusted-only filtering evaluates against.
func New(trust credential.TrustEngine, basic credential.Policy, clk clock.Clock) *Pipeline {
	if clk == nil {
		clk = clock.System{}
	}
	return &Pipeline{trust: trust, basic: basic, clock: clk}
}

// Accept reports whether c passes every filter p asks for. Errors are returned only
// when loading the candidate from src fails; trust failures reject.
func (pl *Pipeline) Accept(ctx context.Context, p *query.Plan, src match.Source, c *match.Candidate) (bool, error) {
	splitIdentity(c)

	isCert := c.Class == credential.ClassCertificate || c.Class == credential.ClassIdentity
	var cert *x509.Certificate
	if isCert && (p.Filters.NeedsCertificate() || p.Class == credential.ClassIdentity) {
		var err error
		if cert, err = c.Certificate(ctx, src); err != nil {
			return false, err
		}
	}

	if cert != nil {
		if !subjectMatches(cert, p.Filters) || !issuerSerialMatches(cert, p.Filters) {
			return false, nil
		}
	}

	if p.Class == credential.ClassIdentity && c.Key == nil {
		if cert == nil {
			return false, nil
		}
		ok, err := pl.completeIdentity(ctx, src, c, cert)
		if err != nil || !ok {
			return false, err
		}
	}

	if cert != nil {
		at := pl.evaluationTime(p.Filters)
		if p.Filters.Policy != nil && !pl.conformsTo(ctx, cert, p.Filters.Policy, at) {
			return false, nil
		}
		if p.Filters.ValidOn != nil && !validAt(cert, at) {
			return false, nil
		}
		if p.Filters.TrustedOnly && !pl.trusted(ctx, cert, at) {
			return false, nil
		}
	}

	if p.HasMatchList() {
		return pl.member(ctx, p, src, c), nil
	}
	return true, nil
}

// splitIdentity turns an identity candidate into its certificate, carrying the key
// along for result shaping.
func splitIdentity(c *match.Candidate) {
	id, ok := c.Ref.(credential.IdentityHandle)
	if !ok {
		return
	}
	key := id.Key
	c.Ref = id.Certificate
	c.Key = &key
	c.Class = credential.ClassCertificate
}

func subjectMatches(cert *x509.Certificate, f query.Filters) bool {
	if len(f.Subject) > 0 {
		subject := subjectString(cert)
		fold := newFolder(f)
		for _, m := range f.Subject {
			if !matchSubject(subject, m, fold) {
				return false
			}
		}
	}
	if f.Email != "" && len(cert.EmailAddresses) > 0 {
		for _, addr := range cert.EmailAddresses {
			if strings.EqualFold(addr, f.Email) {
				return true
			}
		}
		return false
	}
	return true
}

// subjectString is the text subject filters compare against: the common name, else
// the first email address, else the whole distinguished name.
func subjectString(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	if len(cert.EmailAddresses) > 0 {
		return cert.EmailAddresses[0]
	}
	return cert.Subject.String()
}

func issuerSerialMatches(cert *x509.Certificate, f query.Filters) bool {
	if f.Issuer == nil {
		return true
	}
	return bytes.Equal(cert.RawIssuer, f.Issuer) &&
		bytes.Equal(credential.SerialBytes(cert.SerialNumber), bytes.TrimLeft(f.Serial, "\x00"))
}

func (pl *Pipeline) completeIdentity(ctx context.Context, src match.Source, c *match.Candidate, cert *x509.Certificate) (bool, error) {
	hash := credential.PublicKeyHash(cert)
	if attrs, err := c.LoadAttributes(ctx, src); err == nil {
		if h, ok := credential.AsBytes(attrs[credential.AttrPublicKeyHash]); ok && len(h) > 0 {
			hash = h
		}
	}
	key, err := src.PairedKey(ctx, hash)
	switch {
	case errors.Is(err, credential.ErrItemNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	c.Key = key
	return true, nil
}

func (pl *Pipeline) evaluationTime(f query.Filters) time.Time {
	if f.ValidOn != nil && !f.ValidOn.IsZero() {
		return *f.ValidOn
	}
	return pl.clock.Now()
}

func (pl *Pipeline) conformsTo(ctx context.Context, cert *x509.Certificate, policy credential.Policy, at time.Time) bool {
	if pl.trust == nil {
		return false
	}
	var (
		res credential.TrustResult
		err error
	)
	if policy.RequiresFullChain() {
		res, err = pl.trust.EvaluateChain(ctx, cert, policy, at)
	} else {
		res, err = pl.trust.EvaluateLeaf(ctx, cert, policy)
	}
	if err != nil {
		return false
	}
	switch res {
	case credential.TrustInvalid, credential.TrustDeny, credential.TrustFatalFailure:
		return false
	}
	return true
}

func validAt(cert *x509.Certificate, at time.Time) bool {
	if cert.NotBefore.IsZero() && cert.NotAfter.IsZero() {
		return false
	}
	return !at.Before(cert.NotBefore) && at.Before(cert.NotAfter)
}

func (pl *Pipeline) trusted(ctx context.Context, cert *x509.Certificate, at time.Time) bool {
	if pl.trust == nil || pl.basic == nil {
		return false
	}
	res, err := pl.trust.EvaluateChain(ctx, cert, pl.basic, at)
	return err == nil && res.Trusted()
}

func (pl *Pipeline) member(ctx context.Context, p *query.Plan, src match.Source, c *match.Candidate) bool {
	for _, h := range p.MatchItems {
		if credential.SameItem(c.Ref, h) {
			return true
		}
	}
	for _, tok := range p.MatchTokens {
		h, err := src.Resolve(ctx, tok)
		if err != nil {
			continue
		}
		if credential.SameItem(c.Ref, h) {
			return true
		}
	}
	return false
}
