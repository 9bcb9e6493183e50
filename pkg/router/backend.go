package router

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

// backend adapts one store to the operations the router runs against it. Every
// backend is also the match.Source its candidates are loaded through.
type backend interface {
	match.Source

	search(ctx context.Context, p *query.Plan) (candidates, error)
	add(ctx context.Context, p *query.Plan) (*match.Candidate, error)
	update(ctx context.Context, c *match.Candidate, changes *query.Plan) error
	remove(ctx context.Context, c *match.Candidate) error
}

// candidates is a lazy, finite sequence of search results.
type candidates interface {
	next(ctx context.Context) (*match.Candidate, bool, error)
}

type sliceCandidates struct {
	items []*match.Candidate
}

func (s *sliceCandidates) next(context.Context) (*match.Candidate, bool, error) {
	if len(s.items) == 0 {
		return nil, false, nil
	}
	c := s.items[0]
	s.items = s.items[1:]
	return c, true, nil
}

// floatingCertificate returns the first floating certificate among the explicit
// items of an add.
func floatingCertificate(p *query.Plan) (*x509.Certificate, bool, error) {
	for _, h := range p.UseItems {
		ch, ok := h.(credential.CertificateHandle)
		if !ok || ch.Backend() != credential.BackendNone {
			continue
		}
		cert, err := x509.ParseCertificate(ch.DER)
		if err != nil {
			return nil, false, fmt.Errorf("%w: certificate does not parse: %v", credential.ErrInvalidValue, err)
		}
		return cert, true, nil
	}
	return nil, false, nil
}

// addContent assembles the attributes and payload of a new item. A floating
// certificate contributes its derived attributes, which explicit attributes
// override, and its DER encoding as payload.
func addContent(p *query.Plan) (credential.AttributeMap, []byte, error) {
	if p.Class == credential.ClassIdentity {
		return nil, nil, fmt.Errorf("%w: identities are stored as a certificate and a private key", credential.ErrParameter)
	}
	attrs := p.Attributes.Clone()
	data := p.Payload
	cert, ok, err := floatingCertificate(p)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		derived := credential.CertificateAttributes(cert)
		for k, v := range attrs {
			derived[k] = v
		}
		attrs = derived
		if !p.HasPayload {
			data = cert.Raw
		}
	}
	return attrs, data, nil
}
