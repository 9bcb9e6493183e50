package router

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/systmms/credroute/pkg/credential"
)

// CopyParentCertificates returns the certificates in any configured store whose
// subject is cert's issuer. Non-empty answers are remembered per issuer until
// InvalidateParentCache is called. The lookup never prompts.
func (r *Router) CopyParentCertificates(ctx context.Context, cert *x509.Certificate) ([]*x509.Certificate, error) {
	if cached, ok := r.parents.Get(cert.RawIssuer); ok {
		r.metrics.ParentCache(true)
		return cached, nil
	}
	r.metrics.ParentCache(false)

	res, err := r.Find(ctx, credential.AttributeMap{
		credential.AttrClass:   credential.ClassCertificate,
		credential.AttrSubject: append([]byte(nil), cert.RawIssuer...),
		credential.MatchLimit:  credential.MatchLimitAll,
		credential.ReturnData:  true,
		credential.UseAuthUI:   string(credential.AuthUIFail),
	})
	if credential.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var parents []*x509.Certificate
	for _, item := range credential.Items(res) {
		der, ok := item.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: parent lookup returned %T", credential.ErrBackendInternal, item)
		}
		parent, err := x509.ParseCertificate(der)
		if err != nil {
			r.logger.Debug("skipping unparsable issuer certificate: %v", err)
			continue
		}
		parents = append(parents, parent)
	}
	if len(parents) > 0 {
		r.parents.Put(cert.RawIssuer, parents)
	}
	return parents, nil
}

// InvalidateParentCache forgets every remembered issuer lookup. It only clears the
// cache and is safe to call from store change notifications.
func (r *Router) InvalidateParentCache() {
	r.parents.Clear()
}
