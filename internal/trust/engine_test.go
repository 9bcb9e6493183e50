package trust_test

import (
	"context"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credroute/internal/trust"
	"github.com/systmms/credroute/pkg/credential"
	"github.com/systmms/credroute/tests/testutil"
)

type parentMap map[string][]*x509.Certificate

func (m parentMap) CopyParentCertificates(_ context.Context, cert *x509.Certificate) ([]*x509.Certificate, error) {
	if ps, ok := m[string(cert.RawIssuer)]; ok {
		return ps, nil
	}
	return nil, credential.ErrItemNotFound
}

func chain(t *testing.T) (root, inter, leaf *testutil.TestCert) {
	t.Helper()

	root = testutil.NewTestCert(t, testutil.CertOptions{CommonName: "Example Root", IsCA: true})
	inter = testutil.NewTestCert(t, testutil.CertOptions{CommonName: "Example Intermediate", IsCA: true, Parent: root})
	leaf = testutil.NewTestCert(t, testutil.CertOptions{CommonName: "leaf", Parent: inter})
	return root, inter, leaf
}

func TestEvaluateChain(t *testing.T) {
	t.Parallel()

	root, inter, leaf := chain(t)
	roots := x509.NewCertPool()
	roots.AddCert(root.Cert)
	parents := parentMap{string(inter.Cert.RawSubject): {inter.Cert}}

	e, err := trust.New(roots, parents)
	require.NoError(t, err)

	res, err := e.EvaluateChain(context.Background(), leaf.Cert, trust.Basic(), time.Now())
	require.NoError(t, err)
	assert.True(t, res.Trusted(), "got %s", res)

	res, err = e.EvaluateChain(context.Background(), leaf.Cert, trust.Basic(), time.Now().AddDate(5, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, credential.TrustRecoverableFailure, res, "expired")
}

func TestEvaluateChainWithoutParents(t *testing.T) {
	t.Parallel()

	root, _, leaf := chain(t)
	roots := x509.NewCertPool()
	roots.AddCert(root.Cert)

	e, err := trust.New(roots, nil)
	require.NoError(t, err)

	res, err := e.EvaluateChain(context.Background(), leaf.Cert, trust.Basic(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, credential.TrustRecoverableFailure, res, "intermediate unknown")

	res, err = e.EvaluateChain(context.Background(), root.Cert, trust.Basic(), time.Now())
	require.NoError(t, err)
	assert.True(t, res.Trusted(), "anchors trust themselves")
}

func TestEvaluateLeaf(t *testing.T) {
	t.Parallel()

	_, _, leaf := chain(t)
	e, err := trust.New(x509.NewCertPool(), nil)
	require.NoError(t, err)

	res, err := e.EvaluateLeaf(context.Background(), leaf.Cert, trust.SSL(false))
	require.NoError(t, err)
	assert.Equal(t, credential.TrustProceed, res)

	serverOnly := *leaf.Cert
	serverOnly.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	res, err = e.EvaluateLeaf(context.Background(), &serverOnly, trust.SMIME())
	require.NoError(t, err)
	assert.Equal(t, credential.TrustRecoverableFailure, res)

	_, err = e.EvaluateLeaf(context.Background(), nil, trust.Basic())
	assert.ErrorIs(t, err, credential.ErrParameter)
}

func TestPolicies(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"basic", "ssl-server", "ssl-client", "smime"} {
		p, ok := trust.ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, p.Name())
	}
	_, ok := trust.ByName("codesign")
	assert.False(t, ok)

	assert.True(t, trust.Basic().RequiresFullChain())
	assert.False(t, trust.SSL(false).RequiresFullChain())
}
