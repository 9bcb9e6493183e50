package router_test

import (
	"context"
	"crypto/x509"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credroute/pkg/credential"
	"github.com/systmms/credroute/pkg/router"
	"github.com/systmms/credroute/tests/fakes"
	"github.com/systmms/credroute/tests/testutil"
)

type fixture struct {
	router   *router.Router
	legacy   *fakes.FakeLegacyStore
	modern   *fakes.FakeModernStore
	unlocker *fakes.FakeUnlocker
}

func newFixture(t *testing.T, opts ...router.Option) *fixture {
	t.Helper()
	f := &fixture{
		legacy:   fakes.NewFakeLegacyStore(),
		modern:   fakes.NewFakeModernStore(),
		unlocker: &fakes.FakeUnlocker{},
	}
	all := append([]router.Option{
		router.WithLegacyStore(f.legacy),
		router.WithModernStore(f.modern),
		router.WithUnlocker(f.unlocker),
	}, opts...)
	r, err := router.New(all...)
	require.NoError(t, err)
	f.router = r
	return f
}

func password(service, account string) credential.AttributeMap {
	return credential.AttributeMap{
		credential.AttrClass:   credential.ClassGenericPassword,
		credential.AttrService: service,
		credential.AttrAccount: account,
	}
}

func with(m credential.AttributeMap, kv ...any) credential.AttributeMap {
	out := m.Clone()
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func TestNewRequiresAStore(t *testing.T) {
	t.Parallel()

	_, err := router.New()
	assert.ErrorIs(t, err, credential.ErrParameter)
}

func TestFindLegacyPasswordData(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "bar"), []byte("s3cr3t"))

	res, err := f.router.Find(context.Background(), with(password("foo", "bar"),
		credential.MatchLimit, 1,
		credential.ReturnData, true,
	))

	require.NoError(t, err)
	assert.Equal(t, []byte("s3cr3t"), res)
}

func TestFindCertificateSubjectStartsWith(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	root := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "Example Root", IsCA: true})
	other := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "Other"})
	f.legacy.Seed(credential.RecordCertificate, credential.CertificateAttributes(root.Cert), root.Cert.Raw)
	f.legacy.Seed(credential.RecordCertificate, credential.CertificateAttributes(other.Cert), other.Cert.Raw)

	res, err := f.router.Find(context.Background(), credential.AttributeMap{
		credential.AttrClass:              credential.ClassCertificate,
		credential.MatchSubjectStartsWith: "Example",
		credential.MatchLimit:             credential.MatchLimitAll,
		credential.ReturnData:             true,
	})

	require.NoError(t, err)
	items := credential.Items(res)
	require.Len(t, items, 1)
	assert.Equal(t, root.Cert.Raw, items[0])
}

func TestFindValidationAbortsBeforeDispatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.router.Find(context.Background(), credential.AttributeMap{
		credential.AttrClass:  credential.ClassGenericPassword,
		credential.MatchLimit: 0,
	})

	assert.ErrorIs(t, err, credential.ErrInvalidValue)
	assert.Empty(t, f.legacy.Searches)
	assert.Empty(t, f.modern.Calls)
}

func TestFindMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(f *fixture)
		query     credential.AttributeMap
		wantErr   error
		wantItems []string
	}{
		{
			name: "legacy not found, modern found",
			setup: func(f *fixture) {
				f.modern.Seed(with(password("foo", "bar"), credential.AttrLabel, "modern"), nil)
			},
			wantItems: []string{"modern"},
		},
		{
			name: "modern missing entitlement, legacy authoritative",
			setup: func(f *fixture) {
				f.legacy.Seed(credential.RecordGenericPassword, with(password("foo", "bar"), credential.AttrLabel, "legacy"), nil)
				f.modern.Seed(with(password("foo", "bar"), credential.AttrLabel, "modern"), nil)
				f.modern.FindErr = fmt.Errorf("no keychain-access-groups: %w", credential.ErrMissingEntitlement)
			},
			wantItems: []string{"legacy"},
		},
		{
			name: "modern failed, legacy found",
			setup: func(f *fixture) {
				f.legacy.Seed(credential.RecordGenericPassword, with(password("foo", "bar"), credential.AttrLabel, "legacy"), nil)
				f.modern.FindErr = fmt.Errorf("daemon gone: %w", credential.ErrBackendInternal)
			},
			wantItems: []string{"legacy"},
		},
		{
			name: "both singletons, modern wins",
			setup: func(f *fixture) {
				f.legacy.Seed(credential.RecordGenericPassword, with(password("foo", "bar"), credential.AttrLabel, "legacy"), nil)
				f.modern.Seed(with(password("foo", "bar"), credential.AttrLabel, "modern"), nil)
			},
			wantItems: []string{"modern"},
		},
		{
			name: "both collections, modern first",
			setup: func(f *fixture) {
				f.legacy.Seed(credential.RecordGenericPassword, with(password("foo", "bar"), credential.AttrLabel, "legacy"), nil)
				f.modern.Seed(with(password("foo", "bar"), credential.AttrLabel, "modern"), nil)
			},
			query:     credential.AttributeMap{credential.MatchLimit: credential.MatchLimitAll},
			wantItems: []string{"modern", "legacy"},
		},
		{
			name:    "nothing anywhere",
			setup:   func(*fixture) {},
			wantErr: credential.ErrItemNotFound,
		},
		{
			name: "both failed, most interesting error",
			setup: func(f *fixture) {
				f.legacy.SearchErr = fmt.Errorf("disk: %w", credential.ErrBackendInternal)
				f.modern.FindErr = fmt.Errorf("locked: %w", credential.ErrAuthenticationRequired)
			},
			wantErr: credential.ErrAuthenticationRequired,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tt.setup(f)

			q := with(password("foo", "bar"), credential.ReturnAttributes, true)
			for k, v := range tt.query {
				q[k] = v
			}
			res, err := f.router.Find(context.Background(), q)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var labels []string
			for _, item := range credential.Items(res) {
				labels = append(labels, item.(credential.AttributeMap)[credential.AttrLabel].(string))
			}
			assert.Equal(t, tt.wantItems, labels)
		})
	}
}

func TestFindIsIdempotentAndOrdersModernFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "a"), nil)
	f.modern.Seed(password("foo", "b"), nil)
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "c"), nil)

	q := credential.AttributeMap{
		credential.AttrClass:           credential.ClassGenericPassword,
		credential.AttrService:         "foo",
		credential.MatchLimit:          credential.MatchLimitAll,
		credential.ReturnPersistentRef: true,
	}
	first, err := f.router.Find(context.Background(), q)
	require.NoError(t, err)
	second, err := f.router.Find(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	tokens := credential.Items(first)
	require.Len(t, tokens, 3)
	assert.True(t, tokens[0].(credential.PersistentRef).IsModern())
	assert.True(t, tokens[1].(credential.PersistentRef).IsLegacy())
	assert.True(t, tokens[2].(credential.PersistentRef).IsLegacy())
}

func TestAddThenFindRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		attrs   credential.AttributeMap
		backend credential.Backend
	}{
		{
			name: "legacy by default",
			attrs: credential.AttributeMap{
				credential.AttrClass:       credential.ClassGenericPassword,
				credential.AttrService:     "svc",
				credential.AttrAccount:     "alice",
				credential.AttrLabel:       "svc (alice)",
				credential.AttrDescription: "app password",
			},
			backend: credential.BackendLegacy,
		},
		{
			name: "internet password",
			attrs: credential.AttributeMap{
				credential.AttrClass:    credential.ClassInternetPassword,
				credential.AttrServer:   "example.com",
				credential.AttrAccount:  "alice",
				credential.AttrProtocol: "https",
				credential.AttrPort:     443,
			},
			backend: credential.BackendLegacy,
		},
		{
			name: "synchronizable goes modern",
			attrs: credential.AttributeMap{
				credential.AttrClass:          credential.ClassGenericPassword,
				credential.AttrService:        "svc",
				credential.AttrAccount:        "bob",
				credential.AttrSynchronizable: true,
			},
			backend: credential.BackendModern,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()

			add := with(tt.attrs, credential.ValueData, "pw", credential.ReturnRef, true)
			ref, err := f.router.Add(ctx, add)
			require.NoError(t, err)
			assert.Equal(t, tt.backend, ref.(credential.Handle).Backend())

			q := with(tt.attrs, credential.ReturnAttributes, true, credential.ReturnData, true)
			res, err := f.router.Find(ctx, q)
			require.NoError(t, err)
			found := res.(credential.AttributeMap)
			for k, v := range tt.attrs {
				assert.Equal(t, v, found[k], k)
			}
			assert.Equal(t, []byte("pw"), found[credential.ValueData])
		})
	}
}

func TestAddWithoutReturnFlags(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.router.Add(context.Background(), password("svc", "alice"))

	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, f.legacy.Len())
}

func TestAddDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.Add(ctx, password("svc", "alice"))
	require.NoError(t, err)
	_, err = f.router.Add(ctx, password("svc", "alice"))

	assert.ErrorIs(t, err, credential.ErrDuplicateItem)
	var ce *credential.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, credential.BackendLegacy, ce.Backend)
}

func TestAddFloatingCertificate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	leaf := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "leaf.example", Email: "ops@example.com"})

	tok, err := f.router.Add(ctx, credential.AttributeMap{
		credential.ValueRef:            leaf.Cert,
		credential.ReturnPersistentRef: true,
	})
	require.NoError(t, err)
	assert.True(t, tok.(credential.PersistentRef).IsLegacy())

	res, err := f.router.Find(ctx, credential.AttributeMap{
		credential.AttrClass:        credential.ClassCertificate,
		credential.AttrSubject:      leaf.Cert.RawSubject,
		credential.ReturnAttributes: true,
		credential.ReturnData:       true,
	})
	require.NoError(t, err)
	found := res.(credential.AttributeMap)
	assert.Equal(t, "leaf.example", found[credential.AttrLabel])
	assert.Equal(t, "ops@example.com", found[credential.AttrEmailAddress])
	assert.Equal(t, leaf.Cert.Raw, found[credential.ValueData])
}

func TestAddIdentityIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.router.Add(context.Background(), credential.AttributeMap{
		credential.AttrClass: credential.ClassIdentity,
	})

	assert.ErrorIs(t, err, credential.ErrParameter)
	assert.Zero(t, f.legacy.Len())
}

func TestFindIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	paired := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "paired"})
	lonely := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "lonely"})
	f.legacy.Seed(credential.RecordCertificate, credential.CertificateAttributes(lonely.Cert), lonely.Cert.Raw)
	f.legacy.Seed(credential.RecordCertificate, credential.CertificateAttributes(paired.Cert), paired.Cert.Raw)
	f.legacy.Seed(credential.RecordPrivateKey, credential.AttributeMap{
		credential.AttrApplicationLabel: paired.KeyHash,
		credential.AttrLabel:            "paired key",
	}, []byte("key material"))

	res, err := f.router.Find(context.Background(), credential.AttributeMap{
		credential.AttrClass:  credential.ClassIdentity,
		credential.MatchLimit: credential.MatchLimitAll,
	})

	require.NoError(t, err)
	items := credential.Items(res)
	require.Len(t, items, 1)
	id, ok := items[0].(credential.IdentityHandle)
	require.True(t, ok, "got %T", items[0])
	assert.Equal(t, credential.KeyClassPrivate, id.Key.KeyClass)
	assert.Equal(t, credential.BackendLegacy, id.Backend())
}

func TestDelete(t *testing.T) {
	t.Parallel()

	t.Run("no matches anywhere", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		err := f.router.Delete(context.Background(), password("foo", "bar"))

		assert.ErrorIs(t, err, credential.ErrItemNotFound)
	})

	t.Run("removes matches from both stores", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.legacy.Seed(credential.RecordGenericPassword, password("foo", "a"), nil)
		f.legacy.Seed(credential.RecordGenericPassword, password("foo", "b"), nil)
		f.modern.Seed(password("foo", "c"), nil)
		f.modern.Seed(password("other", "d"), nil)

		err := f.router.Delete(context.Background(), credential.AttributeMap{
			credential.AttrClass:   credential.ClassGenericPassword,
			credential.AttrService: "foo",
		})

		require.NoError(t, err)
		assert.Zero(t, f.legacy.Len())
		assert.Equal(t, 1, f.modern.Len())
	})

	t.Run("one backend missing is still success", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.modern.Seed(password("foo", "bar"), nil)

		err := f.router.Delete(context.Background(), password("foo", "bar"))

		require.NoError(t, err)
		assert.Zero(t, f.modern.Len())
	})

	t.Run("non-baseline error wins over success", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.legacy.Seed(credential.RecordGenericPassword, password("foo", "bar"), nil)
		f.modern.Seed(password("foo", "bar"), nil)
		f.modern.DeleteErr = fmt.Errorf("denied: %w", credential.ErrAuthenticationRequired)

		err := f.router.Delete(context.Background(), password("foo", "bar"))

		assert.ErrorIs(t, err, credential.ErrAuthenticationRequired)
		assert.Zero(t, f.legacy.Len())
	})
}

func TestUpdateInPlace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "a"), []byte("old"))
	f.modern.Seed(password("foo", "b"), []byte("old"))

	err := f.router.Update(ctx, credential.AttributeMap{
		credential.AttrClass:   credential.ClassGenericPassword,
		credential.AttrService: "foo",
	}, credential.AttributeMap{
		credential.AttrLabel: "renamed",
		credential.ValueData: "new",
	})
	require.NoError(t, err)

	for _, account := range []string{"a", "b"} {
		res, err := f.router.Find(ctx, with(password("foo", account),
			credential.ReturnAttributes, true,
			credential.ReturnData, true,
		))
		require.NoError(t, err)
		found := res.(credential.AttributeMap)
		assert.Equal(t, "renamed", found[credential.AttrLabel], account)
		assert.Equal(t, []byte("new"), found[credential.ValueData], account)
	}
}

func TestUpdateRejectsControlKeyChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.router.Update(context.Background(), password("foo", "bar"), credential.AttributeMap{
		credential.MatchLimit: 2,
	})

	assert.ErrorIs(t, err, credential.ErrParameter)
}

func TestUpdateMigratesToModern(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "bar"), []byte("s3cr3t"))

	err := f.router.Update(ctx, password("foo", "bar"), credential.AttributeMap{
		credential.AttrSynchronizable: true,
	})
	require.NoError(t, err)

	assert.Zero(t, f.legacy.Len())
	assert.Equal(t, 1, f.modern.Len())
	res, err := f.router.Find(ctx, with(password("foo", "bar"),
		credential.AttrSynchronizable, true,
		credential.ReturnAttributes, true,
		credential.ReturnData, true,
	))
	require.NoError(t, err)
	found := res.(credential.AttributeMap)
	assert.Equal(t, true, found[credential.AttrSynchronizable])
	assert.Equal(t, []byte("s3cr3t"), found[credential.ValueData])
}

func TestUpdateSynchronizableRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.modern.Seed(with(password("foo", "bar"), credential.AttrSynchronizable, true), []byte("s3cr3t"))

	tokenOf := func() credential.PersistentRef {
		res, err := f.router.Find(ctx, with(password("foo", "bar"),
			credential.AttrSynchronizable, credential.SynchronizableAny,
			credential.ReturnPersistentRef, true,
		))
		require.NoError(t, err)
		return res.(credential.PersistentRef)
	}
	before := tokenOf()

	require.NoError(t, f.router.Update(ctx, password("foo", "bar"), credential.AttributeMap{credential.AttrSynchronizable: false}))
	assert.Equal(t, 1, f.legacy.Len())
	assert.Zero(t, f.modern.Len())

	require.NoError(t, f.router.Update(ctx, password("foo", "bar"), credential.AttributeMap{credential.AttrSynchronizable: true}))
	assert.Zero(t, f.legacy.Len())
	require.Equal(t, 1, f.modern.Len())

	after := tokenOf()
	assert.NotEqual(t, before, after)
	data, ok := f.modern.Data(after)
	require.True(t, ok)
	assert.Equal(t, []byte("s3cr3t"), data)
}

func TestUpdateSyncFalseUpdatesLocalItemsInPlace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.modern.Seed(password("foo", "local"), nil)

	err := f.router.Update(context.Background(), credential.AttributeMap{
		credential.AttrClass:   credential.ClassGenericPassword,
		credential.AttrService: "foo",
	}, credential.AttributeMap{credential.AttrSynchronizable: false})

	require.NoError(t, err)
	assert.Equal(t, 1, f.modern.Len())
	assert.Zero(t, f.legacy.Len())
}

func TestMigrationDuplicateUpdatesExistingTarget(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.legacy.Seed(credential.RecordGenericPassword, with(password("foo", "bar"), credential.AttrLabel, "legacy"), []byte("one"))
	f.modern.Seed(with(password("foo", "bar"),
		credential.AttrSynchronizable, true,
		credential.AttrLabel, "modern",
	), []byte("two"))

	err := f.router.Update(ctx, password("foo", "bar"), credential.AttributeMap{
		credential.AttrSynchronizable: true,
		credential.AttrLabel:          "merged",
	})
	require.NoError(t, err)

	assert.Zero(t, f.legacy.Len())
	require.Equal(t, 1, f.modern.Len())
	res, err := f.router.Find(ctx, with(password("foo", "bar"),
		credential.AttrSynchronizable, true,
		credential.ReturnAttributes, true,
	))
	require.NoError(t, err)
	assert.Equal(t, "merged", res.(credential.AttributeMap)[credential.AttrLabel])
}

func TestMigrationIsolatesSiblings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "a"), []byte("a"))
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "b"), []byte("b"))
	f.modern.AddErrs = []error{fmt.Errorf("refused: %w", credential.ErrAuthenticationRequired)}

	err := f.router.Update(context.Background(), credential.AttributeMap{
		credential.AttrClass:   credential.ClassGenericPassword,
		credential.AttrService: "foo",
	}, credential.AttributeMap{credential.AttrSynchronizable: true})

	assert.ErrorIs(t, err, credential.ErrAuthenticationRequired)
	assert.Equal(t, 1, f.legacy.Len(), "failed item keeps its source")
	assert.Equal(t, 1, f.modern.Len(), "sibling still migrated")
	assert.Len(t, f.legacy.Deleted, 1)
}

func TestMigrationKeepsSourceWhenDeleteFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "bar"), []byte("x"))
	f.legacy.DeleteErr = fmt.Errorf("read-only: %w", credential.ErrBackendInternal)

	err := f.router.Update(context.Background(), password("foo", "bar"), credential.AttributeMap{
		credential.AttrSynchronizable: true,
	})

	assert.ErrorIs(t, err, credential.ErrBackendInternal)
	assert.Equal(t, 1, f.legacy.Len())
}

func TestModernUnlockRetry(t *testing.T) {
	t.Parallel()

	locked := fmt.Errorf("keyring locked: %w", credential.ErrInteractionNotAllowed)

	tests := []struct {
		name        string
		authUI      credential.AuthUI
		unlocks     bool
		wantErr     error
		wantUnlocks int
		wantFinds   int
	}{
		{name: "prompt allowed and unlock works", authUI: credential.AuthUIAllow, unlocks: true, wantUnlocks: 1, wantFinds: 2},
		{name: "prompt allowed but still locked", authUI: credential.AuthUIAllow, wantErr: credential.ErrInteractionNotAllowed, wantUnlocks: 1, wantFinds: 2},
		{name: "prompt forbidden", authUI: credential.AuthUIFail, unlocks: true, wantErr: credential.ErrInteractionNotAllowed, wantFinds: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			modern := fakes.NewFakeModernStore()
			modern.Seed(password("foo", "bar"), nil)
			modern.FindErr = locked
			unlocker := &fakes.FakeUnlocker{}
			if tt.unlocks {
				unlocker.OnUnlock = func() { modern.FindErr = nil }
			}
			r, err := router.New(router.WithModernStore(modern), router.WithUnlocker(unlocker))
			require.NoError(t, err)

			_, err = r.Find(context.Background(), with(password("foo", "bar"), credential.UseAuthUI, tt.authUI))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantUnlocks, unlocker.Calls)
			assert.Equal(t, tt.wantFinds, modern.Calls["Find"])
		})
	}
}

func TestModernAddRetriesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	locked := fmt.Errorf("keyring locked: %w", credential.ErrInteractionNotAllowed)
	f.modern.AddErrs = []error{locked}

	_, err := f.router.Add(context.Background(), with(password("foo", "bar"), credential.AttrSynchronizable, true))

	require.NoError(t, err)
	assert.Equal(t, 1, f.unlocker.Calls)
	assert.Equal(t, 2, f.modern.Calls["Add"])
	assert.Equal(t, 1, f.modern.Len())
}

func TestRouterWithOnlyOneStore(t *testing.T) {
	t.Parallel()
	legacyStore := fakes.NewFakeLegacyStore()
	r, err := router.New(router.WithLegacyStore(legacyStore))
	require.NoError(t, err)

	_, err = r.Add(context.Background(), with(password("foo", "bar"), credential.AttrSynchronizable, true))
	assert.ErrorIs(t, err, credential.ErrInvalidValue)

	_, err = r.Add(context.Background(), password("foo", "bar"))
	require.NoError(t, err)
	assert.Equal(t, 1, legacyStore.Len())
}

func TestCopyParentCertificates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	root := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "Example Root", IsCA: true})
	leaf := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "leaf", Parent: root})
	f.legacy.Seed(credential.RecordCertificate, credential.CertificateAttributes(root.Cert), root.Cert.Raw)

	parents, err := f.router.CopyParentCertificates(ctx, leaf.Cert)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, root.Cert.Raw, parents[0].Raw)
	searches := len(f.legacy.Searches)

	cached, err := f.router.CopyParentCertificates(ctx, leaf.Cert)
	require.NoError(t, err)
	assert.Equal(t, parents, cached)
	assert.Len(t, f.legacy.Searches, searches, "second lookup is served from the cache")

	f.router.InvalidateParentCache()
	_, err = f.router.CopyParentCertificates(ctx, leaf.Cert)
	require.NoError(t, err)
	assert.Greater(t, len(f.legacy.Searches), searches)
}

func TestCopyParentCertificatesUnknownIssuer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	root := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "Unknown Root", IsCA: true})
	leaf := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "leaf", Parent: root})

	parents, err := f.router.CopyParentCertificates(context.Background(), leaf.Cert)

	require.NoError(t, err)
	assert.Empty(t, parents)
	searches := len(f.legacy.Searches)
	_, err = f.router.CopyParentCertificates(context.Background(), leaf.Cert)
	require.NoError(t, err)
	assert.Greater(t, len(f.legacy.Searches), searches, "empty answers are not cached")
}

func TestFindTrustedOnly(t *testing.T) {
	t.Parallel()
	trust := fakes.NewFakeTrustEngine()
	f := newFixture(t, router.WithTrustEngine(trust, fakes.FakePolicy{PolicyName: "basic", FullChain: true}))
	good := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "good"})
	bad := testutil.NewTestCert(t, testutil.CertOptions{CommonName: "bad"})
	trust.Chain["bad"] = credential.TrustRecoverableFailure
	for _, c := range []*x509.Certificate{good.Cert, bad.Cert} {
		f.modern.Seed(with(credential.CertificateAttributes(c), credential.AttrClass, credential.ClassCertificate), c.Raw)
	}

	res, err := f.router.Find(context.Background(), credential.AttributeMap{
		credential.AttrClass:        credential.ClassCertificate,
		credential.MatchTrustedOnly: true,
		credential.MatchLimit:       credential.MatchLimitAll,
		credential.ReturnAttributes: true,
	})

	require.NoError(t, err)
	items := credential.Items(res)
	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].(credential.AttributeMap)[credential.AttrLabel])
}

func TestFindTracesStates(t *testing.T) {
	t.Parallel()
	logs := testutil.NewTestLogger(t, true)
	f := newFixture(t, router.WithLogger(logs.Logger()))
	f.legacy.Seed(credential.RecordGenericPassword, password("foo", "bar"), []byte("s3cr3t"))

	_, err := f.router.Find(context.Background(), with(password("foo", "bar"), credential.ReturnData, true))
	require.NoError(t, err)

	for _, s := range []string{"[init]", "[routed-legacy]", "[routed-modern]", "[merged]", "[done]"} {
		logs.AssertContains(t, "find "+s)
	}
	logs.AssertRedacted(t, "s3cr3t")
}

func TestTracingOffByDefault(t *testing.T) {
	t.Parallel()
	logs := testutil.NewTestLogger(t, false)
	f := newFixture(t, router.WithLogger(logs.Logger()))

	_, err := f.router.Find(context.Background(), password("foo", "bar"))
	require.ErrorIs(t, err, credential.ErrItemNotFound)

	assert.Empty(t, logs.Lines())
}

func TestFindByItemList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		attrs  credential.AttributeMap
		result string
		list   func(ref credential.Handle, tok credential.PersistentRef) any
	}{
		{
			name:   "modern handle",
			attrs:  with(password("svc", "bob"), credential.AttrSynchronizable, true),
			result: credential.ReturnRef,
			list: func(ref credential.Handle, _ credential.PersistentRef) any {
				return []credential.Handle{ref}
			},
		},
		{
			name:   "modern persistent ref",
			attrs:  with(password("svc", "bob"), credential.AttrSynchronizable, true),
			result: credential.ReturnPersistentRef,
			list: func(_ credential.Handle, tok credential.PersistentRef) any {
				return []any{tok}
			},
		},
		{
			name:   "legacy handle",
			attrs:  password("svc", "alice"),
			result: credential.ReturnRef,
			list: func(ref credential.Handle, _ credential.PersistentRef) any {
				return []credential.Handle{ref}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()

			added, err := f.router.Add(ctx, with(tt.attrs, credential.ValueData, "pw", tt.result, true))
			require.NoError(t, err)
			ref, _ := added.(credential.Handle)
			tok, _ := added.(credential.PersistentRef)

			res, err := f.router.Find(ctx, credential.AttributeMap{
				credential.AttrClass:   credential.ClassGenericPassword,
				credential.UseItemList: tt.list(ref, tok),
				credential.ReturnData:  true,
			})
			require.NoError(t, err)
			assert.Equal(t, []byte("pw"), res)
		})
	}
}
