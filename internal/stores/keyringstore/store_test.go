package keyringstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/systmms/credroute/internal/stores/keyringstore"
	"github.com/systmms/credroute/pkg/credential"
	"github.com/systmms/credroute/pkg/router"
)

// The keyring mock is process-global, so these tests do not run in parallel.

func newStore(t *testing.T) *keyringstore.Store {
	t.Helper()
	keyring.MockInit()
	return keyringstore.New("credroute-test")
}

func password(service, account string) credential.AttributeMap {
	return credential.AttributeMap{
		credential.AttrClass: credential.ClassGenericPassword,
		"service":            service,
		"account":            account,
	}
}

func TestAddAndFind(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	attrs := password("mail", "alice")
	attrs[credential.ValueData] = []byte("hunter2")
	attrs["creator"] = 42
	rec, err := s.Add(ctx, attrs)
	require.NoError(t, err)
	tok, ok := rec[credential.ValuePersistentRef].(credential.PersistentRef)
	require.True(t, ok)
	assert.Len(t, tok, 20)
	assert.Equal(t, false, rec[credential.AttrSynchronizable])

	query := password("mail", "alice")
	query[credential.ReturnData] = true
	got, err := s.Find(ctx, query)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("hunter2"), got[0][credential.ValueData])
	assert.Equal(t, credential.ClassGenericPassword, got[0][credential.AttrClass])
	assert.Equal(t, 42, got[0]["creator"])
	assert.Equal(t, "alice", got[0]["account"])

	_, err = s.Find(ctx, password("mail", "bob"))
	assert.ErrorIs(t, err, credential.ErrItemNotFound)
}

func TestAddDuplicate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, password("mail", "alice"))
	require.NoError(t, err)
	_, err = s.Add(ctx, password("mail", "alice"))
	assert.ErrorIs(t, err, credential.ErrDuplicateItem)

	_, err = s.Add(ctx, password("mail", "bob"))
	assert.NoError(t, err)
}

func TestAddRejectsBadInput(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		attrs credential.AttributeMap
		want  error
	}{
		{"no class", credential.AttributeMap{"service": "x"}, credential.ErrItemClassMissing},
		{"unencodable value", credential.AttributeMap{credential.AttrClass: credential.ClassGenericPassword, "service": struct{}{}}, credential.ErrInvalidValue},
		{"bad payload", credential.AttributeMap{credential.AttrClass: credential.ClassGenericPassword, credential.ValueData: 3}, credential.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(ctx, tt.attrs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSynchronizableVisibility(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	local := password("mail", "alice")
	_, err := s.Add(ctx, local)
	require.NoError(t, err)
	synced := password("mail", "bob")
	synced[credential.AttrSynchronizable] = true
	_, err = s.Add(ctx, synced)
	require.NoError(t, err)

	q := credential.AttributeMap{credential.AttrClass: credential.ClassGenericPassword, credential.MatchLimit: credential.MatchLimitAll}

	got, err := s.Find(ctx, q)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	q[credential.AttrSynchronizable] = credential.SynchronizableAny
	got, err = s.Find(ctx, q)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	q[credential.AttrSynchronizable] = true
	got, err = s.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0]["account"])
}

func TestFindLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, acct := range []string{"a", "b", "c"} {
		_, err := s.Add(ctx, password("mail", acct))
		require.NoError(t, err)
	}

	q := credential.AttributeMap{credential.AttrClass: credential.ClassGenericPassword}
	got, err := s.Find(ctx, q)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	q[credential.MatchLimit] = 2
	got, err = s.Find(ctx, q)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0]["account"])
}

func TestFindByPersistentRef(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.Add(ctx, password("mail", "alice"))
	require.NoError(t, err)
	rec, err := s.Add(ctx, password("mail", "bob"))
	require.NoError(t, err)

	got, err := s.Find(ctx, credential.AttributeMap{
		credential.AttrClass:          credential.ClassGenericPassword,
		credential.ValuePersistentRef: rec[credential.ValuePersistentRef],
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0]["account"])
}

func TestUpdate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ac := &credential.AccessControl{Protection: "when-unlocked"}
	attrs := password("mail", "alice")
	attrs[credential.AttrAccessControl] = ac
	_, err := s.Add(ctx, attrs)
	require.NoError(t, err)

	err = s.Update(ctx, password("mail", "alice"), credential.AttributeMap{
		"label":              "work mail",
		credential.ValueData: "new-secret",
	})
	require.NoError(t, err)

	q := password("mail", "alice")
	q[credential.ReturnData] = true
	got, err := s.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "work mail", got[0]["label"])
	assert.Equal(t, []byte("new-secret"), got[0][credential.ValueData])
	assert.Equal(t, ac, got[0][credential.AttrAccessControl])

	err = s.Update(ctx, password("mail", "nobody"), credential.AttributeMap{"label": "x"})
	assert.ErrorIs(t, err, credential.ErrItemNotFound)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, acct := range []string{"a", "b"} {
		_, err := s.Add(ctx, password("mail", acct))
		require.NoError(t, err)
	}

	require.NoError(t, s.Delete(ctx, password("mail", "a")))
	assert.ErrorIs(t, s.Delete(ctx, password("mail", "a")), credential.ErrItemNotFound)

	got, err := s.Find(ctx, credential.AttributeMap{
		credential.AttrClass:  credential.ClassGenericPassword,
		credential.MatchLimit: credential.MatchLimitAll,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0]["account"])
}

func TestKeyringFailuresAllowUnlock(t *testing.T) {
	keyring.MockInitWithError(errors.New("collection is locked"))
	s := keyringstore.New("")

	_, err := s.Find(context.Background(), password("mail", "alice"))
	assert.ErrorIs(t, err, credential.ErrInteractionNotAllowed)
	assert.ErrorIs(t, s.Unlock(context.Background()), credential.ErrInteractionNotAllowed)

	keyring.MockInit()
	assert.NoError(t, s.Unlock(context.Background()))
}

func TestRouterOverKeyring(t *testing.T) {
	s := newStore(t)
	r, err := router.New(router.WithModernStore(s))
	require.NoError(t, err)
	ctx := context.Background()

	add := password("mail", "alice")
	add[credential.ValueData] = []byte("pw")
	add[credential.AttrSynchronizable] = true
	_, err = r.Add(ctx, add)
	require.NoError(t, err)

	q := password("mail", "alice")
	q[credential.ReturnData] = true
	q[credential.AttrSynchronizable] = credential.SynchronizableAny
	res, err := r.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), res)
}
