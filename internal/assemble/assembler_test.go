package assemble_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credroute/internal/assemble"
	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

type countingSource struct {
	attrs credential.AttributeMap
	data  []byte
	token credential.PersistentRef
	loads map[string]int
}

func (s *countingSource) Backend() credential.Backend { return credential.BackendLegacy }

func (s *countingSource) Attributes(context.Context, *match.Candidate) (credential.AttributeMap, error) {
	s.loads["attributes"]++
	return s.attrs.Clone(), nil
}

func (s *countingSource) Data(context.Context, *match.Candidate) ([]byte, error) {
	s.loads["data"]++
	return s.data, nil
}

func (s *countingSource) PersistentRef(context.Context, *match.Candidate) (credential.PersistentRef, error) {
	s.loads["token"]++
	return s.token, nil
}

func (s *countingSource) PairedKey(context.Context, []byte) (*credential.KeyHandle, error) {
	return nil, credential.ErrItemNotFound
}

func (s *countingSource) Resolve(context.Context, credential.PersistentRef) (credential.Handle, error) {
	return nil, credential.ErrItemNotFound
}

func newSource() *countingSource {
	return &countingSource{
		attrs: credential.AttributeMap{
			credential.AttrClass:   credential.ClassInternetPassword,
			credential.AttrService: "foo",
		},
		data:  []byte("s3cr3t"),
		token: credential.PersistentRef("tok"),
		loads: map[string]int{},
	}
}

func candidate(id string) *match.Candidate {
	ref := credential.LegacyItemRef{Keychain: "login", Record: credential.RecordGenericPassword, ID: id}
	return &match.Candidate{
		Backend: credential.BackendLegacy,
		Class:   credential.ClassGenericPassword,
		Ref:     credential.LegacyItemHandle{Ref: ref},
	}
}

func plan(t *testing.T, attrs credential.AttributeMap) *query.Plan {
	t.Helper()

	m := attrs.Clone()
	m[credential.AttrClass] = credential.ClassGenericPassword
	p, err := query.Validate(m, query.OpFind)
	require.NoError(t, err)
	return p
}

func TestSingleFragment(t *testing.T) {
	t.Parallel()

	src := newSource()
	a := assemble.New(plan(t, credential.AttributeMap{credential.ReturnData: true}), src)
	require.NoError(t, a.Add(context.Background(), candidate("1")))
	assert.True(t, a.Full())

	res, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cr3t"), res)
	assert.Equal(t, map[string]int{"data": 1}, src.loads, "only the requested fragment is loaded")
}

func TestDefaultIsReference(t *testing.T) {
	t.Parallel()

	a := assemble.New(plan(t, credential.AttributeMap{}), newSource())
	c := candidate("1")
	require.NoError(t, a.Add(context.Background(), c))

	res, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, c.Ref, res)
}

func TestContainerForSeveralResultTypes(t *testing.T) {
	t.Parallel()

	a := assemble.New(plan(t, credential.AttributeMap{
		credential.ReturnAttributes:    true,
		credential.ReturnData:          true,
		credential.ReturnPersistentRef: true,
	}), newSource())
	require.NoError(t, a.Add(context.Background(), candidate("1")))

	res, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, credential.AttributeMap{
		credential.AttrClass:          credential.ClassGenericPassword,
		credential.AttrService:        "foo",
		credential.ValueData:          []byte("s3cr3t"),
		credential.ValuePersistentRef: credential.PersistentRef("tok"),
	}, res, "the stored class overrides what the backend reported")
}

func TestCollection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit any
		add   int
		want  int
		full  bool
	}{
		{name: "limit_above_matches", limit: 5, add: 3, want: 3},
		{name: "limit_reached", limit: 2, add: 2, want: 2, full: true},
		{name: "all", limit: credential.MatchLimitAll, add: 4, want: 4},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := assemble.New(plan(t, credential.AttributeMap{credential.MatchLimit: tt.limit}), newSource())
			var refs []any
			for i := 0; i < tt.add; i++ {
				c := candidate(string(rune('a' + i)))
				refs = append(refs, c.Ref)
				require.NoError(t, a.Add(context.Background(), c))
			}
			assert.Equal(t, tt.full, a.Full())

			res, err := a.Result()
			require.NoError(t, err)
			coll, ok := res.(credential.Collection)
			require.True(t, ok)
			assert.Len(t, coll, tt.want)
			assert.Equal(t, credential.Collection(refs), coll, "match order is kept")
		})
	}
}

func TestCollectionOfContainers(t *testing.T) {
	t.Parallel()

	a := assemble.New(plan(t, credential.AttributeMap{
		credential.MatchLimit:       credential.MatchLimitAll,
		credential.ReturnRef:        true,
		credential.ReturnAttributes: true,
	}), newSource())
	require.NoError(t, a.Add(context.Background(), candidate("1")))
	require.NoError(t, a.Add(context.Background(), candidate("2")))

	res, err := a.Result()
	require.NoError(t, err)
	for _, item := range credential.Items(res) {
		m, ok := item.(credential.AttributeMap)
		require.True(t, ok)
		assert.Contains(t, m, credential.ValueRef)
		assert.Equal(t, "foo", m[credential.AttrService])
	}
}

func TestEmptyIsNotFound(t *testing.T) {
	t.Parallel()

	_, err := assemble.New(plan(t, credential.AttributeMap{}), newSource()).Result()
	assert.ErrorIs(t, err, credential.ErrItemNotFound)
}
