package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

func entry(t *testing.T, rt credential.RecordType, key string) schema.Entry {
	t.Helper()
	e, ok := schema.EntryForKey(rt, key)
	require.True(t, ok, "no entry for %s in %s", key, rt)
	return e
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		record credential.RecordType
		key    string
		value  any
		want   any
		native []byte
	}{
		{
			name:   "string",
			record: credential.RecordGenericPassword,
			key:    credential.AttrAccount,
			value:  "bar",
			want:   "bar",
			native: []byte("bar"),
		},
		{
			name:   "port",
			record: credential.RecordInternetPassword,
			key:    credential.AttrPort,
			value:  uint16(443),
			want:   443,
			native: []byte{0, 0, 1, 187},
		},
		{
			name:   "protocol_fourcc",
			record: credential.RecordInternetPassword,
			key:    credential.AttrProtocol,
			value:  "https",
			want:   "https",
			native: []byte("htps"),
		},
		{
			name:   "date",
			record: credential.RecordGenericPassword,
			key:    credential.AttrCreationDate,
			value:  when,
			want:   when,
			native: append([]byte("20240309170405Z"), 0),
		},
		{
			name:   "key_class",
			record: credential.RecordPrivateKey,
			key:    credential.AttrKeyClass,
			value:  credential.KeyClassPrivate,
			want:   "private",
			native: []byte{0, 0, 0, 1},
		},
		{
			name:   "key_algorithm",
			record: credential.RecordPublicKey,
			key:    credential.AttrKeyType,
			value:  "rsa",
			want:   "rsa",
			native: []byte{0, 0, 0, 42},
		},
		{
			name:   "bool",
			record: credential.RecordSymmetricKey,
			key:    credential.AttrCanSign,
			value:  true,
			want:   true,
			native: []byte{0, 0, 0, 1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := entry(t, tt.record, tt.key)
			native, err := schema.Encode(e, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.native, native)

			got, err := schema.Decode(e, native)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeApplicationLabel(t *testing.T) {
	t.Parallel()

	e := entry(t, credential.RecordPrivateKey, credential.AttrApplicationLabel)

	uuidText := []byte("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	got, err := schema.Decode(e, uuidText)
	require.NoError(t, err)
	assert.Equal(t, string(uuidText), got, "UUID-shaped labels decode as text")

	hash := make([]byte, 36)
	hash[0] = 0xff
	got, err = schema.Decode(e, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, got, "other 36-byte labels stay bytes")

	got, err = schema.Decode(e, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestEncodeRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record credential.RecordType
		key    string
		value  any
	}{
		{"string_as_int", credential.RecordGenericPassword, credential.AttrAccount, 7},
		{"negative_port", credential.RecordInternetPassword, credential.AttrPort, -1},
		{"unknown_key_class", credential.RecordPublicKey, credential.AttrKeyClass, "sideways"},
		{"bad_protocol", credential.RecordInternetPassword, credential.AttrProtocol, "gopher+tls"},
		{"date_as_string", credential.RecordGenericPassword, credential.AttrCreationDate, "yesterday"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := schema.Encode(entry(t, tt.record, tt.key), tt.value)
			assert.ErrorIs(t, err, credential.ErrInvalidValue)
		})
	}
}

func TestCheckValue(t *testing.T) {
	t.Parallel()

	assert.NoError(t, schema.CheckValue(credential.AttrSynchronizable, true))
	assert.NoError(t, schema.CheckValue(credential.AttrSynchronizable, credential.SynchronizableAny))
	assert.ErrorIs(t, schema.CheckValue(credential.AttrSynchronizable, "yes"), credential.ErrInvalidValue)
	assert.ErrorIs(t, schema.CheckValue(credential.AttrPort, "443"), credential.ErrInvalidValue)
	assert.NoError(t, schema.CheckValue("x-custom", struct{}{}), "free-form keys are not checked")
}

func TestDecodeAllDropsUnknownTags(t *testing.T) {
	t.Parallel()

	got, err := schema.DecodeAll(credential.RecordGenericPassword, []credential.Attribute{
		{Tag: "acct", Value: []byte("bar")},
		{Tag: "svce", Value: []byte("foo")},
		{Tag: "zzzz", Value: []byte("ignored")},
	})
	require.NoError(t, err)
	assert.Equal(t, credential.AttributeMap{
		credential.AttrAccount: "bar",
		credential.AttrService: "foo",
	}, got)
}

func TestPrimaryKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{credential.AttrAccount, credential.AttrService},
		schema.PrimaryKeys(credential.ClassGenericPassword))
	assert.Equal(t, schema.PrimaryKeys(credential.ClassCertificate),
		schema.PrimaryKeys(credential.ClassIdentity))
	assert.Contains(t, schema.ModernPrimaryKeys(credential.ClassGenericPassword), credential.AttrSynchronizable)
}
