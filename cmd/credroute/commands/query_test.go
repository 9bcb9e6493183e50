package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credroute/pkg/credential"
)

func TestParseAttr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pair    string
		key     string
		want    any
		wantErr bool
	}{
		{pair: "service=mail", key: "service", want: "mail"},
		{pair: "label=a=b", key: "label", want: "a=b"},
		{pair: "service=", key: "service", want: ""},
		{pair: "creator:int=42", key: "creator", want: 42},
		{pair: "synchronizable:bool=true", key: "synchronizable", want: true},
		{pair: "subject_key_id:hex=beef", key: "subject_key_id", want: []byte{0xbe, 0xef}},
		{pair: "generic:base64=aGk=", key: "generic", want: []byte("hi")},
		{pair: "created:time=2024-01-02T03:04:05Z", key: "created", want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{pair: "account:string=007", key: "account", want: "007"},
		{pair: "noequals", wantErr: true},
		{pair: "=value", wantErr: true},
		{pair: "x:float=1.5", wantErr: true},
		{pair: "x:int=one", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.pair, func(t *testing.T) {
			t.Parallel()

			key, v, err := parseAttr(tt.pair)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestQueryFlagsAttributes(t *testing.T) {
	t.Parallel()

	f := queryFlags{
		class:   "internet_password",
		attrs:   []string{"server=example.com"},
		limit:   "all",
		returns: []string{"data", "attributes"},
		backend: "legacy",
		authUI:  "fail",
	}

	m, err := f.attributes()
	require.NoError(t, err)
	assert.Equal(t, credential.AttributeMap{
		credential.AttrClass:        credential.ClassInternetPassword,
		"server":                    "example.com",
		credential.MatchLimit:       credential.MatchLimitAll,
		credential.ReturnData:       true,
		credential.ReturnAttributes: true,
		credential.UseBackend:       credential.BackendLegacy,
		credential.UseAuthUI:        credential.AuthUIFail,
	}, m)

	f = queryFlags{limit: "3"}
	m, err = f.attributes()
	require.NoError(t, err)
	assert.Equal(t, 3, m[credential.MatchLimit])
}
