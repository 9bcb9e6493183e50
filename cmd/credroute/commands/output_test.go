package commands

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credroute/pkg/credential"
)

func TestWriteResultText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  credential.Result
		want string
	}{
		{"raw data", []byte("s3cr3t"), "s3cr3t"},
		{"attributes", credential.AttributeMap{"service": "mail", credential.AttrClass: credential.ClassGenericPassword}, "class: generic_password\nservice: mail\n"},
		{"collection", credential.Collection{
			credential.AttributeMap{"account": "a"},
			credential.AttributeMap{"account": "b"},
		}, "account: a\n\naccount: b\n"},
		{"binary value", credential.AttributeMap{"generic": []byte{0xff, 0x00}}, "generic: hex:ff00\n"},
		{"nothing", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			require.NoError(t, writeResult(&out, tt.res, false))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestWriteResultJSON(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	ref := credential.NewModernPersistentRef(credential.ClassGenericPassword, id)
	res := credential.AttributeMap{
		credential.ValuePersistentRef: ref,
		credential.ValueRef:           credential.ModernItemHandle{ItemClass: credential.ClassGenericPassword, Token: ref},
	}

	var out bytes.Buffer
	require.NoError(t, writeResult(&out, res, true))

	assert.Contains(t, out.String(), `"kind": "`)
	assert.Contains(t, out.String(), `"backend": "modern"`)
	assert.Contains(t, out.String(), `"value_persistent_ref": "`)
}
