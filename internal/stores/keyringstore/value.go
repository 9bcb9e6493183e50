package keyringstore

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/systmms/credroute/pkg/credential"
)

// value is one attribute in its stored form. JSON alone would turn bytes into
// strings and integers into floats, so the kind travels with the value.
type value struct {
	Kind  string    `json:"k"`
	Str   string    `json:"s,omitempty"`
	Bytes []byte    `json:"b,omitempty"`
	Int   int64     `json:"i,omitempty"`
	Bool  bool      `json:"t,omitempty"`
	Time  time.Time `json:"d,omitempty"`
}

const (
	kindString   = "string"
	kindBytes    = "bytes"
	kindInt      = "int"
	kindBool     = "bool"
	kindTime     = "time"
	kindClass    = "class"
	kindKeyClass = "key_class"
)

func encodeValue(key string, v any) (value, error) {
	switch x := v.(type) {
	case credential.ItemClass:
		return value{Kind: kindClass, Str: string(x)}, nil
	case credential.KeyClass:
		return value{Kind: kindKeyClass, Str: string(x)}, nil
	case string:
		return value{Kind: kindString, Str: x}, nil
	case []byte:
		return value{Kind: kindBytes, Bytes: append([]byte(nil), x...)}, nil
	case bool:
		return value{Kind: kindBool, Bool: x}, nil
	case time.Time:
		return value{Kind: kindTime, Time: x.UTC()}, nil
	}
	if n, ok := credential.AsInt(v); ok {
		return value{Kind: kindInt, Int: int64(n)}, nil
	}
	return value{}, fmt.Errorf("%w: attribute %s cannot hold %T", credential.ErrInvalidValue, key, v)
}

func (v value) decode() any {
	switch v.Kind {
	case kindClass:
		return credential.ItemClass(v.Str)
	case kindKeyClass:
		return v.Str
	case kindBytes:
		if v.Bytes == nil {
			return []byte{}
		}
		return append([]byte(nil), v.Bytes...)
	case kindInt:
		return int(v.Int)
	case kindBool:
		return v.Bool
	case kindTime:
		return v.Time
	}
	return v.Str
}

// equal compares a stored attribute with a query value of any accepted type.
func equal(stored, want any) bool {
	if sb, ok := stored.([]byte); ok {
		wb, ok := credential.AsBytes(want)
		return ok && bytes.Equal(sb, wb)
	}
	if wb, ok := want.([]byte); ok {
		sb, ok := credential.AsBytes(stored)
		return ok && bytes.Equal(sb, wb)
	}
	if sn, ok := credential.AsInt(stored); ok {
		wn, ok := credential.AsInt(want)
		return ok && sn == wn
	}
	if st, ok := stored.(time.Time); ok {
		wt, ok := want.(time.Time)
		return ok && st.Equal(wt)
	}
	if kc, ok := want.(credential.KeyClass); ok {
		want = string(kc)
	}
	if c, ok := want.(credential.ItemClass); ok {
		if s, isStr := stored.(string); isStr {
			return s == string(c)
		}
	}
	return reflect.DeepEqual(stored, want)
}
