package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/credroute/pkg/credential"
)

const legacyDateLayout = "20060102150405Z"

var protocolCodes = map[string]string{
	"http":  "http",
	"https": "htps",
	"ftp":   "ftp ",
	"ftps":  "ftps",
	"smtp":  "smtp",
	"imap":  "imap",
	"imaps": "imps",
	"pop3":  "pop3",
	"ssh":   "ssh ",
	"ldap":  "ldap",
	"ldaps": "ldps",
	"smb":   "smb ",
}

var authTypeCodes = map[string]string{
	"default":     "dflt",
	"ntlm":        "ntlm",
	"msn":         "msna",
	"dpa":         "dpaa",
	"rpa":         "rpaa",
	"http_basic":  "http",
	"http_digest": "httd",
	"html_form":   "form",
}

var keyClassCodes = map[credential.KeyClass]uint32{
	credential.KeyClassPublic:    0,
	credential.KeyClassPrivate:   1,
	credential.KeyClassSymmetric: 2,
}

var keyAlgorithmCodes = map[string]uint32{
	"des3": 17,
	"rsa":  42,
	"dsa":  43,
	"ec":   73,
	"aes":  0x80000001,
}

// Encode converts a unified value into the legacy encoding of e.
func Encode(e Entry, v any) ([]byte, error) {
	switch e.Encoding {
	case EncString:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(e, v)
		}
		return []byte(s), nil
	case EncBytes, EncLabel:
		b, ok := credential.AsBytes(v)
		if !ok {
			return nil, invalid(e, v)
		}
		return append([]byte(nil), b...), nil
	case EncUint32:
		n, ok := credential.AsInt(v)
		if !ok || n < 0 || n > math.MaxUint32 {
			return nil, invalid(e, v)
		}
		return uint32Bytes(uint32(n)), nil
	case EncBool:
		b, ok := v.(bool)
		if !ok {
			return nil, invalid(e, v)
		}
		if b {
			return uint32Bytes(1), nil
		}
		return uint32Bytes(0), nil
	case EncDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, invalid(e, v)
		}
		return append([]byte(t.UTC().Format(legacyDateLayout)), 0), nil
	case EncProtocol:
		return fourCC(e, v, protocolCodes)
	case EncAuthType:
		return fourCC(e, v, authTypeCodes)
	case EncKeyClass:
		s, ok := v.(string)
		if kc, isKC := v.(credential.KeyClass); isKC {
			s, ok = string(kc), true
		}
		code, known := keyClassCodes[credential.KeyClass(s)]
		if !ok || !known {
			return nil, invalid(e, v)
		}
		return uint32Bytes(code), nil
	case EncKeyAlgorithm:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(e, v)
		}
		code, known := keyAlgorithmCodes[s]
		if !known {
			return nil, invalid(e, v)
		}
		return uint32Bytes(code), nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding for %s", credential.ErrParameter, e.Key)
}

// Decode converts a legacy attribute value into its unified form.
func Decode(e Entry, b []byte) (any, error) {
	switch e.Encoding {
	case EncString:
		return string(b), nil
	case EncBytes:
		return append([]byte(nil), b...), nil
	case EncLabel:
		if len(b) == 36 {
			if _, err := uuid.Parse(string(b)); err == nil {
				return string(b), nil
			}
		}
		return append([]byte(nil), b...), nil
	case EncUint32:
		n, err := uint32From(e, b)
		return int(n), err
	case EncBool:
		n, err := uint32From(e, b)
		return n != 0, err
	case EncDate:
		t, err := time.Parse(legacyDateLayout, strings.TrimRight(string(b), "\x00"))
		if err != nil {
			return nil, fmt.Errorf("%w: bad date in %s: %v", credential.ErrBackendInternal, e.Tag, err)
		}
		return t, nil
	case EncProtocol:
		return fromFourCC(b, protocolCodes), nil
	case EncAuthType:
		return fromFourCC(b, authTypeCodes), nil
	case EncKeyClass:
		n, err := uint32From(e, b)
		if err != nil {
			return nil, err
		}
		for kc, code := range keyClassCodes {
			if code == n {
				return string(kc), nil
			}
		}
		return nil, fmt.Errorf("%w: unknown key class %d", credential.ErrBackendInternal, n)
	case EncKeyAlgorithm:
		n, err := uint32From(e, b)
		if err != nil {
			return nil, err
		}
		for name, code := range keyAlgorithmCodes {
			if code == n {
				return name, nil
			}
		}
		return int(n), nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding for %s", credential.ErrBackendInternal, e.Tag)
}

// CheckValue type-checks the value of a known unified attribute key. Keys that no
// legacy table knows are accepted as-is, except the few modern attributes with fixed
// types.
func CheckValue(key string, v any) error {
	switch key {
	case credential.AttrSynchronizable:
		if _, ok := v.(bool); ok {
			return nil
		}
		if s, ok := v.(string); ok && s == credential.SynchronizableAny {
			return nil
		}
		return fmt.Errorf("%w: %s must be a bool or %q", credential.ErrInvalidValue, key, credential.SynchronizableAny)
	case credential.AttrAccessGroup, credential.AttrTokenID:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%w: %s must be a string", credential.ErrInvalidValue, key)
		}
		return nil
	}
	enc, ok := knownKeys[key]
	if !ok {
		return nil
	}
	_, err := Encode(Entry{Tag: "?", Key: key, Encoding: enc}, v)
	return err
}

// DecodeAll converts a legacy attribute list into a unified attribute map. Tags the
// table does not know are dropped.
func DecodeAll(rt credential.RecordType, attrs []credential.Attribute) (credential.AttributeMap, error) {
	out := make(credential.AttributeMap, len(attrs))
	for _, a := range attrs {
		e, ok := EntryForTag(rt, a.Tag)
		if !ok {
			continue
		}
		v, err := Decode(e, a.Value)
		if err != nil {
			return nil, err
		}
		out[e.Key] = v
	}
	return out, nil
}

func invalid(e Entry, v any) error {
	return fmt.Errorf("%w: attribute %s cannot hold %T", credential.ErrInvalidValue, e.Key, v)
}

func uint32Bytes(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func uint32From(e Entry, b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: %s expects 4 bytes, got %d", credential.ErrBackendInternal, e.Tag, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func fourCC(e Entry, v any, codes map[string]string) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, invalid(e, v)
	}
	if code, known := codes[s]; known {
		return []byte(code), nil
	}
	if len(s) == 4 {
		return []byte(s), nil
	}
	return nil, invalid(e, v)
}

func fromFourCC(b []byte, codes map[string]string) string {
	code := string(b)
	for name, c := range codes {
		if c == code {
			return name
		}
	}
	return code
}
