// Package legacy translates plans into the legacy store's native attribute lists
// and walks its searches.
package legacy

import (
	"fmt"

	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

// Default certificate type and encoding stored with new certificate records.
const (
	certTypeX509v3  = 3
	certEncodingDER = 3
)

// BuildFilter translates attrs into a native search filter for records of type rt.
// Keys the record cannot store are skipped. Key records always filter on the key
// class implied by rt.
func BuildFilter(rt credential.RecordType, attrs credential.AttributeMap) ([]credential.Attribute, error) {
	out, err := encode(rt, attrs)
	if err != nil {
		return nil, err
	}
	return withKeyClass(rt, out)
}

// BuildContent translates attrs into the attribute list of a new or modified record
// of type rt. A key class contradicting rt is rejected, and certificates get the
// default type and encoding when none is given.
func BuildContent(rt credential.RecordType, attrs credential.AttributeMap) ([]credential.Attribute, error) {
	if v, ok := attrs[credential.AttrKeyClass]; ok && rt.KeyClass() != "" {
		if kc, _ := v.(string); credential.KeyClass(kc) != rt.KeyClass() {
			return nil, fmt.Errorf("%w: key class %v cannot be stored as %s", credential.ErrInvalidValue, v, rt)
		}
	}
	if rt == credential.RecordCertificate {
		withDefaults := attrs.Clone()
		if _, ok := withDefaults[credential.AttrCertType]; !ok {
			withDefaults[credential.AttrCertType] = certTypeX509v3
		}
		if _, ok := withDefaults[credential.AttrCertEncoding]; !ok {
			withDefaults[credential.AttrCertEncoding] = certEncodingDER
		}
		attrs = withDefaults
	}
	out, err := encode(rt, attrs)
	if err != nil {
		return nil, err
	}
	return withKeyClass(rt, out)
}

// encode walks the record table so the output order is stable.
func encode(rt credential.RecordType, attrs credential.AttributeMap) ([]credential.Attribute, error) {
	entries := schema.Entries(rt)
	if entries == nil {
		return nil, fmt.Errorf("%w: unknown record type %q", credential.ErrParameter, rt)
	}
	var out []credential.Attribute
	for _, e := range entries {
		v, ok := attrs[e.Key]
		if !ok || e.Key == credential.AttrKeyClass {
			continue
		}
		b, err := schema.Encode(e, v)
		if err != nil {
			return nil, err
		}
		out = append(out, credential.Attribute{Tag: e.Tag, Value: b})
	}
	return out, nil
}

func withKeyClass(rt credential.RecordType, attrs []credential.Attribute) ([]credential.Attribute, error) {
	kc := rt.KeyClass()
	if kc == "" {
		return attrs, nil
	}
	e, _ := schema.EntryForKey(rt, credential.AttrKeyClass)
	b, err := schema.Encode(e, kc)
	if err != nil {
		return nil, err
	}
	return append([]credential.Attribute{{Tag: e.Tag, Value: b}}, attrs...), nil
}
