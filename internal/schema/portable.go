package schema

import "github.com/systmms/credroute/pkg/credential"

// LegacyPortable keeps the attributes that records of type rt can store.
func LegacyPortable(rt credential.RecordType, attrs credential.AttributeMap) credential.AttributeMap {
	out := credential.AttributeMap{}
	for k, v := range attrs {
		if _, ok := EntryForKey(rt, k); ok {
			out[k] = v
		}
	}
	return out
}

// ModernPortable drops control keys and everything only the legacy store honours.
// The class selector is kept.
func ModernPortable(attrs credential.AttributeMap) credential.AttributeMap {
	out := credential.AttributeMap{}
	for k, v := range attrs {
		if credential.ControlKeys[k] && k != credential.AttrClass {
			continue
		}
		out[k] = v
	}
	return out
}
