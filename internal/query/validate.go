package query

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

// Validate turns a raw caller map into a Plan for op. Only present control keys are
// checked; absence is never an error. The caller's map is not modified.
func Validate(m credential.AttributeMap, op Op) (*Plan, error) {
	return validate(m, op, true)
}

func validate(m credential.AttributeMap, op Op, requireClass bool) (*Plan, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil attribute map", credential.ErrParameter)
	}

	p := &Plan{
		Op:         op,
		Limit:      1,
		Attributes: credential.AttributeMap{},
	}
	returnGiven := false

	for key, v := range m {
		var err error
		switch key {
		case credential.AttrClass:
			p.Class, err = parseClass(v)
		case credential.ReturnRef:
			p.Return.Ref, err = boolValue(key, v)
			returnGiven = true
		case credential.ReturnPersistentRef:
			p.Return.PersistentRef, err = boolValue(key, v)
			returnGiven = true
		case credential.ReturnAttributes:
			p.Return.Attributes, err = boolValue(key, v)
			returnGiven = true
		case credential.ReturnData:
			p.Return.Data, err = boolValue(key, v)
			returnGiven = true
		case credential.MatchLimit:
			p.Limit, err = parseLimit(v)
		case credential.MatchSearchList:
			p.SearchList, err = stringList(key, v)
		case credential.UseItemList:
			var items []credential.Handle
			var tokens []credential.PersistentRef
			items, tokens, err = itemList(key, v)
			p.UseItems = append(p.UseItems, items...)
			p.UseTokens = append(p.UseTokens, tokens...)
		case credential.MatchItemList:
			p.MatchItems, p.MatchTokens, err = itemList(key, v)
		case credential.ValueRef:
			var h credential.Handle
			h, err = handleValue(key, v)
			if h != nil {
				p.UseItems = append(p.UseItems, h)
			}
		case credential.ValuePersistentRef:
			var tok credential.PersistentRef
			tok, err = tokenValue(key, v)
			if tok != nil {
				p.UseTokens = append(p.UseTokens, tok)
			}
		case credential.ValueData:
			if op == OpAdd || op == OpUpdate {
				p.Payload, err = payloadValue(v)
				p.HasPayload = err == nil
			}
		case credential.MatchSubjectContains:
			err = p.addSubject(key, SubjectContains, v)
		case credential.MatchSubjectStartsWith:
			err = p.addSubject(key, SubjectStartsWith, v)
		case credential.MatchSubjectEndsWith:
			err = p.addSubject(key, SubjectEndsWith, v)
		case credential.MatchSubjectWholeString:
			err = p.addSubject(key, SubjectWholeString, v)
		case credential.MatchCaseInsensitive:
			p.Filters.CaseInsensitive, err = boolValue(key, v)
		case credential.MatchDiacriticInsensitive:
			p.Filters.DiacriticInsensitive, err = boolValue(key, v)
		case credential.MatchWidthInsensitive:
			p.Filters.WidthInsensitive, err = boolValue(key, v)
		case credential.MatchEmailAddressIfPresent:
			p.Filters.Email, err = stringValue(key, v)
		case credential.MatchValidOnDate:
			if t, ok := v.(time.Time); ok {
				p.Filters.ValidOn = &t
			} else {
				err = typeError(key, v, "time.Time")
			}
		case credential.MatchTrustedOnly:
			p.Filters.TrustedOnly, err = boolValue(key, v)
		case credential.MatchPolicy:
			pol, ok := v.(credential.Policy)
			if !ok {
				err = typeError(key, v, "credential.Policy")
			}
			p.Filters.Policy = pol
		case credential.UseBackend:
			_, err = parseBackend(v)
		case credential.UseKeychain:
			p.Keychain, err = stringValue(key, v)
		case credential.UseAuthUI:
			p.AuthUI, err = parseAuthUI(v)
		case credential.AttrAccess:
			acl, ok := v.(*credential.LegacyAccess)
			if !ok {
				err = typeError(key, v, "*credential.LegacyAccess")
			}
			p.LegacyAccess = acl
		case credential.AttrAccessControl:
			ac, ok := v.(*credential.AccessControl)
			if !ok {
				err = typeError(key, v, "*credential.AccessControl")
			}
			p.AccessControl = ac
		case credential.AttrKDFParams:
			kdf, ok := v.(*credential.KDFParams)
			if !ok {
				err = typeError(key, v, "*credential.KDFParams")
			}
			p.KDF = kdf
		default:
			err = p.addAttribute(key, v)
		}
		if err != nil {
			return nil, err
		}
	}

	if requireClass {
		if err := p.resolveClass(); err != nil {
			return nil, err
		}
	}

	if !returnGiven && op == OpFind {
		p.Return.Ref = true
	}
	if op == OpFind && p.Limit == MatchAll && p.Return.Data && p.Class.IsPassword() {
		return nil, fmt.Errorf("%w: class %s", credential.ErrReturnDataUnsupported, p.Class)
	}

	if op == OpFind && (p.Class == credential.ClassCertificate || p.Class == credential.ClassIdentity) {
		issuer, hasIssuer := p.Attributes[credential.AttrIssuer].([]byte)
		serial, hasSerial := p.Attributes[credential.AttrSerialNumber].([]byte)
		if hasIssuer && hasSerial {
			p.Filters.Issuer, p.Filters.Serial = issuer, serial
			delete(p.Attributes, credential.AttrIssuer)
			delete(p.Attributes, credential.AttrSerialNumber)
		}
	}

	return p, nil
}

// ValidateChanges checks an update's change map. Changes may carry item attributes,
// a new payload and access objects, but no other control keys.
func ValidateChanges(changes credential.AttributeMap) (*Plan, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: empty change set", credential.ErrParameter)
	}
	for key := range changes {
		switch key {
		case credential.ValueData, credential.AttrAccess, credential.AttrAccessControl:
			continue
		}
		if credential.ControlKeys[key] {
			return nil, fmt.Errorf("%w: %s cannot be changed", credential.ErrParameter, key)
		}
	}
	return validate(changes, OpUpdate, false)
}

func (p *Plan) addSubject(key string, mode SubjectMode, v any) error {
	s, err := stringValue(key, v)
	if err != nil {
		return err
	}
	p.Filters.Subject = append(p.Filters.Subject, SubjectMatch{Mode: mode, Value: s})
	return nil
}

func (p *Plan) addAttribute(key string, v any) error {
	if err := schema.CheckValue(key, v); err != nil {
		return err
	}
	switch x := v.(type) {
	case credential.KeyClass:
		v = string(x)
	case []byte:
		v = append([]byte(nil), x...)
	default:
		if n, ok := credential.AsInt(v); ok {
			v = n
		}
	}
	p.Attributes[key] = v
	if key == credential.AttrKeyClass {
		kc, err := credential.ParseKeyClass(v.(string))
		if err != nil {
			return err
		}
		p.KeyClass = kc
	}
	return nil
}

// resolveClass infers the class from the explicit item list when none was given.
func (p *Plan) resolveClass() error {
	if p.Class != "" {
		return nil
	}
	var inferred credential.ItemClass
	consider := func(c credential.ItemClass) bool {
		if c == "" || (inferred != "" && c != inferred) {
			return false
		}
		inferred = c
		return true
	}
	for _, h := range p.UseItems {
		if !consider(h.Class()) {
			return fmt.Errorf("%w: item list mixes classes", credential.ErrItemClassMissing)
		}
	}
	for _, tok := range p.UseTokens {
		c, ok := tok.Class()
		if !ok || !consider(c) {
			return fmt.Errorf("%w: cannot infer class from persistent reference", credential.ErrItemClassMissing)
		}
	}
	if inferred == "" {
		return fmt.Errorf("%w: no class given and none inferable", credential.ErrItemClassMissing)
	}
	p.Class = inferred
	return nil
}

func parseClass(v any) (credential.ItemClass, error) {
	switch c := v.(type) {
	case credential.ItemClass:
		return credential.ParseItemClass(string(c))
	case string:
		return credential.ParseItemClass(c)
	}
	return "", typeError(credential.AttrClass, v, "credential.ItemClass")
}

func parseLimit(v any) (int, error) {
	if s, ok := v.(string); ok {
		switch s {
		case credential.MatchLimitOne:
			return 1, nil
		case credential.MatchLimitAll:
			return MatchAll, nil
		}
		return 0, fmt.Errorf("%w: %s must be %q, %q or a positive integer", credential.ErrInvalidValue,
			credential.MatchLimit, credential.MatchLimitOne, credential.MatchLimitAll)
	}
	n, ok := credential.AsInt(v)
	if !ok || n < 1 {
		return 0, fmt.Errorf("%w: %s must be >= 1", credential.ErrInvalidValue, credential.MatchLimit)
	}
	return n, nil
}

func parseBackend(v any) (credential.Backend, error) {
	var s string
	switch b := v.(type) {
	case credential.Backend:
		s = string(b)
	case string:
		s = b
	default:
		return "", typeError(credential.UseBackend, v, "credential.Backend")
	}
	switch credential.Backend(s) {
	case credential.BackendLegacy, credential.BackendModern:
		return credential.Backend(s), nil
	}
	return "", fmt.Errorf("%w: unknown backend %q", credential.ErrInvalidValue, s)
}

func parseAuthUI(v any) (credential.AuthUI, error) {
	var s string
	switch a := v.(type) {
	case credential.AuthUI:
		s = string(a)
	case string:
		s = a
	default:
		return "", typeError(credential.UseAuthUI, v, "credential.AuthUI")
	}
	switch credential.AuthUI(s) {
	case credential.AuthUIAllow, credential.AuthUIFail, credential.AuthUISkip:
		return credential.AuthUI(s), nil
	}
	return "", fmt.Errorf("%w: unknown auth UI policy %q", credential.ErrInvalidValue, s)
}

// handleValue accepts a Handle, or a parsed certificate as a floating reference.
func handleValue(key string, v any) (credential.Handle, error) {
	switch h := v.(type) {
	case credential.Handle:
		return h, nil
	case *x509.Certificate:
		if h == nil {
			return nil, typeError(key, v, "credential.Handle")
		}
		return credential.NewFloatingCertificate(h), nil
	}
	return nil, typeError(key, v, "credential.Handle")
}

func tokenValue(key string, v any) (credential.PersistentRef, error) {
	switch t := v.(type) {
	case credential.PersistentRef:
		if len(t) == 0 {
			return nil, fmt.Errorf("%w: empty %s", credential.ErrInvalidValue, key)
		}
		return append(credential.PersistentRef(nil), t...), nil
	case []byte:
		return tokenValue(key, credential.PersistentRef(t))
	}
	return nil, typeError(key, v, "credential.PersistentRef")
}

func itemList(key string, v any) ([]credential.Handle, []credential.PersistentRef, error) {
	var elems []any
	switch l := v.(type) {
	case []credential.Handle:
		for _, h := range l {
			elems = append(elems, h)
		}
	case []credential.PersistentRef:
		for _, t := range l {
			elems = append(elems, t)
		}
	case []any:
		elems = l
	default:
		return nil, nil, typeError(key, v, "list of handles or persistent references")
	}

	var handles []credential.Handle
	var tokens []credential.PersistentRef
	for _, e := range elems {
		switch e.(type) {
		case credential.PersistentRef, []byte:
			tok, err := tokenValue(key, e)
			if err != nil {
				return nil, nil, err
			}
			tokens = append(tokens, tok)
		default:
			h, err := handleValue(key, e)
			if err != nil {
				return nil, nil, err
			}
			handles = append(handles, h)
		}
	}
	return handles, tokens, nil
}

// payloadValue accepts bytes or a string; strings are UTF-8 encoded with any
// trailing NUL stripped.
func payloadValue(v any) ([]byte, error) {
	switch d := v.(type) {
	case []byte:
		return append([]byte(nil), d...), nil
	case string:
		return bytes.TrimRight([]byte(d), "\x00"), nil
	}
	return nil, typeError(credential.ValueData, v, "[]byte or string")
}

func boolValue(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, typeError(key, v, "bool")
	}
	return b, nil
}

func stringValue(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", typeError(key, v, "string")
	}
	return s, nil
}

func stringList(key string, v any) ([]string, error) {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...), nil
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			s, ok := e.(string)
			if !ok {
				return nil, typeError(key, v, "[]string")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, typeError(key, v, "[]string")
}

func typeError(key string, v any, want string) error {
	return fmt.Errorf("%w: %s must be %s, got %T", credential.ErrInvalidValue, key, want, v)
}
