package query

import (
	"fmt"
	"strings"

	"github.com/systmms/credroute/pkg/credential"
)

// Targets records which backends a request may reach.
type Targets struct {
	Legacy bool
	Modern bool
	// Reasons explains each exclusion, in rule order.
	Reasons []string
}

// Both reports whether both backends are targeted.
func (t Targets) Both() bool {
	return t.Legacy && t.Modern
}

// Only restricts t to the backends present in avail.
func (t Targets) Only(legacy, modern bool) Targets {
	t.Legacy = t.Legacy && legacy
	t.Modern = t.Modern && modern
	return t
}

func (t *Targets) excludeLegacy(reason string) {
	t.Legacy = false
	t.Reasons = append(t.Reasons, "no legacy: "+reason)
}

func (t *Targets) excludeModern(reason string) {
	t.Modern = false
	t.Reasons = append(t.Reasons, "no modern: "+reason)
}

// Categorize decides which backends m targets. The rules are applied in priority
// order and each may exclude one backend:
//
//  1. an explicit backend override
//  2. item references whose kind belongs to one backend; an item list decided
//     here is not treated as a legacy-only control by rule 7
//  3. modern-only attributes (token id, access-control object)
//  4. the reserved token access group
//  5. synchronizable=true
//  6. the shape of a persistent reference
//  7. legacy-only controls (search or item lists, keychain target, ACL, KDF parameters)
//
// Excluding both backends fails with ErrInvalidValue.
func Categorize(m credential.AttributeMap) (Targets, error) {
	t := Targets{Legacy: true, Modern: true}

	if v, ok := m[credential.UseBackend]; ok {
		b, err := parseBackend(v)
		if err != nil {
			return Targets{}, err
		}
		if b == credential.BackendLegacy {
			t.excludeModern("backend override")
		} else {
			t.excludeLegacy("backend override")
		}
	}

	itemListRouted := false
	for _, key := range []string{credential.ValueRef, credential.UseItemList} {
		v, ok := m[key]
		if !ok {
			continue
		}
		handles, tokens, err := referencedHandles(key, v)
		if err != nil {
			return Targets{}, err
		}
		for _, h := range handles {
			switch h.Backend() {
			case credential.BackendLegacy:
				t.excludeModern(fmt.Sprintf("%s holds a %s %s", key, h.Backend(), h.Class()))
			case credential.BackendModern:
				t.excludeLegacy(fmt.Sprintf("%s holds a %s %s", key, h.Backend(), h.Class()))
			case credential.BackendNone:
				continue
			}
			itemListRouted = itemListRouted || key == credential.UseItemList
		}
		for _, tok := range tokens {
			switch {
			case tok.IsModern():
				t.excludeLegacy(key + " holds a modern-shaped persistent reference")
			case tok.IsLegacy():
				t.excludeModern(key + " holds a legacy-shaped persistent reference")
			default:
				continue
			}
			itemListRouted = itemListRouted || key == credential.UseItemList
		}
	}

	for _, key := range credential.ModernOnlyKeys {
		if _, ok := m[key]; ok {
			t.excludeLegacy(key + " is modern-only")
		}
	}

	if g, ok := m[credential.AttrAccessGroup].(string); ok && g == credential.ReservedTokenGroup {
		t.excludeLegacy("reserved token access group")
	}

	if sync, ok := m[credential.AttrSynchronizable].(bool); ok && sync {
		t.excludeLegacy("synchronizable item")
	}

	if v, ok := m[credential.ValuePersistentRef]; ok {
		tok, err := tokenValue(credential.ValuePersistentRef, v)
		if err != nil {
			return Targets{}, err
		}
		switch {
		case tok.IsModern():
			t.excludeLegacy("modern-shaped persistent reference")
		case tok.IsLegacy():
			t.excludeModern("legacy-shaped persistent reference")
		}
	}

	for _, key := range credential.LegacyOnlyKeys {
		if key == credential.UseItemList && itemListRouted {
			continue
		}
		if _, ok := m[key]; ok {
			t.excludeModern(key + " is legacy-only")
		}
	}

	if !t.Legacy && !t.Modern {
		return t, fmt.Errorf("%w: request excludes both backends (%s)",
			credential.ErrInvalidValue, strings.Join(t.Reasons, "; "))
	}
	return t, nil
}

func referencedHandles(key string, v any) ([]credential.Handle, []credential.PersistentRef, error) {
	if key == credential.ValueRef {
		h, err := handleValue(key, v)
		return []credential.Handle{h}, nil, err
	}
	return itemList(key, v)
}
