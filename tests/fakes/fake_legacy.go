package fakes

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

// FakeLegacyStore is an in-memory credential.LegacyStore. Searches match attributes
// by exact byte equality and return items in insertion order.
type FakeLegacyStore struct {
	mu    sync.Mutex
	items map[credential.LegacyItemRef]*fakeLegacyItem
	order []credential.LegacyItemRef
	next  int

	// DefaultKeychain receives items created without an explicit keychain.
	DefaultKeychain string

	// SearchErr, CreateErr, ModifyErr and DeleteErr are returned by the matching
	// method when set.
	SearchErr error
	CreateErr error
	ModifyErr error
	DeleteErr error

	// Searches records the record type of every Search call.
	Searches []credential.RecordType
	// Deleted records every deleted item.
	Deleted []credential.LegacyItemRef
}

type fakeLegacyItem struct {
	attrs  []credential.Attribute
	data   []byte
	access *credential.LegacyAccess
}

// NewFakeLegacyStore creates an empty store whose default keychain is "login".
func NewFakeLegacyStore() *FakeLegacyStore {
	return &FakeLegacyStore{
		items:           make(map[credential.LegacyItemRef]*fakeLegacyItem),
		DefaultKeychain: "login",
	}
}

// Seed stores an item given in unified attributes, bypassing duplicate checks.
func (f *FakeLegacyStore) Seed(rt credential.RecordType, attrs credential.AttributeMap, data []byte) credential.LegacyItemRef {
	var native []credential.Attribute
	for _, e := range schema.Entries(rt) {
		v, ok := attrs[e.Key]
		if !ok || e.Key == credential.AttrKeyClass {
			continue
		}
		b, err := schema.Encode(e, v)
		if err != nil {
			panic(fmt.Sprintf("fakes: seed %s: %v", e.Key, err))
		}
		native = append(native, credential.Attribute{Tag: e.Tag, Value: b})
	}
	if kc := rt.KeyClass(); kc != "" {
		e, _ := schema.EntryForKey(rt, credential.AttrKeyClass)
		b, _ := schema.Encode(e, kc)
		native = append(native, credential.Attribute{Tag: e.Tag, Value: b})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(rt, f.DefaultKeychain, native, data, nil)
}

// Len returns the number of stored items.
func (f *FakeLegacyStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Data returns the payload of ref.
func (f *FakeLegacyStore) Data(ref credential.LegacyItemRef) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[ref]
	if !ok {
		return nil, false
	}
	return it.data, true
}

// Access returns the access list stored with ref.
func (f *FakeLegacyStore) Access(ref credential.LegacyItemRef) *credential.LegacyAccess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it, ok := f.items[ref]; ok {
		return it.access
	}
	return nil
}

func (f *FakeLegacyStore) insert(rt credential.RecordType, keychain string, attrs []credential.Attribute,
	data []byte, access *credential.LegacyAccess) credential.LegacyItemRef {
	if f.items == nil {
		f.items = make(map[credential.LegacyItemRef]*fakeLegacyItem)
	}
	f.next++
	ref := credential.LegacyItemRef{Keychain: keychain, Record: rt, ID: strconv.Itoa(f.next)}
	f.items[ref] = &fakeLegacyItem{
		attrs:  cloneAttrs(attrs),
		data:   append([]byte(nil), data...),
		access: access,
	}
	f.order = append(f.order, ref)
	return ref
}

// Search implements credential.LegacyStore.
func (f *FakeLegacyStore) Search(_ context.Context, rt credential.RecordType, filter []credential.Attribute, keychains []string) (credential.LegacySearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches = append(f.Searches, rt)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}

	var hits []credential.LegacyItemRef
	for _, ref := range f.order {
		it, ok := f.items[ref]
		if !ok || ref.Record != rt || !inKeychains(ref.Keychain, keychains) {
			continue
		}
		if matchesAll(it.attrs, filter) {
			hits = append(hits, ref)
		}
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("fake legacy search: %w", credential.ErrItemNotFound)
	}
	return &fakeLegacySearch{refs: hits}, nil
}

// CopyAttributesAndData implements credential.LegacyStore.
func (f *FakeLegacyStore) CopyAttributesAndData(_ context.Context, ref credential.LegacyItemRef, tags []credential.Tag, wantData bool) ([]credential.Attribute, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[ref]
	if !ok {
		return nil, nil, fmt.Errorf("fake legacy item %s: %w", ref, credential.ErrItemNotFound)
	}
	var attrs []credential.Attribute
	if len(tags) == 0 {
		attrs = cloneAttrs(it.attrs)
	} else {
		for _, t := range tags {
			if a, ok := lookup(it.attrs, t); ok {
				attrs = append(attrs, credential.Attribute{Tag: t, Value: append([]byte(nil), a...)})
			}
		}
	}
	var data []byte
	if wantData {
		data = append([]byte(nil), it.data...)
	}
	return attrs, data, nil
}

// CreateFromContent implements credential.LegacyStore.
func (f *FakeLegacyStore) CreateFromContent(_ context.Context, rt credential.RecordType, attrs []credential.Attribute, data []byte, keychain string, access *credential.LegacyAccess) (credential.LegacyItemRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return credential.LegacyItemRef{}, f.CreateErr
	}
	if keychain == "" {
		keychain = f.DefaultKeychain
	}

	var pk []credential.Tag
	for _, key := range schema.PrimaryKeys(rt.ItemClass()) {
		if e, ok := schema.EntryForKey(rt, key); ok {
			pk = append(pk, e.Tag)
		}
	}
	for _, ref := range f.order {
		it, ok := f.items[ref]
		if !ok || ref.Record != rt || ref.Keychain != keychain {
			continue
		}
		if samePrimaryKey(it.attrs, attrs, pk) {
			return credential.LegacyItemRef{}, fmt.Errorf("fake legacy create: %w", credential.ErrDuplicateItem)
		}
	}
	return f.insert(rt, keychain, attrs, data, access), nil
}

// ModifyContent implements credential.LegacyStore.
func (f *FakeLegacyStore) ModifyContent(_ context.Context, ref credential.LegacyItemRef, attrs []credential.Attribute, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ModifyErr != nil {
		return f.ModifyErr
	}
	it, ok := f.items[ref]
	if !ok {
		return fmt.Errorf("fake legacy item %s: %w", ref, credential.ErrItemNotFound)
	}
	for _, a := range attrs {
		replaced := false
		for i := range it.attrs {
			if it.attrs[i].Tag == a.Tag {
				it.attrs[i].Value = append([]byte(nil), a.Value...)
				replaced = true
			}
		}
		if !replaced {
			it.attrs = append(it.attrs, credential.Attribute{Tag: a.Tag, Value: append([]byte(nil), a.Value...)})
		}
	}
	if data != nil {
		it.data = append([]byte(nil), data...)
	}
	return nil
}

// Delete implements credential.LegacyStore.
func (f *FakeLegacyStore) Delete(_ context.Context, ref credential.LegacyItemRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.items[ref]; !ok {
		return fmt.Errorf("fake legacy item %s: %w", ref, credential.ErrItemNotFound)
	}
	delete(f.items, ref)
	f.Deleted = append(f.Deleted, ref)
	return nil
}

// CopyPersistentReference implements credential.LegacyStore.
func (f *FakeLegacyStore) CopyPersistentReference(_ context.Context, ref credential.LegacyItemRef) (credential.PersistentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[ref]; !ok {
		return nil, fmt.Errorf("fake legacy item %s: %w", ref, credential.ErrItemNotFound)
	}
	return credential.NewLegacyPersistentRef(ref), nil
}

// ResolvePersistentReference implements credential.LegacyStore.
func (f *FakeLegacyStore) ResolvePersistentReference(_ context.Context, token credential.PersistentRef) (credential.LegacyItemRef, error) {
	ref, err := credential.ParseLegacyPersistentRef(token)
	if err != nil {
		return ref, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[ref]; !ok {
		return ref, fmt.Errorf("fake legacy item %s: %w", ref, credential.ErrItemNotFound)
	}
	return ref, nil
}

type fakeLegacySearch struct {
	refs []credential.LegacyItemRef
}

func (s *fakeLegacySearch) Next(context.Context) (credential.LegacyItemRef, error) {
	if len(s.refs) == 0 {
		return credential.LegacyItemRef{}, fmt.Errorf("fake legacy search: %w", credential.ErrItemNotFound)
	}
	ref := s.refs[0]
	s.refs = s.refs[1:]
	return ref, nil
}

func inKeychains(keychain string, keychains []string) bool {
	if len(keychains) == 0 {
		return true
	}
	for _, k := range keychains {
		if k == keychain {
			return true
		}
	}
	return false
}

func matchesAll(have, filter []credential.Attribute) bool {
	for _, want := range filter {
		v, ok := lookup(have, want.Tag)
		if !ok || !bytes.Equal(v, want.Value) {
			return false
		}
	}
	return true
}

func samePrimaryKey(a, b []credential.Attribute, tags []credential.Tag) bool {
	for _, t := range tags {
		av, _ := lookup(a, t)
		bv, _ := lookup(b, t)
		if !bytes.Equal(av, bv) {
			return false
		}
	}
	return true
}

func lookup(attrs []credential.Attribute, tag credential.Tag) ([]byte, bool) {
	for _, a := range attrs {
		if a.Tag == tag {
			return a.Value, true
		}
	}
	return nil, false
}

func cloneAttrs(attrs []credential.Attribute) []credential.Attribute {
	out := make([]credential.Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = credential.Attribute{Tag: a.Tag, Value: append([]byte(nil), a.Value...)}
	}
	return out
}

var _ credential.LegacyStore = (*FakeLegacyStore)(nil)
