package fakes

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

// FakeModernStore is an in-memory credential.ModernStore with the modern store's
// query rules: attribute equality, synchronizable items hidden unless asked for,
// and duplicate detection on the class's primary key.
type FakeModernStore struct {
	mu    sync.Mutex
	items []*fakeModernItem

	// FindErr, UpdateErr and DeleteErr are returned by the matching method when set.
	FindErr   error
	UpdateErr error
	DeleteErr error
	// AddErrs are returned by successive Add calls before Add starts storing items.
	AddErrs []error

	// Calls counts invocations per method name.
	Calls map[string]int
	// Queries records every Find query.
	Queries []credential.AttributeMap
}

type fakeModernItem struct {
	attrs credential.AttributeMap
	data  []byte
	token credential.PersistentRef
}

// NewFakeModernStore creates an empty store.
func NewFakeModernStore() *FakeModernStore {
	return &FakeModernStore{Calls: make(map[string]int)}
}

// Seed stores an item without duplicate checks and returns its token. attrs must
// carry the class.
func (f *FakeModernStore) Seed(attrs credential.AttributeMap, data []byte) credential.PersistentRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(attrs, data).token
}

// Len returns the number of stored items.
func (f *FakeModernStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Data returns the payload stored under token.
func (f *FakeModernStore) Data(token credential.PersistentRef) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if bytes.Equal(it.token, token) {
			return it.data, true
		}
	}
	return nil, false
}

func (f *FakeModernStore) insert(attrs credential.AttributeMap, data []byte) *fakeModernItem {
	class := itemClass(attrs[credential.AttrClass])
	it := &fakeModernItem{
		attrs: schema.ModernPortable(attrs).Without(credential.AttrClass),
		data:  append([]byte(nil), data...),
		token: credential.NewModernPersistentRef(class, uuid.New()),
	}
	it.attrs[credential.AttrClass] = class
	if _, ok := it.attrs[credential.AttrSynchronizable]; !ok {
		it.attrs[credential.AttrSynchronizable] = false
	}
	f.items = append(f.items, it)
	return it
}

func (f *FakeModernStore) count(method string) {
	if f.Calls == nil {
		f.Calls = make(map[string]int)
	}
	f.Calls[method]++
}

// Find implements credential.ModernStore.
func (f *FakeModernStore) Find(_ context.Context, query credential.AttributeMap) ([]credential.AttributeMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Find")
	f.Queries = append(f.Queries, query.Clone())
	if f.FindErr != nil {
		return nil, f.FindErr
	}

	limit := 1
	switch l := query[credential.MatchLimit].(type) {
	case int:
		limit = l
	case string:
		if l == credential.MatchLimitAll {
			limit = -1
		}
	}
	wantData, _ := query[credential.ReturnData].(bool)

	var out []credential.AttributeMap
	for _, it := range f.matching(query) {
		if limit >= 0 && len(out) == limit {
			break
		}
		rec := it.attrs.Clone()
		rec[credential.ValuePersistentRef] = append(credential.PersistentRef(nil), it.token...)
		if wantData {
			rec[credential.ValueData] = append([]byte(nil), it.data...)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("fake modern find: %w", credential.ErrItemNotFound)
	}
	return out, nil
}

// Add implements credential.ModernStore.
func (f *FakeModernStore) Add(_ context.Context, attrs credential.AttributeMap) (credential.AttributeMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Add")
	if len(f.AddErrs) > 0 {
		err := f.AddErrs[0]
		f.AddErrs = f.AddErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	class := itemClass(attrs[credential.AttrClass])
	for _, it := range f.items {
		if itemClass(it.attrs[credential.AttrClass]) != class {
			continue
		}
		same := true
		for _, key := range schema.ModernPrimaryKeys(class) {
			want, has := attrs[key]
			if key == credential.AttrSynchronizable && !has {
				want = false
			}
			if !valuesEqual(it.attrs[key], want) {
				same = false
				break
			}
		}
		if same {
			return nil, fmt.Errorf("fake modern add: %w", credential.ErrDuplicateItem)
		}
	}

	data, _ := credential.AsBytes(attrs[credential.ValueData])
	it := f.insert(attrs, data)
	rec := it.attrs.Clone()
	rec[credential.ValuePersistentRef] = append(credential.PersistentRef(nil), it.token...)
	return rec, nil
}

// Update implements credential.ModernStore.
func (f *FakeModernStore) Update(_ context.Context, query, changes credential.AttributeMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Update")
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	hits := f.matching(query)
	if len(hits) == 0 {
		return fmt.Errorf("fake modern update: %w", credential.ErrItemNotFound)
	}
	for _, it := range hits {
		for k, v := range changes {
			if k == credential.ValueData {
				it.data, _ = credential.AsBytes(v)
				continue
			}
			it.attrs[k] = v
		}
	}
	return nil
}

// Delete implements credential.ModernStore.
func (f *FakeModernStore) Delete(_ context.Context, query credential.AttributeMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("Delete")
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	hits := f.matching(query)
	if len(hits) == 0 {
		return fmt.Errorf("fake modern delete: %w", credential.ErrItemNotFound)
	}
	kept := f.items[:0]
	for _, it := range f.items {
		doomed := false
		for _, h := range hits {
			if h == it {
				doomed = true
			}
		}
		if !doomed {
			kept = append(kept, it)
		}
	}
	f.items = kept
	return nil
}

func (f *FakeModernStore) matching(query credential.AttributeMap) []*fakeModernItem {
	var out []*fakeModernItem
	for _, it := range f.items {
		if matchesQuery(it, query) {
			out = append(out, it)
		}
	}
	return out
}

func matchesQuery(it *fakeModernItem, query credential.AttributeMap) bool {
	if tok, ok := query[credential.ValuePersistentRef].(credential.PersistentRef); ok && !bytes.Equal(tok, it.token) {
		return false
	}
	if c, ok := query[credential.AttrClass]; ok && itemClass(c) != itemClass(it.attrs[credential.AttrClass]) {
		return false
	}
	switch s := query[credential.AttrSynchronizable].(type) {
	case nil:
		if synced, _ := it.attrs[credential.AttrSynchronizable].(bool); synced {
			return false
		}
	case bool:
		if synced, _ := it.attrs[credential.AttrSynchronizable].(bool); synced != s {
			return false
		}
	}
	for k, v := range query {
		if credential.ControlKeys[k] || k == credential.AttrSynchronizable {
			continue
		}
		if !valuesEqual(it.attrs[k], v) {
			return false
		}
	}
	return true
}

func itemClass(v any) credential.ItemClass {
	switch c := v.(type) {
	case credential.ItemClass:
		return c
	case string:
		return credential.ItemClass(c)
	}
	return ""
}

func valuesEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := credential.AsBytes(b)
		return ok && bytes.Equal(ab, bb)
	}
	if bb, ok := b.([]byte); ok {
		ab, ok := credential.AsBytes(a)
		return ok && bytes.Equal(ab, bb)
	}
	if an, ok := credential.AsInt(a); ok {
		bn, ok := credential.AsInt(b)
		return ok && an == bn
	}
	return reflect.DeepEqual(a, b)
}

var _ credential.ModernStore = (*FakeModernStore)(nil)
