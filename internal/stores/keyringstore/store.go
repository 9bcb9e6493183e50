// Package keyringstore is a modern credential store on the operating system's
// secret service, reached through go-keyring. Every item is one keyring secret
// holding a JSON envelope of its attributes and payload; an index secret lists the
// items of a namespace.
package keyringstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"

	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

// DefaultService is the keyring service name items are stored under.
const DefaultService = "credroute"

const indexUser = "!index"

// Store implements credential.ModernStore. It serializes its own index updates;
// the keyring daemon serializes everything else.
type Store struct {
	mu      sync.Mutex
	service string
}

// New returns a store keeping its items under service, DefaultService when empty.
func New(service string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service}
}

type envelope struct {
	Class         credential.ItemClass      `json:"class"`
	Attrs         map[string]value          `json:"attrs"`
	Data          []byte                    `json:"data,omitempty"`
	AccessControl *credential.AccessControl `json:"access_control,omitempty"`
}

type item struct {
	id  uuid.UUID
	env *envelope
}

func (it *item) token() credential.PersistentRef {
	return credential.NewModernPersistentRef(it.env.Class, it.id)
}

// mapError translates keyring failures. A missing secret is ErrItemNotFound;
// anything else means the secret service refused or could not be reached, which
// an unlock may cure.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return fmt.Errorf("keyring %s: %w", op, credential.ErrItemNotFound)
	case errors.Is(err, keyring.ErrSetDataTooBig):
		return fmt.Errorf("keyring %s: %w: %v", op, credential.ErrInvalidValue, err)
	}
	return fmt.Errorf("keyring %s: %w: %v", op, credential.ErrInteractionNotAllowed, err)
}

func itemUser(id uuid.UUID) string {
	return "item:" + id.String()
}

func (s *Store) loadIndex() ([]uuid.UUID, error) {
	raw, err := keyring.Get(s.service, indexUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("read index", err)
	}
	var ids []uuid.UUID
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("%w: corrupt keyring index: %v", credential.ErrBackendInternal, err)
	}
	return ids, nil
}

func (s *Store) saveIndex(ids []uuid.UUID) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("%w: %v", credential.ErrBackendInternal, err)
	}
	return mapError("write index", keyring.Set(s.service, indexUser, string(b)))
}

func (s *Store) loadItem(id uuid.UUID) (*item, error) {
	raw, err := keyring.Get(s.service, itemUser(id))
	if err != nil {
		return nil, mapError("read item", err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: corrupt keyring item %s: %v", credential.ErrBackendInternal, id, err)
	}
	return &item{id: id, env: &env}, nil
}

func (s *Store) saveItem(it *item) error {
	b, err := json.Marshal(it.env)
	if err != nil {
		return fmt.Errorf("%w: %v", credential.ErrBackendInternal, err)
	}
	return mapError("write item", keyring.Set(s.service, itemUser(it.id), string(b)))
}

// all loads every indexed item. Index entries whose secret vanished are skipped.
func (s *Store) all() ([]*item, error) {
	ids, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	out := make([]*item, 0, len(ids))
	for _, id := range ids {
		it, err := s.loadItem(id)
		if errors.Is(err, credential.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *Store) matching(query credential.AttributeMap) ([]*item, error) {
	items, err := s.all()
	if err != nil {
		return nil, err
	}
	var out []*item
	for _, it := range items {
		if matches(it, query) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (it *item) attribute(key string) (any, bool) {
	v, ok := it.env.Attrs[key]
	if !ok {
		return nil, false
	}
	return v.decode(), true
}

func (it *item) synchronizable() bool {
	v, _ := it.attribute(credential.AttrSynchronizable)
	b, _ := v.(bool)
	return b
}

// matches applies the modern query rules: every non-control attribute must be
// equal, and synchronizable items only match queries that ask for them.
func matches(it *item, query credential.AttributeMap) bool {
	if tok, ok := tokenOf(query[credential.ValuePersistentRef]); ok && string(tok) != string(it.token()) {
		return false
	}
	if c, ok := query[credential.AttrClass]; ok && !equal(string(it.env.Class), classString(c)) {
		return false
	}
	switch s := query[credential.AttrSynchronizable].(type) {
	case nil:
		if it.synchronizable() {
			return false
		}
	case bool:
		if it.synchronizable() != s {
			return false
		}
	}
	for k, want := range query {
		if credential.ControlKeys[k] || k == credential.AttrSynchronizable {
			continue
		}
		have, ok := it.attribute(k)
		if !ok || !equal(have, want) {
			return false
		}
	}
	return true
}

func tokenOf(v any) (credential.PersistentRef, bool) {
	switch t := v.(type) {
	case credential.PersistentRef:
		return t, true
	case []byte:
		return t, true
	}
	return nil, false
}

func classString(v any) string {
	switch c := v.(type) {
	case credential.ItemClass:
		return string(c)
	case string:
		return c
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func (it *item) record(withData bool) credential.AttributeMap {
	rec := credential.AttributeMap{}
	keys := make([]string, 0, len(it.env.Attrs))
	for k := range it.env.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec[k] = it.env.Attrs[k].decode()
	}
	rec[credential.AttrClass] = it.env.Class
	rec[credential.ValuePersistentRef] = it.token()
	if withData {
		data := it.env.Data
		if data == nil {
			data = []byte{}
		}
		rec[credential.ValueData] = append([]byte(nil), data...)
	}
	if it.env.AccessControl != nil {
		ac := *it.env.AccessControl
		rec[credential.AttrAccessControl] = &ac
	}
	return rec
}

func limitOf(query credential.AttributeMap) int {
	switch l := query[credential.MatchLimit].(type) {
	case string:
		if l == credential.MatchLimitAll {
			return -1
		}
	default:
		if n, ok := credential.AsInt(l); ok && n > 0 {
			return n
		}
	}
	return 1
}

// Find implements credential.ModernStore.
func (s *Store) Find(_ context.Context, query credential.AttributeMap) ([]credential.AttributeMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits, err := s.matching(query)
	if err != nil {
		return nil, err
	}
	limit := limitOf(query)
	wantData, _ := query[credential.ReturnData].(bool)
	var out []credential.AttributeMap
	for _, it := range hits {
		if limit >= 0 && len(out) == limit {
			break
		}
		out = append(out, it.record(wantData))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("keyring find: %w", credential.ErrItemNotFound)
	}
	return out, nil
}

// Add implements credential.ModernStore. Items sharing the class's primary key
// are duplicates.
func (s *Store) Add(_ context.Context, attrs credential.AttributeMap) (credential.AttributeMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	class := credential.ItemClass(classString(attrs[credential.AttrClass]))
	if class == "" {
		return nil, fmt.Errorf("%w: keyring add without class", credential.ErrItemClassMissing)
	}
	env := &envelope{Class: class, Attrs: map[string]value{}}
	for k, v := range attrs {
		switch k {
		case credential.ValueData:
			data, ok := credential.AsBytes(v)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be bytes or a string", credential.ErrInvalidValue, k)
			}
			env.Data = append([]byte(nil), data...)
			continue
		case credential.AttrAccessControl:
			ac, ok := v.(*credential.AccessControl)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be *credential.AccessControl", credential.ErrInvalidValue, k)
			}
			env.AccessControl = ac
			continue
		}
		if credential.ControlKeys[k] {
			continue
		}
		enc, err := encodeValue(k, v)
		if err != nil {
			return nil, err
		}
		env.Attrs[k] = enc
	}
	if _, ok := env.Attrs[credential.AttrSynchronizable]; !ok {
		env.Attrs[credential.AttrSynchronizable] = value{Kind: kindBool}
	}

	items, err := s.all()
	if err != nil {
		return nil, err
	}
	it := &item{id: uuid.New(), env: env}
	for _, existing := range items {
		if existing.env.Class == class && samePrimaryKey(existing, it) {
			return nil, fmt.Errorf("keyring add: %w", credential.ErrDuplicateItem)
		}
	}

	if err := s.saveItem(it); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(items)+1)
	for _, existing := range items {
		ids = append(ids, existing.id)
	}
	if err := s.saveIndex(append(ids, it.id)); err != nil {
		_ = keyring.Delete(s.service, itemUser(it.id))
		return nil, err
	}
	return it.record(false), nil
}

func samePrimaryKey(a, b *item) bool {
	for _, key := range schema.ModernPrimaryKeys(a.env.Class) {
		av, aok := a.attribute(key)
		bv, bok := b.attribute(key)
		if aok != bok || (aok && !equal(av, bv)) {
			return false
		}
	}
	return true
}

// Update implements credential.ModernStore. Every match is updated.
func (s *Store) Update(_ context.Context, query, changes credential.AttributeMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits, err := s.matching(query)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("keyring update: %w", credential.ErrItemNotFound)
	}
	for _, it := range hits {
		for k, v := range changes {
			switch k {
			case credential.ValueData:
				data, ok := credential.AsBytes(v)
				if !ok {
					return fmt.Errorf("%w: %s must be bytes or a string", credential.ErrInvalidValue, k)
				}
				it.env.Data = append([]byte(nil), data...)
			case credential.AttrAccessControl:
				ac, ok := v.(*credential.AccessControl)
				if !ok {
					return fmt.Errorf("%w: %s must be *credential.AccessControl", credential.ErrInvalidValue, k)
				}
				it.env.AccessControl = ac
			case credential.AttrClass:
				return fmt.Errorf("%w: class cannot be changed", credential.ErrParameter)
			default:
				enc, err := encodeValue(k, v)
				if err != nil {
					return err
				}
				it.env.Attrs[k] = enc
			}
		}
		if err := s.saveItem(it); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements credential.ModernStore. Every match is deleted.
func (s *Store) Delete(_ context.Context, query credential.AttributeMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.all()
	if err != nil {
		return err
	}
	var kept []uuid.UUID
	deleted := 0
	for _, it := range items {
		if !matches(it, query) {
			kept = append(kept, it.id)
			continue
		}
		if err := keyring.Delete(s.service, itemUser(it.id)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return mapError("delete item", err)
		}
		deleted++
	}
	if deleted == 0 {
		return fmt.Errorf("keyring delete: %w", credential.ErrItemNotFound)
	}
	return s.saveIndex(kept)
}

// Unlock touches the index so the secret service unlocks its collection, prompting
// the user if it has to.
func (s *Store) Unlock(context.Context) error {
	_, err := keyring.Get(s.service, indexUser)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return mapError("unlock", err)
}

var _ credential.ModernStore = (*Store)(nil)
