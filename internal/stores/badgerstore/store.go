// Package badgerstore is a file-backed legacy credential store on BadgerDB. Items are
// kept in their native tagged-attribute form, one key per item, grouped by keychain
// and record type.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/systmms/credroute/internal/logging"
	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

// DefaultKeychain receives items created without an explicit keychain.
const DefaultKeychain = "login"

var sequenceKey = []byte("!seq/items")

// Config holds configuration for a Store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Useful for tests.
	InMemory bool

	// SyncWrites makes every write durable before it returns.
	SyncWrites bool

	// DefaultKeychain overrides DefaultKeychain.
	DefaultKeychain string

	// Logger receives BadgerDB's own log lines. Nil disables them.
	Logger *logging.Logger
}

// Store implements credential.LegacyStore.
type Store struct {
	db       *badger.DB
	seq      *badger.Sequence
	keychain string
}

type record struct {
	Attrs  []credential.Attribute   `json:"attrs"`
	Data   []byte                   `json:"data,omitempty"`
	Access *credential.LegacyAccess `json:"access,omitempty"`
}

// badgerLogger adapts the logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(format, args...)
}

// Infof lines are logged at debug level.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(format, args...)
}

// Open opens the store described by cfg. Callers must Close it.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for a persistent store")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}
	seq, err := db.GetSequence(sequenceKey, 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open legacy store sequence: %w", err)
	}

	kc := cfg.DefaultKeychain
	if kc == "" {
		kc = DefaultKeychain
	}
	return &Store{db: db, seq: seq, keychain: kc}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

// itemKey lays items out as keychain NUL record NUL id so that a keychain, or a
// keychain and record type, is a key prefix. Ids are zero-padded sequence numbers,
// which keeps iteration in insertion order.
func itemKey(ref credential.LegacyItemRef) []byte {
	return []byte(ref.Keychain + "\x00" + string(ref.Record) + "\x00" + ref.ID)
}

func parseKey(k []byte) (credential.LegacyItemRef, bool) {
	parts := bytes.SplitN(k, []byte{0}, 3)
	if len(parts) != 3 {
		return credential.LegacyItemRef{}, false
	}
	return credential.LegacyItemRef{
		Keychain: string(parts[0]),
		Record:   credential.RecordType(parts[1]),
		ID:       string(parts[2]),
	}, true
}

func validKeychain(name string) error {
	if name == "" || bytes.IndexByte([]byte(name), 0) >= 0 || name[0] == '!' {
		return fmt.Errorf("%w: keychain name %q", credential.ErrParameter, name)
	}
	return nil
}

func load(txn *badger.Txn, ref credential.LegacyItemRef) (*record, error) {
	item, err := txn.Get(itemKey(ref))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("legacy item %s: %w", ref, credential.ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrBackendInternal, err)
	}
	var rec record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", credential.ErrBackendInternal, ref, err)
	}
	return &rec, nil
}

func save(txn *badger.Txn, ref credential.LegacyItemRef, rec *record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", credential.ErrBackendInternal, ref, err)
	}
	if err := txn.Set(itemKey(ref), b); err != nil {
		return fmt.Errorf("%w: %v", credential.ErrBackendInternal, err)
	}
	return nil
}

// each calls fn for every item of type rt in keychains, all keychains when empty.
func each(txn *badger.Txn, rt credential.RecordType, keychains []string, fn func(credential.LegacyItemRef, *record) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var prefixes [][]byte
	for _, kc := range keychains {
		prefixes = append(prefixes, []byte(kc+"\x00"+string(rt)+"\x00"))
	}
	if len(prefixes) == 0 {
		prefixes = [][]byte{nil}
	}

	for _, prefix := range prefixes {
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ref, ok := parseKey(it.Item().Key())
			if !ok || ref.Record != rt {
				continue
			}
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("%w: decode %s: %v", credential.ErrBackendInternal, ref, err)
			}
			if err := fn(ref, &rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Search implements credential.LegacyStore. Matches are collected up front, so
// later writes never disturb a running search.
func (s *Store) Search(_ context.Context, rt credential.RecordType, filter []credential.Attribute, keychains []string) (credential.LegacySearch, error) {
	if schema.Entries(rt) == nil {
		return nil, fmt.Errorf("%w: unknown record type %q", credential.ErrParameter, rt)
	}
	var hits []credential.LegacyItemRef
	err := s.db.View(func(txn *badger.Txn) error {
		return each(txn, rt, keychains, func(ref credential.LegacyItemRef, rec *record) error {
			if matchesAll(rec.Attrs, filter) {
				hits = append(hits, ref)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("legacy search %s: %w", rt, credential.ErrItemNotFound)
	}
	return &search{refs: hits}, nil
}

type search struct {
	refs []credential.LegacyItemRef
}

func (s *search) Next(context.Context) (credential.LegacyItemRef, error) {
	if len(s.refs) == 0 {
		return credential.LegacyItemRef{}, fmt.Errorf("legacy search exhausted: %w", credential.ErrItemNotFound)
	}
	ref := s.refs[0]
	s.refs = s.refs[1:]
	return ref, nil
}

// CopyAttributesAndData implements credential.LegacyStore.
func (s *Store) CopyAttributesAndData(_ context.Context, ref credential.LegacyItemRef, tags []credential.Tag, wantData bool) ([]credential.Attribute, []byte, error) {
	var rec *record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = load(txn, ref)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	attrs := rec.Attrs
	if len(tags) > 0 {
		attrs = nil
		for _, t := range tags {
			if v, ok := lookup(rec.Attrs, t); ok {
				attrs = append(attrs, credential.Attribute{Tag: t, Value: v})
			}
		}
	}
	var data []byte
	if wantData {
		data = rec.Data
		if data == nil {
			data = []byte{}
		}
	}
	return attrs, data, nil
}

// CreateFromContent implements credential.LegacyStore.
func (s *Store) CreateFromContent(_ context.Context, rt credential.RecordType, attrs []credential.Attribute, data []byte, keychain string, access *credential.LegacyAccess) (credential.LegacyItemRef, error) {
	if keychain == "" {
		keychain = s.keychain
	}
	if err := validKeychain(keychain); err != nil {
		return credential.LegacyItemRef{}, err
	}
	if schema.Entries(rt) == nil {
		return credential.LegacyItemRef{}, fmt.Errorf("%w: unknown record type %q", credential.ErrParameter, rt)
	}
	pk := primaryKeyTags(rt)

	n, err := s.seq.Next()
	if err != nil {
		return credential.LegacyItemRef{}, fmt.Errorf("%w: allocate item id: %v", credential.ErrBackendInternal, err)
	}
	ref := credential.LegacyItemRef{Keychain: keychain, Record: rt, ID: fmt.Sprintf("%016x", n)}

	err = s.db.Update(func(txn *badger.Txn) error {
		err := each(txn, rt, []string{keychain}, func(existing credential.LegacyItemRef, rec *record) error {
			if samePrimaryKey(rec.Attrs, attrs, pk) {
				return fmt.Errorf("legacy item %s: %w", existing, credential.ErrDuplicateItem)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return save(txn, ref, &record{Attrs: attrs, Data: data, Access: access})
	})
	if err != nil {
		return credential.LegacyItemRef{}, err
	}
	return ref, nil
}

// ModifyContent implements credential.LegacyStore. A change that would collide
// with another item's primary key fails with ErrDuplicateItem.
func (s *Store) ModifyContent(_ context.Context, ref credential.LegacyItemRef, attrs []credential.Attribute, data []byte) error {
	pk := primaryKeyTags(ref.Record)
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := load(txn, ref)
		if err != nil {
			return err
		}
		rec.Attrs = merge(rec.Attrs, attrs)
		if data != nil {
			rec.Data = data
		}
		err = each(txn, ref.Record, []string{ref.Keychain}, func(other credential.LegacyItemRef, o *record) error {
			if other != ref && samePrimaryKey(o.Attrs, rec.Attrs, pk) {
				return fmt.Errorf("legacy item %s: %w", other, credential.ErrDuplicateItem)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return save(txn, ref, rec)
	})
}

// Delete implements credential.LegacyStore.
func (s *Store) Delete(_ context.Context, ref credential.LegacyItemRef) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := load(txn, ref); err != nil {
			return err
		}
		if err := txn.Delete(itemKey(ref)); err != nil {
			return fmt.Errorf("%w: %v", credential.ErrBackendInternal, err)
		}
		return nil
	})
}

// CopyPersistentReference implements credential.LegacyStore.
func (s *Store) CopyPersistentReference(_ context.Context, ref credential.LegacyItemRef) (credential.PersistentRef, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := load(txn, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return credential.NewLegacyPersistentRef(ref), nil
}

// ResolvePersistentReference implements credential.LegacyStore.
func (s *Store) ResolvePersistentReference(_ context.Context, token credential.PersistentRef) (credential.LegacyItemRef, error) {
	ref, err := credential.ParseLegacyPersistentRef(token)
	if err != nil {
		return ref, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		_, err := load(txn, ref)
		return err
	})
	return ref, err
}

// Access returns the access list stored with ref.
func (s *Store) Access(ref credential.LegacyItemRef) (*credential.LegacyAccess, error) {
	var rec *record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = load(txn, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec.Access, nil
}

func primaryKeyTags(rt credential.RecordType) []credential.Tag {
	var tags []credential.Tag
	for _, key := range schema.PrimaryKeys(rt.ItemClass()) {
		if e, ok := schema.EntryForKey(rt, key); ok {
			tags = append(tags, e.Tag)
		}
	}
	return tags
}

func merge(have, changes []credential.Attribute) []credential.Attribute {
	out := append([]credential.Attribute(nil), have...)
	for _, c := range changes {
		replaced := false
		for i := range out {
			if out[i].Tag == c.Tag {
				out[i].Value = c.Value
				replaced = true
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	return out
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

var _ credential.LegacyStore = (*Store)(nil)
