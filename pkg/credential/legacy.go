package credential

import (
	"context"
	"fmt"
)

// RecordType is the legacy store's fixed record schema selector. Keys are split into
// three record types where the modern store has one key class.
type RecordType string

const (
	RecordGenericPassword  RecordType = "genp"
	RecordInternetPassword RecordType = "inet"
	RecordCertificate      RecordType = "cert"
	RecordPublicKey        RecordType = "pubk"
	RecordPrivateKey       RecordType = "prvk"
	RecordSymmetricKey     RecordType = "symk"
)

// ItemClass maps a record type onto the unified class vocabulary.
func (r RecordType) ItemClass() ItemClass {
	switch r {
	case RecordGenericPassword:
		return ClassGenericPassword
	case RecordInternetPassword:
		return ClassInternetPassword
	case RecordCertificate:
		return ClassCertificate
	case RecordPublicKey, RecordPrivateKey, RecordSymmetricKey:
		return ClassKey
	}
	return ""
}

// KeyClass returns the key class of a key record type, or "" for other records.
func (r RecordType) KeyClass() KeyClass {
	switch r {
	case RecordPublicKey:
		return KeyClassPublic
	case RecordPrivateKey:
		return KeyClassPrivate
	case RecordSymmetricKey:
		return KeyClassSymmetric
	}
	return ""
}

// RecordTypeFor returns the record type storing items of class c. For keys the key
// class must be known; identities are searched as certificates.
func RecordTypeFor(c ItemClass, kc KeyClass) (RecordType, error) {
	switch c {
	case ClassGenericPassword:
		return RecordGenericPassword, nil
	case ClassInternetPassword:
		return RecordInternetPassword, nil
	case ClassCertificate, ClassIdentity:
		return RecordCertificate, nil
	case ClassKey:
		switch kc {
		case KeyClassPublic:
			return RecordPublicKey, nil
		case KeyClassPrivate:
			return RecordPrivateKey, nil
		case KeyClassSymmetric:
			return RecordSymmetricKey, nil
		}
		return "", fmt.Errorf("%w: key class required for legacy key records", ErrParameter)
	}
	return "", fmt.Errorf("%w: no legacy record type for class %q", ErrInvalidValue, c)
}

// Tag is a legacy attribute tag, a four character code.
type Tag string

// Attribute is one tagged, natively encoded legacy attribute.
type Attribute struct {
	Tag   Tag
	Value []byte
}

// LegacyItemRef identifies an item inside the legacy store.
type LegacyItemRef struct {
	Keychain string
	Record   RecordType
	ID       string
}

func (r LegacyItemRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Keychain, r.Record, r.ID)
}

// LegacyAccess is the legacy store's access control list: the applications trusted
// to read an item without prompting.
type LegacyAccess struct {
	Description         string
	TrustedApplications []string
}

// KDFParams carries key-derivation parameters only the legacy store understands.
type KDFParams struct {
	Algorithm  string
	Salt       []byte
	Iterations int
}

// LegacySearch iterates the results of one legacy search. Next returns an error
// wrapping ErrItemNotFound once exhausted.
type LegacySearch interface {
	Next(ctx context.Context) (LegacyItemRef, error)
}

// LegacyStore is the file-backed, fixed-schema credential store.
type LegacyStore interface {
	// Search starts a search over records of type rt whose attributes equal every
	// attribute in filter. An empty keychains list searches the default search list.
	// Returns an error wrapping ErrItemNotFound when nothing can match.
	Search(ctx context.Context, rt RecordType, filter []Attribute, keychains []string) (LegacySearch, error)

	// CopyAttributesAndData returns the requested attributes (all when tags is empty)
	// and, when wantData is set, the item's payload.
	CopyAttributesAndData(ctx context.Context, ref LegacyItemRef, tags []Tag, wantData bool) ([]Attribute, []byte, error)

	// CreateFromContent stores a new item. Fails with ErrDuplicateItem when an item
	// with the same primary key exists in the target keychain.
	CreateFromContent(ctx context.Context, rt RecordType, attrs []Attribute, data []byte, keychain string, access *LegacyAccess) (LegacyItemRef, error)

	// ModifyContent replaces the given attributes and, when data is non-nil, the payload.
	ModifyContent(ctx context.Context, ref LegacyItemRef, attrs []Attribute, data []byte) error

	Delete(ctx context.Context, ref LegacyItemRef) error

	CopyPersistentReference(ctx context.Context, ref LegacyItemRef) (PersistentRef, error)

	ResolvePersistentReference(ctx context.Context, token PersistentRef) (LegacyItemRef, error)
}
