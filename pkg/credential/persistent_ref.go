package credential

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// PersistentRef is a stable token: an opaque, backend-specific identifier that
// survives process restarts.
type PersistentRef []byte

const modernRefLen = 4 + 16

var legacyRefMagic = []byte("kcpr")

var modernClassCodes = map[ItemClass]string{
	ClassGenericPassword:  "genp",
	ClassInternetPassword: "inet",
	ClassCertificate:      "cert",
	ClassKey:              "keys",
}

// NewModernPersistentRef builds a modern-shaped token: a four byte class code
// followed by the item's UUID.
func NewModernPersistentRef(class ItemClass, id uuid.UUID) PersistentRef {
	code, ok := modernClassCodes[class]
	if !ok {
		code = "????"
	}
	out := make([]byte, 0, modernRefLen)
	out = append(out, code...)
	return append(out, id[:]...)
}

// NewLegacyPersistentRef encodes a legacy item reference as a token.
func NewLegacyPersistentRef(ref LegacyItemRef) PersistentRef {
	var b bytes.Buffer
	b.Write(legacyRefMagic)
	b.WriteString(string(ref.Record))
	b.WriteString(ref.Keychain)
	b.WriteByte(0)
	b.WriteString(ref.ID)
	return b.Bytes()
}

// ParseLegacyPersistentRef decodes a token built by NewLegacyPersistentRef.
func ParseLegacyPersistentRef(p PersistentRef) (LegacyItemRef, error) {
	if !p.IsLegacy() || len(p) < len(legacyRefMagic)+4 {
		return LegacyItemRef{}, fmt.Errorf("%w: not a legacy persistent reference", ErrInvalidValue)
	}
	rest := p[len(legacyRefMagic):]
	rt := RecordType(rest[:4])
	rest = rest[4:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 || rt.ItemClass() == "" {
		return LegacyItemRef{}, fmt.Errorf("%w: malformed legacy persistent reference", ErrInvalidValue)
	}
	return LegacyItemRef{Keychain: string(rest[:i]), Record: rt, ID: string(rest[i+1:])}, nil
}

// IsLegacy reports whether p has the legacy token shape.
func (p PersistentRef) IsLegacy() bool {
	return bytes.HasPrefix(p, legacyRefMagic)
}

// IsModern reports whether p has the fixed-length modern token shape.
func (p PersistentRef) IsModern() bool {
	return len(p) == modernRefLen && !p.IsLegacy()
}

// Class returns the item class encoded in the token, if any.
func (p PersistentRef) Class() (ItemClass, bool) {
	switch {
	case p.IsLegacy():
		ref, err := ParseLegacyPersistentRef(p)
		if err != nil {
			return "", false
		}
		return ref.Record.ItemClass(), true
	case p.IsModern():
		code := string(p[:4])
		for class, c := range modernClassCodes {
			if c == code {
				return class, true
			}
		}
	}
	return "", false
}
