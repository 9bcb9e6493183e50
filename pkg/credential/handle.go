package credential

import (
	"bytes"
	"crypto/x509"
	"fmt"
)

// HandleKind enumerates the concrete Handle types.
type HandleKind int

const (
	KindLegacyItem HandleKind = iota + 1
	KindModernItem
	KindCertificate
	KindKey
	KindIdentity
)

func (k HandleKind) String() string {
	switch k {
	case KindLegacyItem:
		return "legacy-item"
	case KindModernItem:
		return "modern-item"
	case KindCertificate:
		return "certificate"
	case KindKey:
		return "key"
	case KindIdentity:
		return "identity"
	}
	return fmt.Sprintf("HandleKind(%d)", int(k))
}

// Handle is an in-memory reference to an item. The set of implementations is closed;
// see the package documentation.
type Handle interface {
	Kind() HandleKind
	Class() ItemClass
	Backend() Backend
	isHandle()
}

// LegacyItemHandle references a password item held by the legacy store.
type LegacyItemHandle struct {
	Ref LegacyItemRef
}

func (LegacyItemHandle) Kind() HandleKind   { return KindLegacyItem }
func (h LegacyItemHandle) Class() ItemClass { return h.Ref.Record.ItemClass() }
func (LegacyItemHandle) Backend() Backend   { return BackendLegacy }
func (LegacyItemHandle) isHandle()          {}

// ModernItemHandle references a password item held by the modern store.
type ModernItemHandle struct {
	ItemClass ItemClass
	Token     PersistentRef
}

func (ModernItemHandle) Kind() HandleKind   { return KindModernItem }
func (h ModernItemHandle) Class() ItemClass { return h.ItemClass }
func (ModernItemHandle) Backend() Backend   { return BackendModern }
func (ModernItemHandle) isHandle()          {}

// CertificateHandle references a certificate. With neither Legacy nor Modern set it
// is floating: known only by its DER encoding.
type CertificateHandle struct {
	Legacy *LegacyItemRef
	Modern PersistentRef
	DER    []byte
}

// NewFloatingCertificate wraps a parsed certificate that no store holds yet.
func NewFloatingCertificate(cert *x509.Certificate) CertificateHandle {
	return CertificateHandle{DER: append([]byte(nil), cert.Raw...)}
}

func (CertificateHandle) Kind() HandleKind { return KindCertificate }
func (CertificateHandle) Class() ItemClass { return ClassCertificate }
func (h CertificateHandle) Backend() Backend {
	return storedBackend(h.Legacy, h.Modern)
}
func (CertificateHandle) isHandle() {}

// KeyHandle references a key item.
type KeyHandle struct {
	Legacy   *LegacyItemRef
	Modern   PersistentRef
	KeyClass KeyClass
}

func (KeyHandle) Kind() HandleKind { return KindKey }
func (KeyHandle) Class() ItemClass { return ClassKey }
func (h KeyHandle) Backend() Backend {
	return storedBackend(h.Legacy, h.Modern)
}
func (KeyHandle) isHandle() {}

// IdentityHandle pairs a certificate with its private key.
type IdentityHandle struct {
	Certificate CertificateHandle
	Key         KeyHandle
}

func (IdentityHandle) Kind() HandleKind   { return KindIdentity }
func (IdentityHandle) Class() ItemClass   { return ClassIdentity }
func (h IdentityHandle) Backend() Backend { return h.Certificate.Backend() }
func (IdentityHandle) isHandle()          {}

func storedBackend(legacy *LegacyItemRef, modern PersistentRef) Backend {
	switch {
	case legacy != nil:
		return BackendLegacy
	case len(modern) > 0:
		return BackendModern
	}
	return BackendNone
}

// Unwrap returns the certificate half of an identity and h itself otherwise.
func Unwrap(h Handle) Handle {
	if id, ok := h.(IdentityHandle); ok {
		return id.Certificate
	}
	return h
}

// SameItem reports whether a and b refer to the same stored item. Identities are
// compared through their certificates; floating certificates compare by content.
func SameItem(a, b Handle) bool {
	a, b = Unwrap(a), Unwrap(b)
	if a == nil || b == nil {
		return false
	}
	if a.Backend() != b.Backend() {
		return false
	}
	switch x := a.(type) {
	case LegacyItemHandle:
		y, ok := b.(LegacyItemHandle)
		return ok && x.Ref == y.Ref
	case ModernItemHandle:
		y, ok := b.(ModernItemHandle)
		return ok && bytes.Equal(x.Token, y.Token)
	case CertificateHandle:
		y, ok := b.(CertificateHandle)
		if !ok {
			return false
		}
		switch x.Backend() {
		case BackendLegacy:
			return *x.Legacy == *y.Legacy
		case BackendModern:
			return bytes.Equal(x.Modern, y.Modern)
		}
		return len(x.DER) > 0 && bytes.Equal(x.DER, y.DER)
	case KeyHandle:
		y, ok := b.(KeyHandle)
		if !ok {
			return false
		}
		switch x.Backend() {
		case BackendLegacy:
			return *x.Legacy == *y.Legacy
		case BackendModern:
			return bytes.Equal(x.Modern, y.Modern)
		}
		return false
	case IdentityHandle:
		// unreachable after Unwrap
		return false
	}
	return false
}
