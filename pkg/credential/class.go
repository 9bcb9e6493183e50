package credential

import "fmt"

// ItemClass names the kind of item a query or handle refers to.
type ItemClass string

const (
	ClassGenericPassword  ItemClass = "generic_password"
	ClassInternetPassword ItemClass = "internet_password"
	ClassCertificate      ItemClass = "certificate"
	ClassKey              ItemClass = "key"
	// ClassIdentity is virtual: a certificate paired with its private key. It is never
	// stored as its own class.
	ClassIdentity ItemClass = "identity"
)

// ParseItemClass converts a string into an ItemClass.
func ParseItemClass(s string) (ItemClass, error) {
	switch c := ItemClass(s); c {
	case ClassGenericPassword, ClassInternetPassword, ClassCertificate, ClassKey, ClassIdentity:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown item class %q", ErrInvalidValue, s)
}

// IsPassword reports whether c holds password items.
func (c ItemClass) IsPassword() bool {
	return c == ClassGenericPassword || c == ClassInternetPassword
}

// KeyClass distinguishes the three kinds of key items.
type KeyClass string

const (
	KeyClassPublic    KeyClass = "public"
	KeyClassPrivate   KeyClass = "private"
	KeyClassSymmetric KeyClass = "symmetric"
)

// ParseKeyClass converts a string into a KeyClass.
func ParseKeyClass(s string) (KeyClass, error) {
	switch k := KeyClass(s); k {
	case KeyClassPublic, KeyClassPrivate, KeyClassSymmetric:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown key class %q", ErrInvalidValue, s)
}

// Backend identifies one of the two credential stores.
type Backend string

const (
	// BackendNone marks floating handles that are not held by any store yet.
	BackendNone   Backend = ""
	BackendLegacy Backend = "legacy"
	BackendModern Backend = "modern"
)

// String returns the backend name, or "floating" for BackendNone.
func (b Backend) String() string {
	if b == BackendNone {
		return "floating"
	}
	return string(b)
}

// AuthUI controls whether an operation may prompt the user.
type AuthUI string

const (
	AuthUIAllow AuthUI = "allow"
	AuthUIFail  AuthUI = "fail"
	AuthUISkip  AuthUI = "skip"
)

// AllowsPrompt reports whether an unlock prompt may be shown.
func (a AuthUI) AllowsPrompt() bool {
	return a == "" || a == AuthUIAllow
}
