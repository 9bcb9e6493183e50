package credential

// AttributeMap is the unified vocabulary callers use to describe queries, new items
// and changes. It is caller-owned: the router only ever works on copies.
type AttributeMap map[string]any

// Clone returns a shallow copy of m. Byte slices are copied so the clone can be
// mutated without touching the caller's buffers.
func (m AttributeMap) Clone() AttributeMap {
	if m == nil {
		return AttributeMap{}
	}
	out := make(AttributeMap, len(m))
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		out[k] = v
	}
	return out
}

// Without returns a copy of m with the given keys removed.
func (m AttributeMap) Without(keys ...string) AttributeMap {
	out := m.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Class selector. Also present in normalized attribute maps.
const AttrClass = "class"

// Result-type selectors.
const (
	ReturnRef           = "return_ref"
	ReturnPersistentRef = "return_persistent_ref"
	ReturnAttributes    = "return_attributes"
	ReturnData          = "return_data"
)

// Match controls and secondary filters.
const (
	MatchLimit                 = "match_limit"
	MatchSearchList            = "match_search_list"
	MatchItemList              = "match_item_list"
	MatchSubjectContains       = "match_subject_contains"
	MatchSubjectStartsWith     = "match_subject_starts_with"
	MatchSubjectEndsWith       = "match_subject_ends_with"
	MatchSubjectWholeString    = "match_subject_whole_string"
	MatchCaseInsensitive       = "match_case_insensitive"
	MatchDiacriticInsensitive  = "match_diacritic_insensitive"
	MatchWidthInsensitive      = "match_width_insensitive"
	MatchEmailAddressIfPresent = "match_email_address_if_present"
	MatchValidOnDate           = "match_valid_on_date"
	MatchTrustedOnly           = "match_trusted_only"
	MatchPolicy                = "match_policy"
)

// Match limit string forms. Integers >= 1 are accepted as well.
const (
	MatchLimitOne = "one"
	MatchLimitAll = "all"
)

// Scope, routing and interaction controls.
const (
	UseItemList = "use_item_list"
	UseBackend  = "use_backend"
	UseKeychain = "use_keychain"
	UseAuthUI   = "use_auth_ui"
)

// Item value carriers.
const (
	ValueRef           = "value_ref"
	ValuePersistentRef = "value_persistent_ref"
	ValueData          = "value_data"
)

// Access objects and backend-specific controls.
const (
	AttrAccess        = "access"
	AttrAccessControl = "access_control"
	AttrTokenID       = "token_id"
	AttrKDFParams     = "kdf_params"
)

// Password attributes.
const (
	AttrAccount          = "account"
	AttrService          = "service"
	AttrLabel            = "label"
	AttrDescription      = "description"
	AttrComment          = "comment"
	AttrGeneric          = "generic"
	AttrCreator          = "creator"
	AttrType             = "type"
	AttrCreationDate     = "creation_date"
	AttrModificationDate = "modification_date"
	AttrIsInvisible      = "is_invisible"
	AttrIsNegative       = "is_negative"
	AttrAccessGroup      = "access_group"
	AttrSynchronizable   = "synchronizable"
	AttrServer           = "server"
	AttrSecurityDomain   = "security_domain"
	AttrProtocol         = "protocol"
	AttrAuthType         = "auth_type"
	AttrPort             = "port"
	AttrPath             = "path"
)

// Certificate attributes.
const (
	AttrSubject       = "subject"
	AttrIssuer        = "issuer"
	AttrSerialNumber  = "serial_number"
	AttrSubjectKeyID  = "subject_key_id"
	AttrPublicKeyHash = "public_key_hash"
	AttrCertType      = "cert_type"
	AttrCertEncoding  = "cert_encoding"
	AttrEmailAddress  = "email_address"
)

// Key attributes.
const (
	AttrKeyClass         = "key_class"
	AttrKeyType          = "key_type"
	AttrKeySizeInBits    = "key_size_in_bits"
	AttrEffectiveKeySize = "effective_key_size"
	AttrApplicationLabel = "application_label"
	AttrApplicationTag   = "application_tag"
	AttrIsPermanent      = "is_permanent"
	AttrCanEncrypt       = "can_encrypt"
	AttrCanDecrypt       = "can_decrypt"
	AttrCanDerive        = "can_derive"
	AttrCanSign          = "can_sign"
	AttrCanVerify        = "can_verify"
	AttrCanWrap          = "can_wrap"
	AttrCanUnwrap        = "can_unwrap"
)

// SynchronizableAny matches both synchronizable and non-synchronizable items.
const SynchronizableAny = "any"

// ReservedTokenGroup is the access group reserved for hardware-token items, which
// only the modern store can hold.
const ReservedTokenGroup = "token"

// ControlKeys lists every key that steers an operation rather than describing an item.
var ControlKeys = map[string]bool{
	AttrClass:                  true,
	ReturnRef:                  true,
	ReturnPersistentRef:        true,
	ReturnAttributes:           true,
	ReturnData:                 true,
	MatchLimit:                 true,
	MatchSearchList:            true,
	MatchItemList:              true,
	MatchSubjectContains:       true,
	MatchSubjectStartsWith:     true,
	MatchSubjectEndsWith:       true,
	MatchSubjectWholeString:    true,
	MatchCaseInsensitive:       true,
	MatchDiacriticInsensitive:  true,
	MatchWidthInsensitive:      true,
	MatchEmailAddressIfPresent: true,
	MatchValidOnDate:           true,
	MatchTrustedOnly:           true,
	MatchPolicy:                true,
	UseItemList:                true,
	UseBackend:                 true,
	UseKeychain:                true,
	UseAuthUI:                  true,
	ValueRef:                   true,
	ValuePersistentRef:         true,
	ValueData:                  true,
	AttrAccess:                 true,
	AttrAccessControl:          true,
	AttrKDFParams:              true,
}

// LegacyOnlyKeys can only be honoured by the legacy store.
var LegacyOnlyKeys = []string{MatchSearchList, UseItemList, UseKeychain, AttrAccess, AttrKDFParams}

// ModernOnlyKeys can only be honoured by the modern store.
var ModernOnlyKeys = []string{AttrTokenID, AttrAccessControl}
