// Package schema holds the static translation tables between the unified attribute
// vocabulary and the legacy store's tagged, natively encoded attributes.
//
// The tables are process-wide and never mutated after package initialization.
package schema

import (
	"github.com/systmms/credroute/pkg/credential"
)

// Encoding selects how a unified value is stored in a legacy attribute.
type Encoding int

const (
	EncString Encoding = iota + 1
	EncBytes
	EncUint32
	EncBool
	EncDate
	EncProtocol
	EncAuthType
	EncKeyClass
	EncKeyAlgorithm
	// EncLabel is the key application label: bytes in most items, but text for
	// labels that look like a UUID.
	EncLabel
)

// Entry binds one legacy tag to its unified key.
type Entry struct {
	Tag      credential.Tag
	Key      string
	Encoding Encoding
}

var passwordEntries = []Entry{
	{"acct", credential.AttrAccount, EncString},
	{"labl", credential.AttrLabel, EncString},
	{"desc", credential.AttrDescription, EncString},
	{"icmt", credential.AttrComment, EncString},
	{"crtr", credential.AttrCreator, EncUint32},
	{"type", credential.AttrType, EncUint32},
	{"cdat", credential.AttrCreationDate, EncDate},
	{"mdat", credential.AttrModificationDate, EncDate},
	{"invi", credential.AttrIsInvisible, EncBool},
	{"nega", credential.AttrIsNegative, EncBool},
}

var keyEntries = []Entry{
	{"kcls", credential.AttrKeyClass, EncKeyClass},
	{"labl", credential.AttrLabel, EncString},
	{"klbl", credential.AttrApplicationLabel, EncLabel},
	{"atag", credential.AttrApplicationTag, EncBytes},
	{"type", credential.AttrKeyType, EncKeyAlgorithm},
	{"bsiz", credential.AttrKeySizeInBits, EncUint32},
	{"esiz", credential.AttrEffectiveKeySize, EncUint32},
	{"perm", credential.AttrIsPermanent, EncBool},
	{"encr", credential.AttrCanEncrypt, EncBool},
	{"decr", credential.AttrCanDecrypt, EncBool},
	{"drve", credential.AttrCanDerive, EncBool},
	{"sign", credential.AttrCanSign, EncBool},
	{"vrfy", credential.AttrCanVerify, EncBool},
	{"wrap", credential.AttrCanWrap, EncBool},
	{"unwp", credential.AttrCanUnwrap, EncBool},
}

var tables = map[credential.RecordType][]Entry{
	credential.RecordGenericPassword: join(passwordEntries, []Entry{
		{"svce", credential.AttrService, EncString},
		{"gena", credential.AttrGeneric, EncBytes},
	}),
	credential.RecordInternetPassword: join(passwordEntries, []Entry{
		{"srvr", credential.AttrServer, EncString},
		{"sdmn", credential.AttrSecurityDomain, EncString},
		{"ptcl", credential.AttrProtocol, EncProtocol},
		{"atyp", credential.AttrAuthType, EncAuthType},
		{"port", credential.AttrPort, EncUint32},
		{"path", credential.AttrPath, EncString},
	}),
	credential.RecordCertificate: {
		{"ctyp", credential.AttrCertType, EncUint32},
		{"cenc", credential.AttrCertEncoding, EncUint32},
		{"labl", credential.AttrLabel, EncString},
		{"alis", credential.AttrEmailAddress, EncString},
		{"subj", credential.AttrSubject, EncBytes},
		{"issu", credential.AttrIssuer, EncBytes},
		{"snbr", credential.AttrSerialNumber, EncBytes},
		{"skid", credential.AttrSubjectKeyID, EncBytes},
		{"hpky", credential.AttrPublicKeyHash, EncBytes},
	},
	credential.RecordPublicKey:    keyEntries,
	credential.RecordPrivateKey:   keyEntries,
	credential.RecordSymmetricKey: keyEntries,
}

func join(a, b []Entry) []Entry {
	out := make([]Entry, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

// Entries returns the translation table for a record type.
func Entries(rt credential.RecordType) []Entry {
	return tables[rt]
}

// EntryForKey looks up the entry storing a unified key in records of type rt.
func EntryForKey(rt credential.RecordType, key string) (Entry, bool) {
	for _, e := range tables[rt] {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// EntryForTag looks up the entry for a legacy tag in records of type rt.
func EntryForTag(rt credential.RecordType, tag credential.Tag) (Entry, bool) {
	for _, e := range tables[rt] {
		if e.Tag == tag {
			return e, true
		}
	}
	return Entry{}, false
}

// knownKeys maps every unified key found in any table to its encoding, so callers can
// type-check attribute values before a record type is known.
var knownKeys = func() map[string]Encoding {
	out := make(map[string]Encoding)
	for _, entries := range tables {
		for _, e := range entries {
			out[e.Key] = e.Encoding
		}
	}
	return out
}()

var primaryKeys = map[credential.ItemClass][]string{
	credential.ClassGenericPassword: {
		credential.AttrAccount, credential.AttrService,
	},
	credential.ClassInternetPassword: {
		credential.AttrAccount, credential.AttrServer, credential.AttrSecurityDomain,
		credential.AttrProtocol, credential.AttrAuthType, credential.AttrPort, credential.AttrPath,
	},
	credential.ClassCertificate: {
		credential.AttrCertType, credential.AttrIssuer, credential.AttrSerialNumber,
	},
	credential.ClassKey: {
		credential.AttrKeyClass, credential.AttrApplicationLabel, credential.AttrApplicationTag,
		credential.AttrKeyType, credential.AttrKeySizeInBits, credential.AttrEffectiveKeySize,
	},
}

// modernPrimaryKeys are added to the primary key by the modern store.
var modernPrimaryKeys = []string{credential.AttrAccessGroup, credential.AttrSynchronizable}

// PrimaryKeys returns the unified keys identifying an item of class c in the legacy
// store.
func PrimaryKeys(c credential.ItemClass) []string {
	if c == credential.ClassIdentity {
		c = credential.ClassCertificate
	}
	return primaryKeys[c]
}

// ModernPrimaryKeys returns the unified keys identifying an item of class c in the
// modern store.
func ModernPrimaryKeys(c credential.ItemClass) []string {
	base := PrimaryKeys(c)
	out := make([]string, 0, len(base)+len(modernPrimaryKeys))
	return append(append(out, base...), modernPrimaryKeys...)
}
