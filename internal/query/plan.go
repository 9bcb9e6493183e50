// Package query turns caller attribute maps into validated query plans and decides
// which backend stores a request targets.
package query

import (
	"time"

	"github.com/systmms/credroute/pkg/credential"
)

// Op names the operation a map is validated for.
type Op int

const (
	OpFind Op = iota + 1
	OpAdd
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpFind:
		return "find"
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// MatchAll is the unbounded match limit.
const MatchAll = -1

// ReturnFlags records the requested result types.
type ReturnFlags struct {
	Ref           bool
	PersistentRef bool
	Attributes    bool
	Data          bool
}

// Count returns how many result types are requested.
func (r ReturnFlags) Count() int {
	n := 0
	for _, b := range []bool{r.Ref, r.PersistentRef, r.Attributes, r.Data} {
		if b {
			n++
		}
	}
	return n
}

// SubjectMode selects how a subject filter string is compared.
type SubjectMode int

const (
	SubjectContains SubjectMode = iota + 1
	SubjectStartsWith
	SubjectEndsWith
	SubjectWholeString
)

// SubjectMatch is one subject substring filter.
type SubjectMatch struct {
	Mode  SubjectMode
	Value string
}

// Filters are the secondary, in-memory predicates neither backend expresses natively.
type Filters struct {
	Subject              []SubjectMatch
	CaseInsensitive      bool
	DiacriticInsensitive bool
	WidthInsensitive     bool
	Email                string
	// ValidOn is set when a validity date was requested; the zero time means "now".
	ValidOn     *time.Time
	TrustedOnly bool
	Policy      credential.Policy
	// Issuer and Serial are set together when a certificate query names both.
	Issuer []byte
	Serial []byte
}

// Any reports whether any secondary filter is active.
func (f Filters) Any() bool {
	return len(f.Subject) > 0 || f.Email != "" || f.ValidOn != nil || f.TrustedOnly ||
		f.Policy != nil || f.Issuer != nil
}

// NeedsCertificate reports whether evaluating the filters requires the parsed
// certificate.
func (f Filters) NeedsCertificate() bool {
	return f.Any()
}

// Plan is the validated state of one call. It is created per call and discarded when
// the call ends.
type Plan struct {
	Op       Op
	Class    credential.ItemClass
	KeyClass credential.KeyClass
	Return   ReturnFlags
	// Limit is >= 1, or MatchAll.
	Limit int

	SearchList []string
	// UseItems and UseTokens are the explicit items to find or add; value_ref and
	// value_persistent_ref are folded into them.
	UseItems  []credential.Handle
	UseTokens []credential.PersistentRef
	// MatchItems and MatchTokens restrict results to members of an explicit list.
	MatchItems  []credential.Handle
	MatchTokens []credential.PersistentRef

	// Attributes holds every non-control key, integers normalized to int.
	Attributes credential.AttributeMap
	Filters    Filters

	Payload       []byte
	HasPayload    bool
	AccessControl *credential.AccessControl
	LegacyAccess  *credential.LegacyAccess
	KDF           *credential.KDFParams
	Keychain      string
	AuthUI        credential.AuthUI
}

// HasExplicitItems reports whether the plan names items directly instead of searching.
func (p *Plan) HasExplicitItems() bool {
	return len(p.UseItems) > 0 || len(p.UseTokens) > 0
}

// HasMatchList reports whether results are restricted to an explicit item list.
func (p *Plan) HasMatchList() bool {
	return len(p.MatchItems) > 0 || len(p.MatchTokens) > 0
}

// Single reports whether at most one result is wanted.
func (p *Plan) Single() bool {
	return p.Limit == 1
}
