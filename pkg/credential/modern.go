package credential

import "context"

// AccessControl is the modern store's access-control object: a protection class plus
// constraint flags such as "user-presence" or "biometry".
type AccessControl struct {
	Protection string
	Flags      []string
}

// ModernStore is the daemon-backed, free-form attribute store. It speaks attribute
// maps directly, using the same keys as callers.
//
// Find returns one record per matching item. Each record carries the item's
// attributes under their unified keys, AttrClass, ValuePersistentRef and, when
// ReturnData was requested, ValueData. Find honours MatchLimit. Unless a query
// sets AttrSynchronizable, only non-synchronizable items match.
type ModernStore interface {
	Find(ctx context.Context, query AttributeMap) ([]AttributeMap, error)

	// Add stores a new item and returns its record.
	Add(ctx context.Context, attrs AttributeMap) (AttributeMap, error)

	Update(ctx context.Context, query, changes AttributeMap) error

	Delete(ctx context.Context, query AttributeMap) error
}
