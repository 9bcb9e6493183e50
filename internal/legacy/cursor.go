package legacy

import (
	"context"
	"errors"

	"github.com/systmms/credroute/pkg/credential"
)

// State is the position of a Cursor.
type State int

const (
	// StateSingle searches one record type.
	StateSingle State = iota + 1
	// StateSymmetric, StatePublic and StatePrivate sweep the three key record types
	// when a key search does not name a key class.
	StateSymmetric
	StatePublic
	StatePrivate
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSingle:
		return "single"
	case StateSymmetric:
		return "symmetric"
	case StatePublic:
		return "public"
	case StatePrivate:
		return "private"
	case StateDone:
		return "done"
	}
	return "unknown"
}

var sweepRecords = map[State]credential.RecordType{
	StateSymmetric: credential.RecordSymmetricKey,
	StatePublic:    credential.RecordPublicKey,
	StatePrivate:   credential.RecordPrivateKey,
}

// Cursor is a lazy, finite, non-restartable sequence of legacy item references. For
// key searches without a key class it moves through the symmetric, public and private
// record types, rebuilding the filter and search at each step.
type Cursor struct {
	store     credential.LegacyStore
	attrs     credential.AttributeMap
	keychains []string

	state  State
	record credential.RecordType
	search credential.LegacySearch
}

// NewCursor prepares a search of store for items of class c matching attrs. No
// backend call is made until the first Next.
func NewCursor(store credential.LegacyStore, c credential.ItemClass, kc credential.KeyClass,
	attrs credential.AttributeMap, keychains []string) (*Cursor, error) {
	cur := &Cursor{store: store, attrs: attrs, keychains: keychains}
	if c == credential.ClassKey && kc == "" {
		cur.state = StateSymmetric
		cur.record = sweepRecords[StateSymmetric]
		return cur, nil
	}
	rt, err := credential.RecordTypeFor(c, kc)
	if err != nil {
		return nil, err
	}
	cur.state = StateSingle
	cur.record = rt
	return cur, nil
}

// State reports the cursor's position.
func (c *Cursor) State() State {
	return c.state
}

// Next returns the next matching item. ok is false once the sequence is exhausted,
// and stays false on later calls.
func (c *Cursor) Next(ctx context.Context) (ref credential.LegacyItemRef, ok bool, err error) {
	for c.state != StateDone {
		if c.search == nil {
			filter, err := BuildFilter(c.record, c.attrs)
			if err != nil {
				c.state = StateDone
				return ref, false, err
			}
			c.search, err = c.store.Search(ctx, c.record, filter, c.keychains)
			if errors.Is(err, credential.ErrItemNotFound) {
				c.advance()
				continue
			}
			if err != nil {
				c.state = StateDone
				return ref, false, err
			}
		}

		ref, err = c.search.Next(ctx)
		switch {
		case err == nil:
			return ref, true, nil
		case errors.Is(err, credential.ErrItemNotFound):
			c.advance()
		default:
			c.state = StateDone
			return ref, false, err
		}
	}
	return ref, false, nil
}

func (c *Cursor) advance() {
	c.search = nil
	switch c.state {
	case StateSymmetric:
		c.state = StatePublic
	case StatePublic:
		c.state = StatePrivate
	default:
		c.state = StateDone
		return
	}
	c.record = sweepRecords[c.state]
}
