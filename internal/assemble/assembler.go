// Package assemble shapes accepted candidates into find and add results.
package assemble

import (
	"context"

	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

// Assembler accumulates the results of one backend search.
//
// With one result type and a limit of one the result is the bare fragment. With
// several result types each item becomes a container map holding the attributes
// (when asked for) plus the value_ref, value_persistent_ref and value_data
// fragments. Larger limits produce a Collection in match order.
type Assembler struct {
	plan  *query.Plan
	src   match.Source
	items credential.Collection
}

// New returns an assembler for p whose candidates are loaded through src.
func New(p *query.Plan, src match.Source) *Assembler {
	return &Assembler{plan: p, src: src}
}

// Add shapes c and appends it.
func (a *Assembler) Add(ctx context.Context, c *match.Candidate) error {
	item, err := a.shape(ctx, c)
	if err != nil {
		return err
	}
	a.items = append(a.items, item)
	return nil
}

// Full reports whether the match limit has been reached.
func (a *Assembler) Full() bool {
	return a.plan.Limit != query.MatchAll && len(a.items) >= a.plan.Limit
}

// Len returns the number of accepted items.
func (a *Assembler) Len() int {
	return len(a.items)
}

// Result returns the shaped result. An empty assembler yields ErrItemNotFound.
func (a *Assembler) Result() (credential.Result, error) {
	if len(a.items) == 0 {
		return nil, credential.ErrItemNotFound
	}
	if a.plan.Single() {
		return a.items[0], nil
	}
	return append(credential.Collection(nil), a.items...), nil
}

func (a *Assembler) shape(ctx context.Context, c *match.Candidate) (any, error) {
	want := a.plan.Return
	var (
		ref   credential.Handle
		token credential.PersistentRef
		data  []byte
		attrs credential.AttributeMap
		err   error
	)
	if want.Ref {
		ref = c.Handle(a.plan.Class == credential.ClassIdentity)
	}
	if want.PersistentRef {
		if token, err = c.LoadToken(ctx, a.src); err != nil {
			return nil, err
		}
	}
	if want.Data {
		if data, err = c.LoadData(ctx, a.src); err != nil {
			return nil, err
		}
	}
	if want.Attributes {
		loaded, err := c.LoadAttributes(ctx, a.src)
		if err != nil {
			return nil, err
		}
		attrs = loaded.Without(credential.ValueRef, credential.ValuePersistentRef, credential.ValueData)
		if c.Class != "" {
			attrs[credential.AttrClass] = c.Class
		}
	}

	if want.Count() == 1 {
		switch {
		case want.Ref:
			return ref, nil
		case want.PersistentRef:
			return token, nil
		case want.Data:
			return data, nil
		}
		return attrs, nil
	}

	container := credential.AttributeMap{}
	for k, v := range attrs {
		container[k] = v
	}
	if want.Ref {
		container[credential.ValueRef] = ref
	}
	if want.PersistentRef {
		container[credential.ValuePersistentRef] = token
	}
	if want.Data {
		container[credential.ValueData] = data
	}
	return container, nil
}
