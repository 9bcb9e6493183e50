package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

// MigrationState is the position of one item moving between the stores.
type MigrationState int

const (
	MigrationReadSource MigrationState = iota
	MigrationTranslate
	MigrationWriteOrUpdateTarget
	MigrationDeleteSource
	MigrationDone
	MigrationFailed
)

func (s MigrationState) String() string {
	switch s {
	case MigrationReadSource:
		return "read_source"
	case MigrationTranslate:
		return "translate"
	case MigrationWriteOrUpdateTarget:
		return "write_target"
	case MigrationDeleteSource:
		return "delete_source"
	case MigrationDone:
		return "done"
	case MigrationFailed:
		return "failed"
	}
	return "unknown"
}

const (
	toModern = "to_modern"
	toLegacy = "to_legacy"
)

// MigrationRecord tracks one item. The source is deleted only after the target
// write succeeded; a failure at any step leaves the source untouched.
type MigrationRecord struct {
	Direction string
	Source    *match.Candidate
	State     MigrationState
	Err       error

	attrs  credential.AttributeMap
	data   []byte
	target *query.Plan
}

// syncUpdate applies an update whose changes set synchronizable. Items already in
// the right store are updated in place first; the rest are then migrated, so
// freshly migrated items are never updated twice.
func (r *Router) syncUpdate(ctx context.Context, c *call, changes *query.Plan, sync bool) error {
	var errs []error
	if sync {
		if c.modern != nil {
			errs = append(errs, r.updateIn(ctx, c.modern, changes))
			r.trace(c.op, stateRoutedModern, "in place err=%v", errs[len(errs)-1])
		}
		if c.legacy != nil {
			if r.modern == nil {
				return wrap("update", credential.BackendNone,
					fmt.Errorf("%w: synchronizable items need a modern store", credential.ErrInvalidValue))
			}
			dst := r.newModern(c.legacy.plan.AuthUI)
			errs = append(errs, r.migrate(ctx, c.legacy, dst, toModern, changes))
			r.trace(c.op, stateRoutedLegacy, "migrated err=%v", errs[len(errs)-1])
		}
	} else {
		if c.legacy != nil {
			errs = append(errs, r.updateIn(ctx, c.legacy, changes))
			r.trace(c.op, stateRoutedLegacy, "in place err=%v", errs[len(errs)-1])
		}
		if c.modern != nil {
			local := &routed{backend: c.modern.backend, plan: withSync(c.modern.plan, false)}
			synced := &routed{backend: c.modern.backend, plan: withSync(c.modern.plan, true)}
			errs = append(errs, r.updateIn(ctx, local, changes))
			if r.legacy != nil {
				errs = append(errs, r.migrate(ctx, synced, &legacyBackend{store: r.legacy}, toLegacy, changes))
			} else {
				errs = append(errs, r.updateIn(ctx, synced, changes))
			}
			r.trace(c.op, stateRoutedModern, "err=%v", credential.Aggregate(errs...))
		}
	}
	err := credential.Aggregate(errs...)
	r.trace(c.op, stateMerged, "err=%v", err)
	return err
}

// withSync copies p with its synchronizable attribute forced to v.
func withSync(p *query.Plan, v bool) *query.Plan {
	out := *p
	out.Attributes = p.Attributes.Clone()
	out.Attributes[credential.AttrSynchronizable] = v
	return &out
}

// migrate moves every item src matches into dst. Items are migrated independently;
// one item's failure never stops its siblings.
func (r *Router) migrate(ctx context.Context, src *routed, dst backend, direction string, changes *query.Plan) error {
	found, err := r.matches(ctx, src.plan, src.backend)
	if err != nil {
		return wrap("migrate", src.backend.Backend(), err)
	}
	if len(found) == 0 {
		return wrap("migrate", src.backend.Backend(), credential.ErrItemNotFound)
	}
	errs := make([]error, 0, len(found))
	for _, c := range found {
		rec := &MigrationRecord{Direction: direction, Source: c}
		r.runMigration(ctx, rec, src.backend, dst, changes)
		errs = append(errs, rec.Err)
	}
	return credential.Aggregate(errs...)
}

func (r *Router) runMigration(ctx context.Context, m *MigrationRecord, src, dst backend, changes *query.Plan) {
	for m.State != MigrationDone && m.State != MigrationFailed {
		var err error
		switch m.State {
		case MigrationReadSource:
			err = m.read(ctx, src)
		case MigrationTranslate:
			m.target, err = m.translate(changes)
		case MigrationWriteOrUpdateTarget:
			err = r.writeTarget(ctx, dst, m.target, changes)
		case MigrationDeleteSource:
			err = src.remove(ctx, m.Source)
		}
		if err != nil {
			r.logger.Debug("migrate %s: %s failed: %v", m.Direction, m.State, err)
			m.Err = wrap("migrate", backendAt(m.State, src, dst), err)
			m.State = MigrationFailed
			break
		}
		m.State++
		r.logger.Debug("migrate %s: %s", m.Direction, m.State)
	}
	r.metrics.Migration(m.Direction, m.State.String())
}

func backendAt(s MigrationState, src, dst backend) credential.Backend {
	if s == MigrationWriteOrUpdateTarget {
		return dst.Backend()
	}
	return src.Backend()
}

func (m *MigrationRecord) read(ctx context.Context, src backend) error {
	attrs, err := m.Source.LoadAttributes(ctx, src)
	if err != nil {
		return err
	}
	data, err := m.Source.LoadData(ctx, src)
	if err != nil {
		return err
	}
	m.attrs, m.data = attrs, data
	return nil
}

// translate builds the add request for the other store: only attributes it can hold
// are kept, the caller's changes are applied and synchronizable is flipped.
func (m *MigrationRecord) translate(changes *query.Plan) (*query.Plan, error) {
	class := m.Source.Class
	kc, _ := m.attrs[credential.AttrKeyClass].(string)

	var attrs credential.AttributeMap
	switch m.Direction {
	case toModern:
		attrs = schema.ModernPortable(m.attrs)
		for k, v := range changes.Attributes {
			attrs[k] = v
		}
		attrs[credential.AttrSynchronizable] = true
	case toLegacy:
		rt, err := credential.RecordTypeFor(class, credential.KeyClass(kc))
		if err != nil {
			return nil, err
		}
		merged := m.attrs.Clone()
		for k, v := range changes.Attributes {
			merged[k] = v
		}
		attrs = schema.LegacyPortable(rt, merged)
	default:
		return nil, fmt.Errorf("%w: unknown migration direction %q", credential.ErrParameter, m.Direction)
	}

	p := &query.Plan{
		Op:            query.OpAdd,
		Class:         class,
		KeyClass:      credential.KeyClass(kc),
		Limit:         1,
		Attributes:    attrs,
		Payload:       m.data,
		HasPayload:    m.data != nil,
		AccessControl: changes.AccessControl,
		LegacyAccess:  changes.LegacyAccess,
	}
	if changes.HasPayload {
		p.Payload = changes.Payload
		p.HasPayload = true
	}
	return p, nil
}

// writeTarget adds the translated item. When the target already holds it, the
// existing item receives the caller's changes instead.
func (r *Router) writeTarget(ctx context.Context, dst backend, p *query.Plan, changes *query.Plan) error {
	_, err := dst.add(ctx, p)
	r.metrics.Operation("add", dst.Backend(), err)
	if !errors.Is(err, credential.ErrDuplicateItem) {
		return err
	}
	existing := primaryKeyPlan(p, dst.Backend())
	return r.eachMatch(ctx, existing, dst, func(c *match.Candidate) error {
		return dst.update(ctx, c, changes)
	})
}

// primaryKeyPlan finds the item of p's class sharing p's primary key in backend b.
func primaryKeyPlan(p *query.Plan, b credential.Backend) *query.Plan {
	keys := schema.PrimaryKeys(p.Class)
	if b == credential.BackendModern {
		keys = schema.ModernPrimaryKeys(p.Class)
	}
	attrs := credential.AttributeMap{}
	for _, k := range keys {
		if v, ok := p.Attributes[k]; ok {
			attrs[k] = v
		}
	}
	return &query.Plan{
		Op:         query.OpUpdate,
		Class:      p.Class,
		KeyClass:   p.KeyClass,
		Limit:      query.MatchAll,
		Return:     query.ReturnFlags{Ref: true},
		Attributes: attrs,
	}
}
